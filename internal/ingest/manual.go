package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"arrival-predictor/internal/route"
)

// ManualStop is a stop placed by hand in the route editor.
type ManualStop struct {
	Name          string          `json:"name"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	ScheduledTime json.RawMessage `json:"scheduled_time"`
}

// ManualRoute is the body of a route creation request.
type ManualRoute struct {
	Name  string       `json:"name"`
	Stops []ManualStop `json:"stops"`
}

// Records validates the request and returns its stops, in request order,
// as rows of routeID. Stop ids are generated as stop-1, stop-2, ...
func (m ManualRoute) Records(routeID string) ([]route.StopRecord, error) {
	verr := &route.ValidationError{}
	if strings.TrimSpace(m.Name) == "" {
		verr.Problems = append(verr.Problems, "route name is required")
	}
	if len(m.Stops) < 2 {
		verr.Problems = append(verr.Problems, "a route needs at least two stops")
	}

	records := make([]route.StopRecord, 0, len(m.Stops))
	for i, s := range m.Stops {
		n := i + 1
		if s.Latitude < -90 || s.Latitude > 90 {
			verr.Problems = append(verr.Problems, fmt.Sprintf("stop %d: latitude %v out of range", n, s.Latitude))
		}
		if s.Longitude < -180 || s.Longitude > 180 {
			verr.Problems = append(verr.Problems, fmt.Sprintf("stop %d: longitude %v out of range", n, s.Longitude))
		}
		var text string
		var err error
		if len(s.ScheduledTime) > 0 {
			text, err = cellText(s.ScheduledTime)
		}
		minutes := route.NormalizeScheduledTime(text)
		if err != nil || route.IsMissing(minutes) {
			verr.Problems = append(verr.Problems, fmt.Sprintf("stop %d: scheduled_time %s is not HH:MM", n, string(s.ScheduledTime)))
		}

		records = append(records, route.StopRecord{
			RouteID:       routeID,
			StopID:        fmt.Sprintf("stop-%d", n),
			Name:          strings.TrimSpace(s.Name),
			Latitude:      s.Latitude,
			Longitude:     s.Longitude,
			ScheduledTime: minutes,
		})
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}
	return records, nil
}
