package route

import (
	"fmt"
	"strings"
)

// ValidationError reports input that cannot be simulated: required columns
// that are absent, and rows whose values are malformed.
type ValidationError struct {
	Missing  []string
	Problems []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("Missing required columns: %s", strings.Join(e.Missing, ", ")))
	}
	parts = append(parts, e.Problems...)
	if len(parts) == 0 {
		return "invalid input"
	}
	return strings.Join(parts, "; ")
}

// ValidateColumns checks that every required column is present.
func ValidateColumns(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}

	var missing []string
	for _, c := range RequiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
