package ingest

import (
	"bytes"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"arrival-predictor/internal/route"
)

// newCSVReader is lazy to survive sloppy quoting and strips a leading BOM.
func newCSVReader(b []byte) gocsv.CSVReader {
	return gocsv.LazyCSVReader(bom.NewReader(bytes.NewReader(b)))
}

// DecodeCSV reads a timetable with a header row. Columns are checked
// before any row is parsed.
func DecodeCSV(r io.Reader) (route.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return route.Table{}, errors.Wrap(err, "reading csv")
	}

	header, err := newCSVReader(b).Read()
	if err == io.EOF {
		return route.Table{}, &route.ValidationError{Missing: route.RequiredColumns}
	}
	if err != nil {
		return route.Table{}, errors.Wrap(err, "reading csv header")
	}
	if err := route.ValidateColumns(trimmed(header)); err != nil {
		return route.Table{}, err
	}

	rows := []rawRow{}
	if err := gocsv.UnmarshalCSV(newCSVReader(b), &rows); err != nil {
		return route.Table{}, errors.Wrap(err, "unmarshaling csv")
	}

	return buildTable(trimmed(header), rows)
}

func trimmed(columns []string) []string {
	out := make([]string, len(columns))
	copy(out, columns)
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}
