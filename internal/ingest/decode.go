package ingest

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"arrival-predictor/internal/route"
)

// ErrUnsupportedFormat is returned for uploads that are not CSV, JSON or a
// GTFS zip.
var ErrUnsupportedFormat = errors.New("Only CSV, JSON and GTFS zip files are supported")

// Source names used for metrics and logs.
const (
	SourceCSV      = "csv"
	SourceJSON     = "json"
	SourceGTFS     = "gtfs"
	SourceManual   = "manual"
	SourceDatabase = "database"
)

// Format picks the decoder for a file name by extension.
func Format(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return SourceCSV, nil
	case ".json":
		return SourceJSON, nil
	case ".zip":
		return SourceGTFS, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Decode reads an uploaded file according to its extension.
func Decode(filename string, r io.Reader) (route.Table, string, error) {
	format, err := Format(filename)
	if err != nil {
		return route.Table{}, "", err
	}

	var t route.Table
	switch format {
	case SourceCSV:
		t, err = DecodeCSV(r)
	case SourceJSON:
		t, err = DecodeJSON(r)
	case SourceGTFS:
		t, err = DecodeGTFS(r)
	}
	return t, format, err
}
