package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"arrival-predictor/internal/route"
)

// DecodeJSON reads a timetable either as an array of records
// ([{"route_id": "1", ...}]) or column-oriented the way pandas writes
// DataFrames ({"route_id": {"0": "1"}, ...} or {"route_id": ["1"]}).
// Numbers, strings and null are accepted in every cell.
func DecodeJSON(r io.Reader) (route.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return route.Table{}, errors.Wrap(err, "reading json")
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return route.Table{}, errors.New("empty json document")
	}

	var columns []string
	var cells []map[string]string
	switch b[0] {
	case '[':
		columns, cells, err = decodeRecords(b)
	case '{':
		columns, cells, err = decodeColumns(b)
	default:
		err = errors.New("json document must be an array of records or an object of columns")
	}
	if err != nil {
		return route.Table{}, err
	}

	if err := route.ValidateColumns(trimmed(columns)); err != nil {
		return route.Table{}, err
	}

	rows := make([]rawRow, len(cells))
	for i, row := range cells {
		for col, v := range row {
			rows[i].set(col, v)
		}
	}
	return buildTable(trimmed(columns), rows)
}

func decodeRecords(b []byte) ([]string, []map[string]string, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, nil, errors.Wrap(err, "decoding json records")
	}

	seen := map[string]bool{}
	var columns []string
	cells := make([]map[string]string, 0, len(records))
	for i, rec := range records {
		row := make(map[string]string, len(rec))
		for col, raw := range rec {
			v, err := cellText(raw)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "record %d, column %q", i+1, col)
			}
			row[col] = v
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		cells = append(cells, row)
	}
	sort.Strings(columns)
	return columns, cells, nil
}

func decodeColumns(b []byte) ([]string, []map[string]string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, nil, errors.Wrap(err, "decoding json columns")
	}

	columns := make([]string, 0, len(doc))
	for col := range doc {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	// index label -> row, kept in index order
	byIndex := map[string]map[string]string{}
	var order []string
	add := func(index, col, v string) {
		row, ok := byIndex[index]
		if !ok {
			row = map[string]string{}
			byIndex[index] = row
			order = append(order, index)
		}
		row[col] = v
	}

	for _, col := range columns {
		raw := bytes.TrimSpace(doc[col])
		switch {
		case len(raw) > 0 && raw[0] == '[':
			var values []json.RawMessage
			if err := json.Unmarshal(raw, &values); err != nil {
				return nil, nil, errors.Wrapf(err, "column %q", col)
			}
			for i, rv := range values {
				v, err := cellText(rv)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "column %q, row %d", col, i+1)
				}
				add(strconv.Itoa(i), col, v)
			}
		case len(raw) > 0 && raw[0] == '{':
			var values map[string]json.RawMessage
			if err := json.Unmarshal(raw, &values); err != nil {
				return nil, nil, errors.Wrapf(err, "column %q", col)
			}
			for index, rv := range values {
				v, err := cellText(rv)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "column %q, index %q", col, index)
				}
				add(index, col, v)
			}
		default:
			return nil, nil, errors.Errorf("column %q must be an array or an object keyed by row index", col)
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return indexLess(order[i], order[j]) })
	cells := make([]map[string]string, 0, len(order))
	for _, index := range order {
		cells = append(cells, byIndex[index])
	}
	return columns, cells, nil
}

// indexLess orders numeric index labels numerically and the rest as text.
func indexLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

// cellText renders a scalar JSON value as the text a CSV cell would hold.
func cellText(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", errors.Errorf("unexpected %T value", v)
	}
}
