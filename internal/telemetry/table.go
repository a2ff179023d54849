package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Columns is the canonical column order of per-frame tables.
var Columns = []string{
	ColFilename, ColFrame, ColTimeInit, ColTimeEnd, ColDiffTimeMs, ColDate, ColTime,
	"iso", "shutter", "fnum", "ev", "ct", "color_md", "focal_len",
	KeyDzoomRatio, KeyDzoomRatioDelta, "latitude", "longitude", KeyRelAlt, KeyAbsAlt,
}

// IntColumns are cast to integers across the whole table.
var IntColumns = []string{
	ColFrame, ColDiffTimeMs, "iso", "fnum", "ct", "focal_len", KeyDzoomRatio, KeyDzoomRatioDelta,
}

// FloatColumns are cast to floats across the whole table.
var FloatColumns = []string{
	"shutter", "ev", "latitude", "longitude", KeyRelAlt, KeyAbsAlt,
}

// nullableInt lists integer columns that may hold null.
var nullableInt = map[string]bool{KeyDzoomRatioDelta: true}

// Table is a column-consistent set of rows.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]Value, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: column %s", ErrMissingKey, name)
	}
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Record returns row i keyed by column name.
func (t *Table) Record(i int) Record {
	rec := make(Record, len(t.Columns))
	for j, c := range t.Columns {
		rec[c] = t.Rows[i][j]
	}
	return rec
}

// BuildTable converts the content of one log file into a typed table.
func BuildTable(filename, content string) (*Table, error) {
	return BuildTableFromBlocks(filename, SplitBlocks(content))
}

// BuildTableFromBlocks skips blocks shorter than MinBlockLines, builds a
// record for every other block and casts the typed columns in one pass. Any
// failure discards the whole table.
func BuildTableFromBlocks(filename string, blocks []RawBlock) (*Table, error) {
	records := make([]Record, 0, len(blocks))
	for i, b := range blocks {
		if len(b) < MinBlockLines {
			continue
		}
		rec, err := BuildRecord(filename, b)
		if err != nil {
			return nil, fmt.Errorf("%s: block %d: %w", filename, i+1, err)
		}
		records = append(records, rec)
	}

	present := make(map[string]bool, len(Columns))
	for _, rec := range records {
		for k := range rec {
			present[k] = true
		}
	}
	for _, c := range Columns {
		if !present[c] {
			return nil, fmt.Errorf("%s: %w: column %s absent from all %d records", filename, ErrTypeCoercion, c, len(records))
		}
	}

	t := &Table{Columns: append([]string(nil), Columns...), Rows: make([][]Value, len(records))}
	for i, rec := range records {
		row := make([]Value, len(Columns))
		for j, c := range Columns {
			v, ok := rec[c]
			if !ok {
				v = NullValue()
			}
			row[j] = v
		}
		t.Rows[i] = row
	}

	if err := t.cast(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return t, nil
}

func (t *Table) cast() error {
	for _, c := range IntColumns {
		j := t.ColumnIndex(c)
		for i, row := range t.Rows {
			v, err := toInt(row[j], nullableInt[c])
			if err != nil {
				return fmt.Errorf("%w: column %s row %d: %v", ErrTypeCoercion, c, i, err)
			}
			row[j] = v
		}
	}
	for _, c := range FloatColumns {
		j := t.ColumnIndex(c)
		for i, row := range t.Rows {
			v, err := toFloat(row[j])
			if err != nil {
				return fmt.Errorf("%w: column %s row %d: %v", ErrTypeCoercion, c, i, err)
			}
			row[j] = v
		}
	}
	return nil
}

func toInt(v Value, nullable bool) (Value, error) {
	switch v.Kind {
	case KindInt:
		return v, nil
	case KindFloat:
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
		if math.IsNaN(v.Float) || v.Float < math.MinInt64 || v.Float >= math.MaxInt64 {
			return v, fmt.Errorf("%s overflows int64", FormatFloat(v.Float))
		}
		if v.Float == math.Trunc(v.Float) {
			return IntValue(int64(v.Float)), nil
		}
		return v, fmt.Errorf("%s is not integral", FormatFloat(v.Float))
	case KindString:
		s := strings.TrimSpace(v.Str)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntValue(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return toInt(FloatValue(f), nullable)
		}
		return v, fmt.Errorf("%q is not an integer", v.Str)
	default:
		if nullable {
			return v, nil
		}
		return v, fmt.Errorf("null is not an integer")
	}
}

// toFloat leaves nulls in place; they export as empty fields.
func toFloat(v Value) (Value, error) {
	switch v.Kind {
	case KindFloat, KindNull:
		return v, nil
	case KindInt:
		return FloatValue(float64(v.Int)), nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return v, fmt.Errorf("%q is not a float", v.Str)
		}
		return FloatValue(f), nil
	default:
		return v, fmt.Errorf("unsupported kind %s", v.Kind)
	}
}
