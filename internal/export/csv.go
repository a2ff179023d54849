// Package export writes converted telemetry to CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/dronetrace/dronetrace/internal/telemetry"
)

// WriteCorpusCSV writes t with a leading unnamed index column holding the
// 0-based row number.
func WriteCorpusCSV(w io.Writer, t *telemetry.Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, "")
	header = append(header, t.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(t.Columns)+1)
	for i, row := range t.Rows {
		record[0] = strconv.Itoa(i)
		for j, v := range row {
			record[j+1] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes one row per flight in telemetry.SummaryColumns order.
func WriteSummaryCSV(w io.Writer, flights []telemetry.FlightSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(telemetry.SummaryColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(telemetry.SummaryColumns))
	for i, f := range flights {
		for j, v := range f.Values() {
			record[j] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write flight %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatCell renders missing numbers as empty fields.
func formatCell(v telemetry.Value) string {
	if v.Kind == telemetry.KindFloat && math.IsNaN(v.Float) {
		return ""
	}
	return v.String()
}
