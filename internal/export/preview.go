package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dronetrace/dronetrace/internal/telemetry"
)

// Preview prints the first n rows of t as an aligned table followed by the
// column list and the shape.
func Preview(w io.Writer, t *telemetry.Table, n int) error {
	if n > t.Len() {
		n = t.Len()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\t"+strings.Join(t.Columns, "\t"))
	for i := 0; i < n; i++ {
		cells := make([]string, 0, len(t.Columns)+1)
		cells = append(cells, strconv.Itoa(i))
		for _, v := range t.Rows[i] {
			cells = append(cells, formatCell(v))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	quoted := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		quoted[i] = strconv.Quote(c)
	}
	_, err := fmt.Fprintf(w, "columns (%d): [%s]\nrows: %d\n", len(t.Columns), strings.Join(quoted, ", "), t.Len())
	return err
}
