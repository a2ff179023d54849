package telemetry

// Concat joins per-file tables into one corpus in argument order. Rows are
// copied, so later changes to the inputs never reach the corpus. Tables whose
// columns differ from the first table's are aligned by name; missing cells
// become null.
func Concat(tables ...*Table) *Table {
	out := &Table{Columns: append([]string(nil), Columns...)}
	if len(tables) > 0 && tables[0] != nil {
		out.Columns = append([]string(nil), tables[0].Columns...)
	}

	total := 0
	for _, t := range tables {
		total += t.Len()
	}
	out.Rows = make([][]Value, 0, total)

	for _, t := range tables {
		if t.Len() == 0 {
			continue
		}
		mapping := make([]int, len(out.Columns))
		for j, c := range out.Columns {
			mapping[j] = t.ColumnIndex(c)
		}
		for _, row := range t.Rows {
			dst := make([]Value, len(out.Columns))
			for j, src := range mapping {
				if src < 0 {
					dst[j] = NullValue()
					continue
				}
				dst[j] = row[src]
			}
			out.Rows = append(out.Rows, dst)
		}
	}
	return out
}
