package table

// Annotate returns a copy of the table with LowConfidence set on every cell
// whose confidence falls below threshold. Values are never altered or
// dropped; the flag exists so a reviewer knows where to look. Annotating an
// already-annotated table with the same threshold is a no-op.
func Annotate(t *Table, threshold float64) *Table {
	out := &Table{
		Headers: append([]string(nil), t.Headers...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for ri, r := range t.Rows {
		row := make(Row, len(r))
		for ci, c := range r {
			c.LowConfidence = c.Confidence < threshold
			row[ci] = c
		}
		out.Rows[ri] = row
	}
	return out
}
