package validator

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteTable prints the inconsistency table, one row per replica plus the
// total row.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "name\tentries\tforks\tmonoincr errors\tduplicates\tmissing\t")
	row := func(name string, m LogMetrics) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t\n", name, m.Entries, m.Forks, m.MonotonicErrors, m.Duplicates, m.Missing)
	}
	for _, id := range r.Replicas {
		row(id, r.Logs[id])
	}
	row(TotalRow, r.Total)
	if r.Malformed > 0 {
		fmt.Fprintf(tw, "malformed\t%d\t\t\t\t\t\n", r.Malformed)
	}
	return tw.Flush()
}

// WriteMatrix prints the split distance matrix: Jaccard below the diagonal,
// Levenshtein above it.
func (r *Report) WriteMatrix(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "J↓ L→\t")
	for _, id := range r.Replicas {
		fmt.Fprintf(tw, "%s\t", id)
	}
	fmt.Fprintln(tw)
	for i, id := range r.Replicas {
		fmt.Fprintf(tw, "%s\t", id)
		for j := range r.Replicas {
			fmt.Fprintf(tw, "%0.2f\t", r.Matrix[i][j])
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
