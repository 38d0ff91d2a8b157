package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"explorer/internal/catalog"
	dErrors "explorer/pkg/domain-errors"
)

// catalogCmd reads the embedded catalog only; it never opens the database.
func catalogCmd(_ *env) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [table]",
		Short: "List explorable tables, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			if len(args) == 0 {
				row(w, "TABLE", "LABEL", "COLUMNS", "KIND")
				for _, t := range cat.Tables() {
					kind := "dataset"
					if t.Core {
						kind = "provenance"
					}
					if t.Badged {
						kind += ", badged"
					}
					row(w, t.Name, t.Label, strconv.Itoa(len(t.Columns)), kind)
				}
				return w.Flush()
			}

			t, ok := cat.Table(args[0])
			if !ok {
				return dErrors.New(dErrors.CodeUnknownTable, fmt.Sprintf("unknown table %q", args[0]))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n\n", t.Label, t.Description)
			row(w, "COLUMN", "TYPE", "FILTER", "SORT", "LABEL")
			for _, c := range t.Columns {
				row(w, c.Name, string(c.Type), mark(c.Filterable), mark(c.Sortable), c.Label)
			}
			return w.Flush()
		},
	}
}

func mark(b bool) string {
	if b {
		return green.Sprint("yes")
	}
	return faint.Sprint("no")
}
