package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show provenance and size of the built soil profile table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tbl, err := loadTable()
		if err != nil {
			return err
		}
		formatInfo(os.Stdout, tbl)
		return nil
	},
}

// formatInfo writes the provenance and counts of tbl to out.
func formatInfo(out io.Writer, tbl *dutchsoils.Table) {
	p := tbl.Provenance
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Build:\t%s\n", p.BuildID)
	if !p.Created.IsZero() {
		_, _ = fmt.Fprintf(w, "Created:\t%s\n", p.Created.Format("2006-01-02 15:04:05 MST"))
	}
	if len(p.Sources) > 0 {
		_, _ = fmt.Fprintf(w, "Sources:\t%s\n", strings.Join(p.Sources, ", "))
	}
	_, _ = fmt.Fprintf(w, "Profiles:\t%d\n", tbl.Len())
	_, _ = fmt.Fprintf(w, "Soil units:\t%d\n", len(tbl.Codes()))
	_, _ = fmt.Fprintf(w, "BOFEK clusters:\t%d\n", len(tbl.Clusters()))
	location := "online only"
	if tbl.Locator() != nil {
		location = "offline and online"
	}
	_, _ = fmt.Fprintf(w, "Location lookup:\t%s\n", location)
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
