package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

var areaSel selection

var areaCmd = &cobra.Command{
	Use:   "area",
	Short: "Show the area of soil profiles and their BOFEK clusters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tbl, err := loadTable()
		if err != nil {
			return err
		}
		sps, err := areaSel.profiles(cmd.Context(), cmd, tbl)
		if err != nil {
			return eris.Wrap(err, "area")
		}
		return formatAreas(os.Stdout, sps)
	},
}

// formatAreas writes the profile and cluster area of each profile to out.
func formatAreas(out io.Writer, sps []*dutchsoils.SoilProfile) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tCODE\tCLUSTER\tPROFILE_HA\tCLUSTER_HA")
	_, _ = fmt.Fprintln(w, "-----\t----\t-------\t----------\t----------")
	for _, sp := range sps {
		pa, err := sp.Area("profile")
		if err != nil {
			return err
		}
		ca, err := sp.Area("bofekcluster")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%.1f\t%.1f\n", sp.Index, sp.Code, sp.BofekCluster, pa, ca)
	}
	return w.Flush()
}

func init() {
	areaSel.register(areaCmd)
	rootCmd.AddCommand(areaCmd)
}
