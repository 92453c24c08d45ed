package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

var profileSel selection

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show soil profiles and their horizons",
	Long: "Looks up soil profiles by --index, --code, --cluster or --x/--y and prints the profile " +
		"with its horizon data (--which all, hydraulic, physical or chemical).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		which, _ := cmd.Flags().GetString("which")
		format, _ := cmd.Flags().GetString("format")
		if _, err := dutchsoils.HorizonColumns(which); err != nil {
			return err
		}

		tbl, err := loadTable()
		if err != nil {
			return err
		}
		sps, err := profileSel.profiles(cmd.Context(), cmd, tbl)
		if err != nil {
			return eris.Wrap(err, "profile")
		}

		views := make([]profileView, 0, len(sps))
		for _, sp := range sps {
			v, err := newProfileView(sp, which)
			if err != nil {
				return eris.Wrap(err, "profile")
			}
			views = append(views, v)
		}
		return writeProfiles(os.Stdout, views, format)
	},
}

// profileView is the printed form of a profile.
type profileView struct {
	Index                int64                    `json:"index" yaml:"index"`
	Code                 string                   `json:"code" yaml:"code"`
	Name                 string                   `json:"name" yaml:"name"`
	BofekCluster         int                      `json:"bofekcluster" yaml:"bofekcluster"`
	BofekClusterName     string                   `json:"bofekcluster_name" yaml:"bofekcluster_name"`
	BofekClusterDominant bool                     `json:"bofekcluster_dominant" yaml:"bofekcluster_dominant"`
	Area                 float64                  `json:"area_ha" yaml:"area_ha"`
	Horizons             *dutchsoils.HorizonTable `json:"horizons" yaml:"horizons"`
}

func newProfileView(sp *dutchsoils.SoilProfile, which string) (profileView, error) {
	area, err := sp.Area("profile")
	if err != nil {
		return profileView{}, err
	}
	h, err := sp.Horizons(which)
	if err != nil {
		return profileView{}, err
	}
	return profileView{
		Index:                sp.Index,
		Code:                 sp.Code,
		Name:                 sp.Name,
		BofekCluster:         sp.BofekCluster,
		BofekClusterName:     sp.BofekClusterName,
		BofekClusterDominant: sp.BofekClusterDominant,
		Area:                 area,
		Horizons:             h,
	}, nil
}

// writeProfiles writes views to out as a table, JSON or YAML.
func writeProfiles(out io.Writer, views []profileView, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return eris.Wrap(err, "profile: encode yaml")
		}
		return enc.Close()
	case "table", "":
		for i, v := range views {
			if i > 0 {
				_, _ = fmt.Fprintln(out)
			}
			formatProfile(out, v)
		}
		return nil
	default:
		return eris.Errorf("profile: unknown format %q (table, json or yaml)", format)
	}
}

// formatProfile writes one profile and its horizon table to out.
func formatProfile(out io.Writer, v profileView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Index:\t%d\n", v.Index)
	_, _ = fmt.Fprintf(w, "Code:\t%s\n", v.Code)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", v.Name)
	dominant := ""
	if v.BofekClusterDominant {
		dominant = " (dominant)"
	}
	_, _ = fmt.Fprintf(w, "BOFEK cluster:\t%d %s%s\n", v.BofekCluster, v.BofekClusterName, dominant)
	_, _ = fmt.Fprintf(w, "Area:\t%.1f ha\n", v.Area)
	_ = w.Flush()

	if v.Horizons.Len() == 0 {
		_, _ = fmt.Fprintln(out, "No horizons.")
		return
	}
	_, _ = fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := make([]string, len(v.Horizons.Columns))
	for i, c := range v.Horizons.Columns {
		header[i] = strings.ToUpper(c)
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range v.Horizons.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = formatCell(c)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return dutchsoils.FormatSWAPValue(x)
	default:
		return fmt.Sprint(x)
	}
}

func init() {
	profileSel.register(profileCmd)
	profileCmd.Flags().String("which", "all", "horizon data: all, hydraulic, physical or chemical")
	profileCmd.Flags().String("format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(profileCmd)
}
