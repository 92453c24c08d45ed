package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

var (
	swapSel   selection
	swapFlags struct {
		depths  []int
		heights []int
		ksatexm []float64
		henpr   []float64
		out     string
	}
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Write SWAP soil input tables for a profile",
	Long: "Writes the SOILPROFILE, SOILHYDRFUNC and SOILTEXTURES tables and the COFANI array of one soil profile " +
		"in SWAP .swp syntax. The profile discretisation is given with --depths and --heights (cm).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tbl, err := loadTable()
		if err != nil {
			return err
		}
		sp, err := swapSel.single(cmd.Context(), cmd, tbl)
		if err != nil {
			return eris.Wrap(err, "swap")
		}

		opts := dutchsoils.HydraulicOptions{KSatExm: swapFlags.ksatexm, HEnpr: swapFlags.henpr}
		if swapFlags.out == "" || swapFlags.out == "-" {
			return writeSWAPInput(os.Stdout, sp, swapFlags.depths, swapFlags.heights, opts)
		}
		return writeSWAPFile(swapFlags.out, sp, swapFlags.depths, swapFlags.heights, opts)
	},
}

// writeSWAPFile writes the SWAP soil section of sp to path. A failed close is
// reported, since buffered data may not have reached the disk.
func writeSWAPFile(path string, sp *dutchsoils.SoilProfile, depths, heights []int, opts dutchsoils.HydraulicOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "swap: create %s", path)
	}
	if err := writeSWAPInput(f, sp, depths, heights, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "swap: close %s", path)
	}
	return nil
}

// writeSWAPInput writes the complete soil section of a SWAP input file for sp.
func writeSWAPInput(w io.Writer, sp *dutchsoils.SoilProfile, depths, heights []int, opts dutchsoils.HydraulicOptions) error {
	prof, err := sp.SWAPProfile(depths, heights)
	if err != nil {
		return eris.Wrap(err, "swap")
	}
	hydr, err := sp.SWAPHydraulicParams(opts)
	if err != nil {
		return eris.Wrap(err, "swap")
	}
	tex, err := sp.SWAPFractions()
	if err != nil {
		return eris.Wrap(err, "swap")
	}
	cofani, err := sp.SWAPCofani()
	if err != nil {
		return eris.Wrap(err, "swap")
	}

	if err := dutchsoils.WriteSWAP(w, prof, hydr, tex); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return eris.Wrap(err, "swap")
	}
	return dutchsoils.WriteSWAPArray(w, dutchsoils.SWAPCofaniName, cofani)
}

func init() {
	swapSel.register(swapCmd)
	f := swapCmd.Flags()
	f.IntSliceVar(&swapFlags.depths, "depths", []int{100}, "thickness (cm) of each discretisation section")
	f.IntSliceVar(&swapFlags.heights, "heights", []int{10}, "compartment height (cm) per section")
	f.Float64SliceVar(&swapFlags.ksatexm, "ksatexm", nil, "measured saturated conductivity per soil layer (default KSATFIT)")
	f.Float64SliceVar(&swapFlags.henpr, "henpr", nil, "air entry pressure head per soil layer (default 0)")
	f.StringVarP(&swapFlags.out, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(swapCmd)
}
