package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dutchsoils/internal/config"
	"github.com/sells-group/dutchsoils/internal/fetcher"
	"github.com/sells-group/dutchsoils/internal/prep"
)

var buildFlags struct {
	soilMap    string
	bofek      string
	bofekNames string
	staring    string
	outDir     string
	strict     bool
	noGeometry bool
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the combined soil profile table",
	Long: "Downloads (or reads) the BRO soil map, the BOFEK2020 shapefile and cluster names and the Staring series, " +
		"joins them and writes soilprofiles.csv and mapareas.csv to the data directory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyBuildFlags(cfg)
		if err := cfg.Validate("build"); err != nil {
			return err
		}

		resolver := &fetcher.Resolver{
			HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent:  cfg.Sources.UserAgent,
				Timeout:    time.Duration(cfg.Sources.TimeoutSecs) * time.Second,
				MaxRetries: cfg.Sources.MaxRetries,
			}),
			FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{
				Timeout: time.Duration(cfg.Sources.FTPTimeoutSecs) * time.Second,
			}),
			TempDir: cfg.Sources.TempDir,
		}

		in, err := prep.ResolveInputs(ctx, resolver, cfg.Sources)
		if err != nil {
			return err
		}

		res, err := prep.Build(ctx, in, prep.Options{
			SampleGrid:    cfg.Build.SampleGrid,
			MaxCandidates: cfg.Build.MaxCandidates,
			Strict:        cfg.Build.Strict,
			WithGeometry:  cfg.Build.WithGeometry,
		})
		if err != nil {
			return eris.Wrap(err, "build")
		}

		if err := res.Write(cfg.Data.ProfilesPath(), cfg.Data.MapAreasPath()); err != nil {
			return eris.Wrap(err, "build")
		}

		zap.L().Info("build complete",
			zap.String("build_id", res.Provenance.BuildID),
			zap.Int("records", len(res.Records)),
			zap.Int("map_areas", len(res.MapAreas)),
			zap.Int("dropped", len(res.Dropped)),
		)
		return nil
	},
}

// applyBuildFlags overrides configured sources with non-empty flags.
func applyBuildFlags(c *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Sources.SoilMap, buildFlags.soilMap)
	set(&c.Sources.Bofek, buildFlags.bofek)
	set(&c.Sources.BofekNames, buildFlags.bofekNames)
	set(&c.Sources.Staring, buildFlags.staring)
	set(&c.Data.Dir, buildFlags.outDir)
	if buildFlags.strict {
		c.Build.Strict = true
	}
	if buildFlags.noGeometry {
		c.Build.WithGeometry = false
	}
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildFlags.soilMap, "soil-map", "", "soil map GeoPackage (path or URL)")
	f.StringVar(&buildFlags.bofek, "bofek", "", "BOFEK2020 shapefile, zip or directory (path or URL)")
	f.StringVar(&buildFlags.bofekNames, "bofek-names", "", "BOFEK2020 cluster names, .xlsx or .csv (path or URL)")
	f.StringVar(&buildFlags.staring, "staring", "", "Staring series archive (path or URL)")
	f.StringVar(&buildFlags.outDir, "out-dir", "", "output directory (default data.dir)")
	f.BoolVar(&buildFlags.strict, "strict", false, "fail on invalid profiles instead of dropping them")
	f.BoolVar(&buildFlags.noGeometry, "no-geometry", false, "omit map area geometries (disables offline location lookups)")
	rootCmd.AddCommand(buildCmd)
}
