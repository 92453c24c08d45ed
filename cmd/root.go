package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dutchsoils/internal/config"
)

var cfg *config.Config

// rootFlags override the matching configuration keys for one invocation.
var rootFlags struct {
	dataDir  string
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "dutchsoils",
	Short: "Dutch soil profiles, BOFEK clusters and SWAP model input",
	Long: "Builds a combined table of the BRO soil map, BOFEK2020 clusters and Staring-series parameters, " +
		"and looks up soil profiles by index, code, cluster or location to print horizon data and SWAP input.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyRootFlags(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("configuration loaded", zap.String("data_dir", cfg.Data.Dir))
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// applyRootFlags copies the persistent flags set on the command line into c.
func applyRootFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("data-dir") {
		c.Data.Dir = rootFlags.dataDir
	}
	if f.Changed("log-level") {
		c.Log.Level = rootFlags.logLevel
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.dataDir, "data-dir", "", "directory of soilprofiles.csv and mapareas.csv (default data.dir)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "log level: debug, info, warn or error (default log.level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
