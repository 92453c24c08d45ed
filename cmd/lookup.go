package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
	"github.com/sells-group/dutchsoils/pkg/pdok"
)

// selection holds the profile selection flags shared by the lookup commands.
type selection struct {
	index   int64
	code    string
	cluster int
	all     bool
	x, y    float64
	crs     string
	online  bool
}

func (s *selection) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int64Var(&s.index, "index", 0, "soil profile index (normalsoilprofile_id)")
	f.StringVar(&s.code, "code", "", "soil unit code, e.g. Hn21")
	f.IntVar(&s.cluster, "cluster", 0, "BOFEK2020 cluster id")
	f.BoolVar(&s.all, "all", false, "with --cluster or --code: every profile instead of a single one")
	f.Float64Var(&s.x, "x", 0, "x coordinate")
	f.Float64Var(&s.y, "y", 0, "y coordinate")
	f.StringVar(&s.crs, "crs", "", "coordinate reference system of --x/--y (default pdok.crs)")
	f.BoolVar(&s.online, "online", false, "look up locations with the PDOK WMS service instead of local map areas")
}

// mode returns the single selection made with the flags of cmd.
func (s *selection) mode(cmd *cobra.Command) (string, error) {
	f := cmd.Flags()
	var modes []string
	for _, name := range []string{"index", "code", "cluster"} {
		if f.Changed(name) {
			modes = append(modes, name)
		}
	}
	if f.Changed("x") || f.Changed("y") {
		if !f.Changed("x") || !f.Changed("y") {
			return "", eris.New("--x and --y must be given together")
		}
		modes = append(modes, "location")
	}
	if len(modes) != 1 {
		return "", eris.New("select profiles with exactly one of --index, --code, --cluster or --x/--y")
	}
	if f.Changed("all") && modes[0] != "code" && modes[0] != "cluster" {
		return "", eris.New("--all only applies to --code or --cluster")
	}
	return modes[0], nil
}

// profiles resolves the selection against tbl.
func (s *selection) profiles(ctx context.Context, cmd *cobra.Command, tbl *dutchsoils.Table) ([]*dutchsoils.SoilProfile, error) {
	mode, err := s.mode(cmd)
	if err != nil {
		return nil, err
	}
	switch mode {
	case "index":
		sp, err := tbl.FromIndex(s.index)
		if err != nil {
			return nil, err
		}
		return []*dutchsoils.SoilProfile{sp}, nil
	case "code":
		if s.all {
			return tbl.FromCode(s.code)
		}
		sp, err := tbl.ProfileByCode(s.code)
		if err != nil {
			return nil, err
		}
		return []*dutchsoils.SoilProfile{sp}, nil
	case "cluster":
		return tbl.FromBofekCluster(s.cluster, !s.all)
	default:
		loc, err := s.locator(tbl)
		if err != nil {
			return nil, err
		}
		sp, err := tbl.FromLocation(ctx, loc, s.x, s.y)
		if err != nil {
			return nil, err
		}
		return []*dutchsoils.SoilProfile{sp}, nil
	}
}

// single resolves the selection to exactly one profile.
func (s *selection) single(ctx context.Context, cmd *cobra.Command, tbl *dutchsoils.Table) (*dutchsoils.SoilProfile, error) {
	sps, err := s.profiles(ctx, cmd, tbl)
	if err != nil {
		return nil, err
	}
	if len(sps) != 1 {
		return nil, eris.Errorf("selection matches %d profiles, select a single one", len(sps))
	}
	return sps[0], nil
}

// locator returns the PDOK client for --online, otherwise the offline
// locator over the map areas of the table.
func (s *selection) locator(tbl *dutchsoils.Table) (dutchsoils.Locator, error) {
	crs := s.crs
	if crs == "" {
		crs = cfg.PDOK.CRS
	}
	if s.online {
		if err := cfg.Validate("online"); err != nil {
			return nil, err
		}
		return pdok.NewClient(
			pdok.WithBaseURL(cfg.PDOK.WMSURL),
			pdok.WithCRS(crs),
			pdok.WithRateLimit(cfg.PDOK.RateLimit),
			pdok.WithCacheTTL(time.Duration(cfg.PDOK.CacheTTLMinutes)*time.Minute),
			pdok.WithRetry(cfg.PDOK.MaxAttempts, 500*time.Millisecond),
			pdok.WithCircuitBreaker(cfg.PDOK.BreakerFailures, 30*time.Second),
			pdok.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.PDOK.TimeoutSecs) * time.Second}),
		), nil
	}
	if !strings.EqualFold(crs, pdok.DefaultCRS) {
		return nil, eris.Errorf("offline lookups use %s coordinates, use --online for %s", pdok.DefaultCRS, crs)
	}
	loc := tbl.Locator()
	if loc == nil {
		return nil, eris.New("no map area geometries available, rebuild with build.with_geometry or use --online")
	}
	return loc, nil
}

// loadTable reads the profile table and, when present, the map areas.
func loadTable() (*dutchsoils.Table, error) {
	if err := cfg.Validate("lookup"); err != nil {
		return nil, err
	}
	tbl, err := dutchsoils.LoadTable(cfg.Data.ProfilesPath())
	if err != nil {
		return nil, eris.Wrap(err, "load profiles (run 'dutchsoils build' first)")
	}

	path := cfg.Data.MapAreasPath()
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		zap.L().Debug("no map area file, location lookups need --online", zap.String("path", path))
		return tbl, nil
	}
	areas, err := dutchsoils.LoadMapAreas(path)
	if err != nil {
		return nil, err
	}
	if err := tbl.AttachMapAreas(areas); err != nil {
		return nil, err
	}
	return tbl, nil
}
