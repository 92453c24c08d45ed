package prep

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dutchsoils/internal/config"
	"github.com/sells-group/dutchsoils/internal/fetcher"
	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

// ResolveInputs downloads the remote sources of cfg (concurrently) and
// returns the local paths.
func ResolveInputs(ctx context.Context, r *fetcher.Resolver, cfg config.SourcesConfig) (Inputs, error) {
	in := Inputs{
		BofekField:    cfg.BofekField,
		StaringParams: cfg.StaringParams,
		StaringNames:  cfg.StaringNames,
		TempDir:       cfg.TempDir,
		Sources:       []string{cfg.SoilMap, cfg.Bofek, cfg.BofekNames, cfg.Staring},
	}

	targets := []struct {
		src string
		dst *string
	}{
		{cfg.SoilMap, &in.SoilMap},
		{cfg.Bofek, &in.Bofek},
		{cfg.BofekNames, &in.BofekNames},
		{cfg.Staring, &in.Staring},
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			p, err := r.Resolve(gCtx, t.src)
			if err != nil {
				return err
			}
			*t.dst = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Inputs{}, eris.Wrap(err, "prep: resolve sources")
	}
	return in, nil
}

// Write stores the profile table and the map area index. Files are written
// next to their destination and renamed into place.
func (r *Result) Write(profilesPath, mapAreasPath string) error {
	if err := writeFile(profilesPath, func(f *os.File) error {
		return dutchsoils.WriteTable(f, r.Records, r.Provenance)
	}); err != nil {
		return err
	}
	if err := writeFile(mapAreasPath, func(f *os.File) error {
		return dutchsoils.WriteMapAreas(f, r.MapAreas)
	}); err != nil {
		return err
	}
	zap.L().Info("prep: output written",
		zap.String("profiles", profilesPath),
		zap.String("mapareas", mapAreasPath),
	)
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "prep: create directory for %s", path)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "prep: create %s", tmp)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "prep: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "prep: rename %s", tmp)
	}
	return nil
}
