// Package fetcher acquires the reference datasets of the soil build: it
// downloads sources over HTTP or FTP, unpacks archives and reads CSV and XLSX
// tables.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Resolver turns a source reference (local path or URL) into a local file.
type Resolver struct {
	HTTP    Fetcher
	FTP     Fetcher
	TempDir string
}

// Resolve returns a local path for src. Local paths are returned as-is after
// an existence check. URLs are downloaded into TempDir once, keyed on the full
// URL; a non-empty file already present there is reused.
func (r *Resolver) Resolve(ctx context.Context, src string) (string, error) {
	if src == "" {
		return "", eris.New("fetcher: empty source")
	}

	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path (a one-letter scheme is a Windows drive).
		if _, statErr := os.Stat(src); statErr != nil {
			return "", eris.Wrapf(statErr, "fetcher: source %s", src)
		}
		return src, nil
	}

	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	case "file":
		return r.Resolve(ctx, u.Path)
	default:
		return "", eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, src)
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher configured for %s", u.Scheme)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", eris.Errorf("fetcher: cannot derive file name from %s", src)
	}

	if err := os.MkdirAll(r.TempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create temp dir")
	}
	dest := filepath.Join(r.TempDir, downloadName(src, name))

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", src))
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		log.Debug("source already downloaded, skipping", zap.String("path", dest))
		return dest, nil
	}

	log.Info("downloading source", zap.String("path", dest))
	tmp := dest + ".part"
	n, err := f.DownloadToFile(ctx, src, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "fetcher: download %s", src)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", eris.Wrap(err, "fetcher: finalize download")
	}
	log.Info("downloaded source", zap.Int64("bytes", n))

	return dest, nil
}

// downloadName prefixes the URL's base name with a hash of the whole URL, so
// equally named files from different locations do not collide.
func downloadName(src, name string) string {
	h := sha256.Sum256([]byte(src))
	return fmt.Sprintf("%x-%s", h[:8], name)
}

// FindFile walks dir and returns the first file whose base name matches name
// (case-insensitive), or, when name starts with ".", whose extension matches.
// Files are visited in lexical order, so the result is deterministic.
func FindFile(dir, name string) (string, error) {
	want := strings.ToLower(name)
	byExt := strings.HasPrefix(want, ".")

	var found string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || found != "" {
			return nil
		}
		base := strings.ToLower(d.Name())
		if (byExt && strings.EqualFold(filepath.Ext(base), want)) || (!byExt && base == want) {
			found = p
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: walk %s", dir)
	}
	if found == "" {
		return "", eris.Errorf("fetcher: %s not found in %s", name, dir)
	}
	return found, nil
}
