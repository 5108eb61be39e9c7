package cadastre

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/fetcher"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// workDir is the per-region scratch directory under the loader's temp dir.
func (l *Loader) workDir(region string) string {
	return filepath.Join(l.tempDir, unsafeChars.ReplaceAllString(region, "_"))
}

// resolve turns a configured source into a local .shp path, downloading and
// extracting as needed.
func (l *Loader) resolve(ctx context.Context, region, src string) (string, error) {
	if src == "" {
		return "", eris.New("no building source configured")
	}

	local := src
	if fetcher.IsRemote(src) {
		if l.fetch == nil {
			return "", eris.Errorf("no fetcher for remote source %s", src)
		}
		dest := filepath.Join(l.workDir(region), fetcher.LocalName(src))
		if _, err := os.Stat(dest); err == nil && l.reuse {
			l.log.Debug("reusing downloaded cadastre", zap.String("path", dest))
		} else {
			n, err := fetcher.DownloadToFile(ctx, l.fetch, src, dest)
			if err != nil {
				return "", err
			}
			l.log.Info("downloaded cadastre", zap.String("url", src), zap.Int64("bytes", n))
		}
		local = dest
	}

	if _, err := os.Stat(local); err != nil {
		return "", eris.Wrapf(err, "stat %s", local)
	}

	switch strings.ToLower(filepath.Ext(local)) {
	case ".shp":
		return local, nil
	case ".zip":
		dir := filepath.Join(l.workDir(region), "extracted")
		files, err := fetcher.ExtractZIP(local, dir)
		if err != nil {
			return "", err
		}
		shpPath, ok := fetcher.FindByExt(files, ".shp")
		if !ok {
			return "", eris.Errorf("no .shp in archive %s", local)
		}
		return shpPath, nil
	default:
		return "", eris.Errorf("unsupported building source %s", local)
	}
}

// sidecarPRJ finds the .prj next to shpPath, tolerating upper-case extensions.
func sidecarPRJ(shpPath string) (string, bool) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".prj", ".PRJ"} {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, true
		}
	}
	return "", false
}
