// Package file implements the file-server connector family (FTP, SFTP,
// WebDAV). The FTP and SFTP connectors list a remote directory and
// download each regular file in it to the local lake root, returning one
// pre-staged IngestedItem per file so the staging writer passes the path
// through unchanged instead of re-serializing already-columnar or opaque
// files. The WebDAV connector downloads a single file the same way; for a
// directory it returns one row item listing the entry names and downloads
// nothing.
package file

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
)

func requireString(cfg map[string]interface{}, key string) (string, error) {
	v, _ := cfg[key].(string)
	if v == "" {
		return "", errors.New(errors.ErrorTypeConfig, "missing required key: "+key)
	}
	return v, nil
}

func optionalString(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optionalInt(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func optionalBool(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

// downloadAtomic writes everything read from src to a temp sibling of
// localPath, then renames it into place. A failed or partial download never
// leaves a truncated file at localPath, unlike writing directly to the
// destination name.
func downloadAtomic(localPath string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create lake directory: %w", err)
	}

	suffix, err := randomSuffix()
	if err != nil {
		return 0, err
	}
	tmpPath := localPath + ".part-" + suffix

	f, err := os.Create(tmpPath) //nolint:gosec // G304: tmpPath is this download's own deterministic staging target
	if err != nil {
		return 0, fmt.Errorf("failed to create temp download file: %w", err)
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to download file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temp download file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to finalize downloaded file: %w", err)
	}

	return n, nil
}

// partitionDir builds the date-partitioned directory a downloaded file lands
// in, mirroring the scheme pkg/staging's writer uses for connector-produced
// rows: <lakeRoot>/<protocol>/<source>/<YYYY-MM-DD>.
func partitionDir(lakeRoot, protocol, source string) string {
	return filepath.Join(lakeRoot, protocol, safeName(source), time.Now().UTC().Format("2006-01-02"))
}

func safeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	name = strings.ReplaceAll(name, ".", "_")
	return name
}

func randomSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate temp file suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
