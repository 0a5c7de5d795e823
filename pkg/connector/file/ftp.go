package file

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

func init() {
	_ = registry.Register("ftp", newFTPConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "ftp",
		Description:  "FTP directory listing and atomic download",
		Capabilities: []string{"fetch"},
	})
}

// FTPConnector lists a remote directory and downloads every file in it to
// the local lake root.
type FTPConnector struct {
	*base.BaseConnector
	mu        sync.Mutex
	cfg       map[string]interface{}
	client    *ftp.ServerConn
	lakeRoot  string
	basePath  string
	source    string
	connected bool
}

func newFTPConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "host"); err != nil {
		return nil, err
	}
	return &FTPConnector{BaseConnector: base.NewBaseConnector("ftp", "1.0.0"), cfg: cfg}, nil
}

// Connect logs in and sets passive/active mode from config.
func (c *FTPConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	host := optionalString(c.cfg, "host", "")
	port := optionalInt(c.cfg, "port", 21)
	user := optionalString(c.cfg, "username", "anonymous")
	pass := optionalString(c.cfg, "password", "")

	client, err := ftp.Dial(fmt.Sprintf("%s:%d", host, port), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to dial ftp server")
	}
	if err := client.Login(user, pass); err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "ftp login failed")
	}

	c.mu.Lock()
	c.client = client
	c.lakeRoot = optionalString(c.cfg, "lake_path", "./lake")
	c.basePath = optionalString(c.cfg, "remote_base_path", "/")
	c.source = optionalString(c.cfg, "source_name", "ftp")
	c.connected = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch lists the directory named by query (or remote_base_path when query
// is empty) and downloads every regular file entry it finds; directories
// and links are skipped.
func (c *FTPConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	connected, client, lakeRoot, basePath, source := c.connected, c.client, c.lakeRoot, c.basePath, c.source
	c.mu.Unlock()

	if !connected {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}

	remotePath := strings.TrimSpace(query)
	if remotePath == "" {
		remotePath = basePath
	}

	entries, err := client.List(remotePath)
	if err != nil {
		return &model.IngestionResult{
			Protocol: "ftp",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error(), "remote_path": remotePath},
		}, nil
	}

	var items []model.IngestedItem
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}

		remoteFile := path.Join(remotePath, entry.Name)
		localPath := filepath.Join(partitionDir(lakeRoot, "ftp", source), entry.Name)

		resp, err := client.Retr(remoteFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to retrieve "+remoteFile)
		}

		size, err := downloadAtomic(localPath, resp)
		_ = resp.Close()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to download "+remoteFile)
		}

		items = append(items, model.IngestedItem{
			Kind:          model.KindPreStaged,
			PreStagedPath: localPath,
		})
		c.GetLogger().Debug("downloaded file", zap.String("remote_path", remoteFile), zap.Int64("size_bytes", size))
	}

	return &model.IngestionResult{
		Protocol: "ftp",
		Success:  true,
		Items:    items,
		Metadata: map[string]interface{}{"remote_path": remotePath, "downloaded_files": len(items)},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close quits the FTP session.
func (c *FTPConnector) Close() error {
	c.mu.Lock()
	client := c.client
	c.connected = false
	c.mu.Unlock()

	if client != nil {
		_ = client.Quit()
	}
	return c.BaseConnector.Close()
}
