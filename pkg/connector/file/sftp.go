package file

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

func init() {
	_ = registry.Register("sftp", newSFTPConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "sftp",
		Description:  "SFTP directory listing and atomic download over SSH",
		Capabilities: []string{"fetch"},
	})
}

// SFTPConnector lists a remote directory over SSH and downloads every file
// in it to the local lake root.
type SFTPConnector struct {
	*base.BaseConnector
	mu        sync.Mutex
	cfg       map[string]interface{}
	sshConn   *ssh.Client
	client    *sftp.Client
	lakeRoot  string
	basePath  string
	source    string
	connected bool
}

func newSFTPConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "host"); err != nil {
		return nil, err
	}
	return &SFTPConnector{BaseConnector: base.NewBaseConnector("sftp", "1.0.0"), cfg: cfg}, nil
}

// Connect dials the SSH server and opens an SFTP session on top of it.
// Host key verification against a known_hosts file is left to deployment
// config (ssh.ClientConfig.HostKeyCallback has no connection-config
// equivalent in this system); this connector requires
// known_hosts_path to be set rather than silently trusting any host key.
func (c *SFTPConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	host := optionalString(c.cfg, "host", "")
	port := optionalInt(c.cfg, "port", 22)
	user := optionalString(c.cfg, "username", "")
	pass := optionalString(c.cfg, "password", "")

	knownHostsPath := optionalString(c.cfg, "known_hosts_path", "")
	if knownHostsPath == "" {
		return errors.New(errors.ErrorTypeConfig, "missing required key: known_hosts_path")
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load known_hosts_path")
	}

	sshCfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(pass)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	sshConn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", host, port), sshCfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to dial sftp server")
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open sftp session")
	}

	c.mu.Lock()
	c.sshConn = sshConn
	c.client = client
	c.lakeRoot = optionalString(c.cfg, "lake_path", "./lake")
	c.basePath = optionalString(c.cfg, "remote_base_path", "/")
	c.source = optionalString(c.cfg, "source_name", "sftp")
	c.connected = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch lists the directory named by query (or remote_base_path when query
// is empty) and downloads every regular file it finds.
func (c *SFTPConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
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

	entries, err := client.ReadDir(remotePath)
	if err != nil {
		return &model.IngestionResult{
			Protocol: "sftp",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error(), "remote_path": remotePath},
		}, nil
	}

	var items []model.IngestedItem
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		remoteFile := path.Join(remotePath, entry.Name())
		localPath := filepath.Join(partitionDir(lakeRoot, "sftp", source), entry.Name())

		remote, err := client.Open(remoteFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open "+remoteFile)
		}

		size, err := downloadAtomic(localPath, remote)
		_ = remote.Close()
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
		Protocol:  "sftp",
		Success:   true,
		Items:     items,
		Metadata:  map[string]interface{}{"remote_path": remotePath, "downloaded_files": len(items)},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close tears down the SFTP session and the underlying SSH connection.
func (c *SFTPConnector) Close() error {
	c.mu.Lock()
	client, sshConn := c.client, c.sshConn
	c.connected = false
	c.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	if sshConn != nil {
		_ = sshConn.Close()
	}
	return c.BaseConnector.Close()
}
