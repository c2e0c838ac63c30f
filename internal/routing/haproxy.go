// internal/routing/haproxy.go
package routing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// HAProxy applies configuration by replacing the config file atomically and
// running the configured reload command (typically a systemctl or ansible
// wrapper). It also exposes the stats endpoint for health probing.
type HAProxy struct {
	configPath string
	reloadCmd  []string
	statsURL   string
	client     *http.Client
	logger     *zap.Logger
}

// NewHAProxy creates the collaborator.
func NewHAProxy(configPath string, reloadCmd []string, statsURL string, logger *zap.Logger) *HAProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HAProxy{
		configPath: configPath,
		reloadCmd:  reloadCmd,
		statsURL:   statsURL,
		client:     &http.Client{},
		logger:     logger,
	}
}

// Apply writes the configuration file via temp file + rename so the proxy
// never reads a partial config.
func (h *HAProxy) Apply(_ context.Context, cfg []byte) error {
	dir := filepath.Dir(h.configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("routing: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".haproxy-*.cfg")
	if err != nil {
		return fmt.Errorf("routing: create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(cfg); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("routing: write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("routing: close temp config: %w", err)
	}

	if err := os.Rename(tmpName, h.configPath); err != nil {
		return fmt.Errorf("routing: replace %s: %w", h.configPath, err)
	}
	return nil
}

// Reload runs the configured reload command and inspects only its exit
// status.
func (h *HAProxy) Reload(ctx context.Context) error {
	if len(h.reloadCmd) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, h.reloadCmd[0], h.reloadCmd[1:]...) // #nosec G204 - operator-configured command
	out, err := cmd.CombinedOutput()
	if err != nil {
		h.logger.Error("proxy reload failed",
			zap.Strings("command", h.reloadCmd),
			zap.ByteString("output", out),
			zap.Error(err))
		return fmt.Errorf("routing: reload command %v: %w", h.reloadCmd, err)
	}
	return nil
}

// Stats fetches the proxy's stats page in CSV form.
func (h *HAProxy) Stats(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.statsURL+";csv", nil)
	if err != nil {
		return nil, fmt.Errorf("routing: build stats request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing: fetch stats: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing: stats endpoint returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
