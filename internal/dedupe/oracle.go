package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/gardenproof/fieldsync/internal/logging"
)

// Oracle answers whether an operation with the given content hash has
// already been committed remotely.
type Oracle interface {
	Exists(ctx context.Context, hash string) (bool, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, hash string) (bool, error)

// Exists implements Oracle.
func (f OracleFunc) Exists(ctx context.Context, hash string) (bool, error) {
	return f(ctx, hash)
}

// Manager wraps an Oracle with the engine's fail-open duplicate policy.
type Manager struct {
	oracle Oracle
	log    *zap.SugaredLogger
}

// NewManager creates a Manager. A nil logger discards log output.
func NewManager(oracle Oracle, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{oracle: oracle, log: log}
}

// IsRemoteDuplicate reports whether the hash is already committed remotely.
// Any oracle or network error is treated as "not a duplicate": a duplicate
// on-chain record can be filtered downstream, while a silently dropped
// submission destroys user trust. The error is logged, never surfaced.
func (m *Manager) IsRemoteDuplicate(ctx context.Context, hash string) bool {
	if m.oracle == nil {
		return false
	}

	exists, err := m.oracle.Exists(ctx, hash)
	if err != nil {
		m.log.Warnw("duplicate check failed, treating as not duplicate",
			"content_hash", hash, "error", err)
		return false
	}
	return exists
}

// HTTPOracle queries a remote duplicate endpoint over HTTP.
// GET {endpoint}?hash={hash} is expected to return {"exists": bool}.
type HTTPOracle struct {
	endpoint string
	client   *http.Client
}

// NewHTTPOracle creates an HTTPOracle for the given endpoint.
func NewHTTPOracle(endpoint string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPOracle{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Exists implements Oracle.
func (o *HTTPOracle) Exists(ctx context.Context, hash string) (bool, error) {
	reqURL := o.endpoint + "?hash=" + url.QueryEscape(hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("build oracle request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("query duplicate oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("duplicate oracle returned status %d", resp.StatusCode)
	}

	var body struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode oracle response: %w", err)
	}

	return body.Exists, nil
}
