package dedupe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPOracleExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		hash := r.URL.Query().Get("hash")
		w.Header().Set("Content-Type", "application/json")
		if hash == "known" {
			w.Write([]byte(`{"exists": true}`))
			return
		}
		w.Write([]byte(`{"exists": false}`))
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(srv.URL, 5*time.Second)

	exists, err := oracle.Exists(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = oracle.Exists(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHTTPOracleNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(srv.URL, 5*time.Second)
	_, err := oracle.Exists(context.Background(), "any")
	assert.Error(t, err)
}

func TestManagerFailsOpenOnOracleError(t *testing.T) {
	failing := OracleFunc(func(ctx context.Context, hash string) (bool, error) {
		return false, errors.New("network unreachable")
	})

	m := NewManager(failing, nil)
	assert.False(t, m.IsRemoteDuplicate(context.Background(), "abc"))
}

func TestManagerReportsDuplicates(t *testing.T) {
	oracle := OracleFunc(func(ctx context.Context, hash string) (bool, error) {
		return hash == "dup", nil
	})

	m := NewManager(oracle, nil)
	assert.True(t, m.IsRemoteDuplicate(context.Background(), "dup"))
	assert.False(t, m.IsRemoteDuplicate(context.Background(), "fresh"))
}

func TestManagerWithoutOracleNeverReportsDuplicates(t *testing.T) {
	m := NewManager(nil, nil)
	assert.False(t, m.IsRemoteDuplicate(context.Background(), "anything"))
}
