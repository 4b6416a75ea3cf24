package custody

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

func TestWalletRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/42/wallets/ethereum", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"wallet_id":"w-123","address":"0xabc"}`))
	}))
	defer srv.Close()

	d := NewHTTPDirectory(srv.URL, "key", time.Second)
	ref, err := d.WalletRef(context.Background(), 42, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "w-123", ref)
}

func TestWalletRefNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewHTTPDirectory(srv.URL, "", time.Second)
	_, err := d.WalletRef(context.Background(), 42, "ethereum")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWalletRefEmptyWalletID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"address":"0xabc"}`))
	}))
	defer srv.Close()

	d := NewHTTPDirectory(srv.URL, "", time.Second)
	_, err := d.WalletRef(context.Background(), 42, "ethereum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty wallet_id")
}
