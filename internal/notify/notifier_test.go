package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	err   error
	sent  int
	title string
	body  string
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.sent++
	f.title = title
	f.body = message
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFansOut(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "trade_disputed", "Trade disputed", "details"))

	assert.Equal(t, 1, a.sent)
	assert.Equal(t, 1, b.sent)
	assert.Equal(t, "Trade disputed", a.title)
	assert.Equal(t, "details", a.body)
}

func TestNotifierEventFilter(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"trade_disputed", " dispute_resolved "}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "trade_created", "t", "m"))
	assert.Equal(t, 0, s.sent, "filtered event must not reach senders")

	require.NoError(t, n.Notify(ctx, "trade_disputed", "t", "m"))
	require.NoError(t, n.Notify(ctx, "dispute_resolved", "t", "m"))
	assert.Equal(t, 2, s.sent)
}

func TestNotifierOneFailureDoesNotBlockOthers(t *testing.T) {
	failing := &fakeSender{name: "telegram", err: errors.New("timeout")}
	ok := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{failing, ok}, nil, testLogger())

	err := n.Notify(context.Background(), "trade_disputed", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Equal(t, 1, ok.sent, "healthy sender still delivers")
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("123:abc", "-100200")
	s.baseURL = srv.URL

	require.NoError(t, s.Send(context.Background(), "Title", "Body"))
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Contains(t, string(gotBody), "-100200")
	assert.Contains(t, string(gotBody), "Title")
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "Title", "Body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
