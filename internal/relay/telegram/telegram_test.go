package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"deadman/internal/relay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type botAPI struct {
	mu    sync.Mutex
	texts []string
	token string
}

func (a *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !strings.HasPrefix(r.URL.Path, "/bot"+a.token+"/") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"deadman","username":"deadman_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		text, _ := body["text"].(string)
		a.mu.Lock()
		a.texts = append(a.texts, text)
		a.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func TestDeliver(t *testing.T) {
	api := &botAPI{token: "123:abc"}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	r := New(Config{Token: "123:abc", APIURL: srv.URL, Timeout: 2 * time.Second, RatePerSec: 100})
	ctx := context.Background()
	sess, err := r.Dial(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Login(ctx))
	require.NoError(t, sess.Deliver(ctx, relay.Message{Subject: "Down", Body: "Host X down", Destination: "42"}))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.texts, 1)
	assert.Equal(t, "Down\n\nHost X down", api.texts[0])
}

func TestDialBadToken(t *testing.T) {
	srv := httptest.NewServer(&botAPI{token: "123:abc"})
	t.Cleanup(srv.Close)

	_, err := New(Config{Token: "999:wrong", APIURL: srv.URL, Timeout: 2 * time.Second}).Dial(context.Background())
	assert.Error(t, err)
}

func TestDeliverInvalidChatIsRejected(t *testing.T) {
	api := &botAPI{token: "t"}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	sess, err := New(Config{Token: "t", APIURL: srv.URL}).Dial(context.Background())
	require.NoError(t, err)

	err = sess.Deliver(context.Background(), relay.Message{Body: "x", Destination: "ops@example.com"})
	assert.True(t, relay.IsRejected(err))
}

func TestText(t *testing.T) {
	assert.Equal(t, "body", Text(relay.Message{Body: "body"}))
	long := strings.Repeat("é", textLimit+10)
	out := Text(relay.Message{Body: long})
	assert.Equal(t, textLimit, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "..."))
}
