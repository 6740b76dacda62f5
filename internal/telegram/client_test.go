package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var got []sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "TOKEN", time.Second)
	require.NoError(t, c.SendMessage(context.Background(), 42, "olá"))
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].ChatID)
	assert.Equal(t, "olá", got[0].Text)

	got = nil
	require.NoError(t, c.SendMessage(context.Background(), 42, strings.Repeat("a", 5000)))
	require.Len(t, got, 2)
	assert.Len(t, got[0].Text, 4096)
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "TOKEN", time.Second).SendMessage(context.Background(), 1, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getMe", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"RAG","username":"rag_bot"}}`))
	}))
	defer srv.Close()

	me, err := NewClient(srv.URL+"/", "TOKEN", time.Second).GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rag_bot", me.Username)
	assert.True(t, me.IsBot)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"curto"}, SplitMessage("curto", 10))

	parts := SplitMessage("linha um\nlinha dois\nfim", 12)
	assert.Equal(t, []string{"linha um\n", "linha dois\n", "fim"}, parts)

	parts = SplitMessage(strings.Repeat("é", 25), 10)
	require.Len(t, parts, 3)
	assert.Equal(t, strings.Repeat("é", 10), parts[0])
	assert.Equal(t, strings.Repeat("é", 5), parts[2])
}

func TestIncomingMessage(t *testing.T) {
	var u Update
	require.NoError(t, json.Unmarshal([]byte(`{"update_id":1,"edited_message":{"message_id":2,"chat":{"id":3},"text":"oi"}}`), &u))
	require.NotNil(t, u.IncomingMessage())
	assert.Equal(t, "oi", u.IncomingMessage().Text)
}
