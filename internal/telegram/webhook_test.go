package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookServer(t *testing.T) {
	f := newBotFixture(t, 0)
	server := NewWebhookServer(f.bot, "127.0.0.1:0", "/telegram/webhook", nil)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		return rec
	}

	t.Run("update reaches the pipeline", func(t *testing.T) {
		rec := post(`{"update_id": 1, "message": {"message_id": 42, "chat": {"id": 7}, "text": "comprar pasajes"}}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		require.Len(t, f.pipe.captures, 1)
		assert.Equal(t, "42", f.pipe.captures[0].msg.ExternalID)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		rec := post(`{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("health endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
