package asana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/capture"
)

// fakeBoard serves the discovery endpoints of one project board and counts
// how often discovery runs.
type fakeBoard struct {
	sections  []NamedResource
	fieldGID  string
	fieldName string
	options   []map[string]any

	sectionCalls atomic.Int64
	projectCalls atomic.Int64
}

func (f *fakeBoard) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects/p1/sections", func(w http.ResponseWriter, r *http.Request) {
		f.sectionCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": f.sections})
	})
	mux.HandleFunc("GET /projects/p1", func(w http.ResponseWriter, r *http.Request) {
		f.projectCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"custom_field_settings": []map[string]any{{
				"custom_field": map[string]any{
					"gid":          f.fieldGID,
					"name":         f.fieldName,
					"enum_options": f.options,
				},
			}},
		}})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"gid": "user-1", "name": "Dev",
		}})
	})
	return mux
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		sections: []NamedResource{
			{GID: "sec-hoy", Name: "🔥 Hoy"},
			{GID: "sec-semana", Name: "📅 Semana"},
			{GID: "sec-backlog", Name: "Backlog"},
			{GID: "sec-hecho", Name: "✅ Hecho"},
		},
		fieldGID:  "field-proyecto",
		fieldName: "Proyecto",
		options: []map[string]any{
			{"gid": "opt-nomadic", "name": "🧭 Nomadic", "enabled": true},
			{"gid": "opt-personal", "name": "Personal", "enabled": true},
			{"gid": "opt-old", "name": "Archivado", "enabled": false},
		},
	}
}

func newTestDirectory(t *testing.T, board *fakeBoard, cachePath string) *Directory {
	t.Helper()
	server := httptest.NewServer(board.handler())
	t.Cleanup(server.Close)

	client := NewClientWithConfig(ClientConfig{
		AccessToken: "test-token",
		BaseURL:     server.URL,
		Timeout:     5 * time.Second,
	})
	return NewDirectory(client, "p1", "Proyecto", cachePath, nil)
}

func TestResolveSection(t *testing.T) {
	ctx := context.Background()

	t.Run("exact name", func(t *testing.T) {
		d := newTestDirectory(t, newFakeBoard(), "")
		gid, err := d.ResolveSection(ctx, "Backlog")
		require.NoError(t, err)
		assert.Equal(t, "sec-backlog", gid)
	})

	t.Run("emoji-prefixed board name matches the short name", func(t *testing.T) {
		d := newTestDirectory(t, newFakeBoard(), "")
		gid, err := d.ResolveSection(ctx, "Hoy")
		require.NoError(t, err)
		assert.Equal(t, "sec-hoy", gid)
	})

	t.Run("repeated resolutions reuse one discovery", func(t *testing.T) {
		board := newFakeBoard()
		d := newTestDirectory(t, board, "")

		for _, name := range []string{"Hoy", "Semana", "Backlog", "Hoy"} {
			_, err := d.ResolveSection(ctx, name)
			require.NoError(t, err)
		}
		assert.Equal(t, int64(1), board.sectionCalls.Load())
	})

	t.Run("unknown section refreshes once then fails", func(t *testing.T) {
		board := newFakeBoard()
		d := newTestDirectory(t, board, "")

		_, err := d.ResolveSection(ctx, "Algún día")
		require.Error(t, err)
		assert.True(t, capture.IsUnknownCategory(err))
		assert.Equal(t, int64(2), board.sectionCalls.Load(), "a miss triggers exactly one refresh")
	})

	t.Run("section added on the board is found after the refresh", func(t *testing.T) {
		board := newFakeBoard()
		d := newTestDirectory(t, board, "")

		// Prime the cache, then add the section remotely.
		_, err := d.ResolveSection(ctx, "Hoy")
		require.NoError(t, err)
		board.sections = append(board.sections, NamedResource{GID: "sec-nueva", Name: "Nueva"})

		gid, err := d.ResolveSection(ctx, "Nueva")
		require.NoError(t, err)
		assert.Equal(t, "sec-nueva", gid)
	})
}

func TestResolveProjectOption(t *testing.T) {
	ctx := context.Background()

	t.Run("returns field and option GIDs", func(t *testing.T) {
		d := newTestDirectory(t, newFakeBoard(), "")
		fieldGID, optionGID, err := d.ResolveProjectOption(ctx, "Nomadic")
		require.NoError(t, err)
		assert.Equal(t, "field-proyecto", fieldGID)
		assert.Equal(t, "opt-nomadic", optionGID, "emoji-prefixed option matches the bare name")
	})

	t.Run("disabled options are invisible", func(t *testing.T) {
		d := newTestDirectory(t, newFakeBoard(), "")
		_, _, err := d.ResolveProjectOption(ctx, "Archivado")
		require.Error(t, err)
		assert.True(t, capture.IsUnknownCategory(err))
	})
}

func TestOwnerGID(t *testing.T) {
	d := newTestDirectory(t, newFakeBoard(), "")
	owner, err := d.OwnerGID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)
}

func TestDirectoryCacheFile(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "directory.json")

	board := newFakeBoard()
	d := newTestDirectory(t, board, cachePath)
	_, err := d.ResolveSection(ctx, "Hoy")
	require.NoError(t, err)
	require.FileExists(t, cachePath)

	t.Run("fresh directory loads the snapshot without hitting the API", func(t *testing.T) {
		board2 := newFakeBoard()
		d2 := newTestDirectory(t, board2, cachePath)

		gid, err := d2.ResolveSection(ctx, "Semana")
		require.NoError(t, err)
		assert.Equal(t, "sec-semana", gid)
		assert.Equal(t, int64(0), board2.sectionCalls.Load())
	})

	t.Run("corrupt snapshot falls back to discovery", func(t *testing.T) {
		require.NoError(t, os.WriteFile(cachePath, []byte("{not json"), 0644))

		board3 := newFakeBoard()
		d3 := newTestDirectory(t, board3, cachePath)

		gid, err := d3.ResolveSection(ctx, "Hoy")
		require.NoError(t, err)
		assert.Equal(t, "sec-hoy", gid)
		assert.Equal(t, int64(1), board3.sectionCalls.Load())
	})

	t.Run("refresh rewrites the snapshot", func(t *testing.T) {
		require.NoError(t, d.Refresh(ctx))
		data, err := os.ReadFile(cachePath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "sec-hoy")
	})
}
