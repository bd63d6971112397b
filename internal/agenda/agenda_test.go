package agenda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/asana"
)

// boardFixture serves a project board with fixed sections and per-section
// task lists.
type boardFixture struct {
	tasks map[string][]map[string]any // section GID -> tasks

	completed atomic.Int64
	moved     atomic.Int64
}

func (b *boardFixture) handler() http.Handler {
	sections := []map[string]any{
		{"gid": "sec-hoy", "name": "🔥 Hoy"},
		{"gid": "sec-semana", "name": "📅 Semana"},
		{"gid": "sec-backlog", "name": "Backlog"},
		{"gid": "sec-hecho", "name": "✅ Hecho"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects/p1/sections", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": sections})
	})
	mux.HandleFunc("GET /projects/p1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"custom_field_settings": []map[string]any{{
				"custom_field": map[string]any{
					"gid":  "field-proyecto",
					"name": "Proyecto",
					"enum_options": []map[string]any{
						{"gid": "opt-nomadic", "name": "🧭 Nomadic", "enabled": true},
					},
				},
			}},
		}})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"gid": "user-1"}})
	})
	mux.HandleFunc("GET /sections/{gid}/tasks", func(w http.ResponseWriter, r *http.Request) {
		tasks := b.tasks[r.PathValue("gid")]
		if tasks == nil {
			tasks = []map[string]any{}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": tasks})
	})
	mux.HandleFunc("PUT /tasks/{gid}", func(w http.ResponseWriter, r *http.Request) {
		b.completed.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"gid": r.PathValue("gid")}})
	})
	mux.HandleFunc("POST /sections/{gid}/addTask", func(w http.ResponseWriter, r *http.Request) {
		b.moved.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
	})
	return mux
}

func projectField(name string) []map[string]any {
	return []map[string]any{{
		"name":       "Proyecto",
		"enum_value": map[string]any{"name": name},
	}}
}

func newTestAgenda(t *testing.T, b *boardFixture) *Agenda {
	t.Helper()
	server := httptest.NewServer(b.handler())
	t.Cleanup(server.Close)

	client := asana.NewClientWithConfig(asana.ClientConfig{
		AccessToken: "test-token",
		BaseURL:     server.URL,
		Timeout:     5 * time.Second,
	})
	directory := asana.NewDirectory(client, "p1", "Proyecto", "", nil)
	return New(client, directory, "Proyecto", nil)
}

func TestListSection(t *testing.T) {
	b := &boardFixture{tasks: map[string][]map[string]any{
		"sec-hoy": {
			{
				"gid": "t1", "name": "Llamar al cliente",
				"notes":         "Fuente: telegram\nTipo: tarea\nPrioridad: 🔴 alta\nProyecto: Nomadic",
				"custom_fields": projectField("🧭 Nomadic"),
			},
			{
				"gid": "t2", "name": "Ya hecha", "completed": true,
			},
			{
				"gid": "t3", "name": "Sin metadatos",
			},
		},
	}}
	a := newTestAgenda(t, b)

	items, err := a.ListSection(context.Background(), "Hoy")
	require.NoError(t, err)
	require.Len(t, items, 2, "completed tasks are excluded")

	assert.Equal(t, "Llamar al cliente", items[0].Name)
	assert.Equal(t, "Nomadic", items[0].Project, "emoji prefix is stripped from the field value")
	assert.Equal(t, "🔴", items[0].PriorityMarker)
	assert.Equal(t, "Hoy", items[0].Section)

	assert.Equal(t, "Sin proyecto", items[1].Project)
	assert.Equal(t, "•", items[1].PriorityMarker)
}

func TestListSection_ProjectFromNotesFallback(t *testing.T) {
	b := &boardFixture{tasks: map[string][]map[string]any{
		"sec-semana": {{
			"gid": "t1", "name": "Tarea vieja",
			"notes": "Fuente: telegram\nTipo: tarea\nPrioridad: 🟡 media\nProyecto: Docencia",
		}},
	}}
	a := newTestAgenda(t, b)

	items, err := a.ListSection(context.Background(), "Semana")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Docencia", items[0].Project)
}

func TestListActive(t *testing.T) {
	b := &boardFixture{tasks: map[string][]map[string]any{
		"sec-hoy":     {{"gid": "t1", "name": "A"}},
		"sec-semana":  {{"gid": "t2", "name": "B"}},
		"sec-backlog": {{"gid": "t3", "name": "C"}},
		"sec-hecho":   {{"gid": "t4", "name": "D", "completed": true}},
	}}
	a := newTestAgenda(t, b)

	items, err := a.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3, "the done section is not part of the active list")
	assert.Equal(t, "Hoy", items[0].Section)
	assert.Equal(t, "Backlog", items[2].Section)
}

func TestComplete(t *testing.T) {
	b := &boardFixture{tasks: map[string][]map[string]any{}}
	a := newTestAgenda(t, b)

	require.NoError(t, a.Complete(context.Background(), "t1"))
	assert.Equal(t, int64(1), b.completed.Load())
	assert.Equal(t, int64(1), b.moved.Load(), "completion files the task into the done section")
}

func TestWeeklySummary(t *testing.T) {
	today := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	b := &boardFixture{tasks: map[string][]map[string]any{
		"sec-hecho": {
			{
				"gid": "d1", "name": "Enviar propuesta", "completed": true,
				"completed_at":  "2026-03-01T10:00:00Z",
				"custom_fields": projectField("Adquisición"),
			},
			{
				"gid": "d2", "name": "Post antiguo", "completed": true,
				"completed_at":  "2026-02-10T10:00:00Z",
				"custom_fields": projectField("Marca personal"),
			},
			{
				"gid": "d3", "name": "Publicar post", "completed": true,
				"completed_at":  "2026-02-26T08:00:00Z",
				"custom_fields": projectField("Marca personal"),
			},
		},
		"sec-hoy": {
			{
				"gid": "v1", "name": "Renovar pasaporte", "due_on": "2026-02-27",
				"custom_fields": projectField("Personal"),
			},
			{
				"gid": "ok1", "name": "Con tiempo", "due_on": "2026-03-09",
			},
		},
	}}
	a := newTestAgenda(t, b)

	summary, err := a.WeeklySummary(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC), summary.From)
	require.Len(t, summary.Completed, 2, "completions outside the window are excluded")
	assert.Equal(t, "Enviar propuesta", summary.Completed[0].Name, "sorted by project then name")
	assert.Equal(t, map[string]int{"Adquisición": 1, "Marca personal": 1}, summary.ByProject)

	require.Len(t, summary.Overdue, 1)
	assert.Equal(t, "Renovar pasaporte", summary.Overdue[0].Name)
	assert.Equal(t, "Personal", summary.Overdue[0].Project)
}

func TestFindByText(t *testing.T) {
	items := []Item{
		{TaskGID: "t1", Name: "Llamar al cliente de Nomadic"},
		{TaskGID: "t2", Name: "Llamar"},
		{TaskGID: "t3", Name: "Escribir post"},
	}

	t.Run("best proportional match wins", func(t *testing.T) {
		got, err := FindByText(items, "llamar")
		require.NoError(t, err)
		assert.Equal(t, "t2", got.TaskGID, "the shorter name is a tighter match")
	})

	t.Run("case insensitive substring", func(t *testing.T) {
		got, err := FindByText(items, "POST")
		require.NoError(t, err)
		assert.Equal(t, "t3", got.TaskGID)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := FindByText(items, "inexistente")
		assert.Error(t, err)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := FindByText(items, "   ")
		assert.Error(t, err)
	})
}
