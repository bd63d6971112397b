package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jarvis/internal/agenda"
	"jarvis/internal/capture"
)

func TestFormatConfirmation(t *testing.T) {
	t.Run("capture", func(t *testing.T) {
		got := FormatConfirmation(capture.Confirmation{
			Project:  "Marca personal",
			Priority: capture.PriorityMedia,
			Summary:  "Escribir post sobre SEO técnico",
			Section:  "Semana",
			Kind:     capture.KindTarea,
			TaskID:   "task-1",
		})

		assert.Contains(t, got, "✅ Capturado en Asana")
		assert.Contains(t, got, "📁 Proyecto: Marca personal")
		assert.Contains(t, got, "📌 Prioridad: media → Semana")
		assert.Contains(t, got, `"Escribir post sobre SEO técnico"`)
	})

	t.Run("priority emoji per bucket", func(t *testing.T) {
		alta := FormatConfirmation(capture.Confirmation{Priority: capture.PriorityAlta, Section: "Hoy"})
		baja := FormatConfirmation(capture.Confirmation{Priority: capture.PriorityBaja, Section: "Backlog"})
		assert.Contains(t, alta, "🔥 Prioridad: alta → Hoy")
		assert.Contains(t, baja, "💤 Prioridad: baja → Backlog")
	})

	t.Run("duplicate", func(t *testing.T) {
		got := FormatConfirmation(capture.Confirmation{Duplicate: true})
		assert.Equal(t, "⏭️ Este mensaje ya fue procesado anteriormente.", got)
	})
}

func TestFormatTranscribedConfirmation(t *testing.T) {
	got := FormatTranscribedConfirmation("comprar pasajes", capture.Confirmation{
		Project:  "Nomadic",
		Priority: capture.PriorityAlta,
		Summary:  "Comprar pasajes",
		Section:  "Hoy",
		Kind:     capture.KindTarea,
	})
	assert.Contains(t, got, "🎤 Transcripción:\n\"comprar pasajes\"")
	assert.Contains(t, got, "✅ Capturado en Asana")

	dup := FormatTranscribedConfirmation("lo que sea", capture.Confirmation{Duplicate: true})
	assert.Equal(t, "⏭️ Este audio ya fue procesado anteriormente.", dup)
}

func TestFormatSectionListing(t *testing.T) {
	t.Run("empty sections", func(t *testing.T) {
		assert.Equal(t, "🎉 No tenés tareas pendientes para hoy", FormatSectionListing("Hoy", nil))
		assert.Equal(t, "🎉 No tenés tareas pendientes para esta semana", FormatSectionListing("Semana", nil))
		assert.Equal(t, "🎉 No tenés tareas pendientes", FormatSectionListing("Backlog", nil))
	})

	t.Run("listing", func(t *testing.T) {
		got := FormatSectionListing("Hoy", []agenda.Item{
			{Name: "Llamar al cliente", Project: "Nomadic", PriorityMarker: "🔴"},
			{Name: "Pedir turno médico", Project: "Personal", PriorityMarker: "🟢"},
		})
		assert.Contains(t, got, "📋 Tareas para hoy (2)")
		assert.Contains(t, got, "🔴 Nomadic — Llamar al cliente")
		assert.Contains(t, got, "🟢 Personal — Pedir turno médico")
	})
}

func TestFormatDoneListing(t *testing.T) {
	got := FormatDoneListing([]agenda.Item{
		{Name: "Llamar al cliente", Section: "Hoy", PriorityMarker: "🔴"},
		{Name: "Escribir post", Section: "Semana", PriorityMarker: "🟡"},
	})
	assert.Contains(t, got, "📋 ¿Cuál completaste?")
	assert.Contains(t, got, "1. 🔴 Hoy — Llamar al cliente")
	assert.Contains(t, got, "2. 🟡 Semana — Escribir post")
}

func TestFormatWeeklySummary(t *testing.T) {
	from := time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	t.Run("with completions and overdue", func(t *testing.T) {
		got := FormatWeeklySummary(&agenda.Summary{
			From: from,
			To:   to,
			Completed: []agenda.Item{
				{Name: "Enviar propuesta", Project: "Adquisición"},
				{Name: "Publicar post", Project: "Marca personal"},
			},
			ByProject: map[string]int{"Adquisición": 1, "Marca personal": 1},
			Overdue: []agenda.OverdueItem{
				{Name: "Renovar pasaporte", Project: "Personal", DueOn: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)},
			},
		})

		assert.Contains(t, got, "📊 Resumen semanal (2026-02-24 a 2026-03-02)")
		assert.Contains(t, got, "✅ Completadas (2):")
		assert.Contains(t, got, "• Adquisición — Enviar propuesta")
		assert.Contains(t, got, "• Adquisición: 1")
		assert.Contains(t, got, "⚠️ Vencidas (1):")
		assert.Contains(t, got, "• Personal — Renovar pasaporte (vencía 2026-02-27)")
	})

	t.Run("empty week", func(t *testing.T) {
		got := FormatWeeklySummary(&agenda.Summary{From: from, To: to, ByProject: map[string]int{}})
		assert.Contains(t, got, "Sin tareas completadas esta semana.")
		assert.NotContains(t, got, "Vencidas")
	})
}
