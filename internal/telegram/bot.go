// Package telegram is the capture surface: it receives text and voice
// messages, runs them through the capture pipeline, and answers agenda
// commands.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"jarvis/internal/agenda"
	"jarvis/internal/capture"
)

// CapturePipeline is the slice of the capture pipeline the bot drives.
type CapturePipeline interface {
	Capture(ctx context.Context, msg capture.Message) (*capture.Confirmation, error)
}

// Transcriber converts downloaded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Refresher re-discovers the Asana category directory.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// doneState tracks a chat's position in the /done conversation.
type doneState struct {
	tasks    []agenda.Item
	selected *agenda.Item
}

// Bot routes Telegram updates to the capture pipeline and agenda.
type Bot struct {
	api           *API
	pipeline      CapturePipeline
	agenda        *agenda.Agenda
	transcriber   Transcriber
	refresher     Refresher
	allowedChatID int64
	pollTimeout   time.Duration
	logger        *zap.Logger

	mu   sync.Mutex
	done map[int64]*doneState
}

// BotConfig wires the bot's collaborators.
type BotConfig struct {
	API           *API
	Pipeline      CapturePipeline
	Agenda        *agenda.Agenda
	Transcriber   Transcriber
	Refresher     Refresher
	AllowedChatID int64
	PollTimeout   time.Duration
	Logger        *zap.Logger
}

// NewBot creates the bot.
func NewBot(config BotConfig) (*Bot, error) {
	if config.API == nil {
		return nil, fmt.Errorf("telegram API client is required")
	}
	if config.Pipeline == nil {
		return nil, fmt.Errorf("capture pipeline is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 50 * time.Second
	}
	return &Bot{
		api:           config.API,
		pipeline:      config.Pipeline,
		agenda:        config.Agenda,
		transcriber:   config.Transcriber,
		refresher:     config.Refresher,
		allowedChatID: config.AllowedChatID,
		pollTimeout:   config.PollTimeout,
		logger:        config.Logger,
		done:          make(map[int64]*doneState),
	}, nil
}

// Run long-polls for updates until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram bot listening", zap.Duration("poll_timeout", b.pollTimeout))

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.api.GetUpdates(ctx, offset, int(b.pollTimeout.Seconds()))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches a single update. Both the poller and the webhook
// server enter here.
func (b *Bot) HandleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	if b.allowedChatID != 0 && msg.Chat.ID != b.allowedChatID {
		b.logger.Warn("message from unexpected chat", zap.Int64("chat_id", msg.Chat.ID))
		return
	}

	switch {
	case strings.HasPrefix(msg.Text, "/"):
		b.handleCommand(ctx, msg)
	case msg.Voice != nil:
		b.handleVoice(ctx, msg, msg.Voice, "telegram_voz", "voice.ogg")
	case msg.Audio != nil:
		b.handleVoice(ctx, msg, msg.Audio, "telegram_audio", "audio.ogg")
	case msg.Text != "":
		// An active /done conversation consumes plain text first.
		if b.continueDone(ctx, msg) {
			return
		}
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleText(ctx context.Context, msg *Message) {
	b.logger.Info("text received", zap.Int64("message_id", msg.MessageID))

	conf, err := b.pipeline.Capture(ctx, capture.Message{
		Source:     "telegram",
		ExternalID: strconv.FormatInt(msg.MessageID, 10),
		Text:       msg.Text,
		ReceivedAt: time.Unix(msg.Date, 0).UTC(),
	})
	if err != nil {
		b.logger.Error("capture failed", zap.Error(err))
		b.reply(ctx, msg.Chat.ID, "❌ Error procesando mensaje: "+shortError(err))
		return
	}
	b.reply(ctx, msg.Chat.ID, FormatConfirmation(*conf))
}

func (b *Bot) handleVoice(ctx context.Context, msg *Message, voice *Voice, source, filename string) {
	b.logger.Info("audio received",
		zap.Int64("message_id", msg.MessageID),
		zap.String("source", source))

	if b.transcriber == nil {
		b.reply(ctx, msg.Chat.ID, "❌ La transcripción de audio no está configurada.")
		return
	}

	processing, err := b.api.SendMessage(ctx, msg.Chat.ID, "🎤 Transcribiendo audio...")
	if err != nil {
		b.logger.Warn("could not send processing notice", zap.Error(err))
	}

	respond := func(text string) {
		if processing != nil {
			if err := b.api.EditMessageText(ctx, msg.Chat.ID, processing.MessageID, text); err == nil {
				return
			}
		}
		b.reply(ctx, msg.Chat.ID, text)
	}

	audio, err := b.api.DownloadFile(ctx, voice.FileID)
	if err != nil {
		b.logger.Error("audio download failed", zap.Error(err))
		respond("❌ Error procesando audio: " + shortError(err))
		return
	}

	text, err := b.transcriber.Transcribe(ctx, filename, bytes.NewReader(audio))
	if err != nil {
		b.logger.Error("transcription failed", zap.Error(err))
		respond("❌ Error procesando audio: " + shortError(err))
		return
	}

	conf, err := b.pipeline.Capture(ctx, capture.Message{
		Source:     source,
		ExternalID: strconv.FormatInt(msg.MessageID, 10),
		Text:       text,
		AudioRef:   voice.FileID,
		ReceivedAt: time.Unix(msg.Date, 0).UTC(),
	})
	if err != nil {
		b.logger.Error("capture failed", zap.Error(err))
		respond("❌ Error procesando audio: " + shortError(err))
		return
	}
	respond(FormatTranscribedConfirmation(text, *conf))
}

func (b *Bot) handleCommand(ctx context.Context, msg *Message) {
	command, args, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	command, _, _ = strings.Cut(command, "@")
	args = strings.TrimSpace(args)

	switch command {
	case "/start":
		b.reply(ctx, msg.Chat.ID,
			"🤖 Jarvis activo.\n\n"+
				"Mandame texto o notas de voz y los cargo automáticamente como tareas en Asana.\n\n"+
				"Comandos:\n"+
				"/start — Este mensaje\n"+
				"/refresh — Recargar configuración de Asana\n"+
				"/hoy — Tareas para hoy\n"+
				"/semana — Tareas para esta semana\n"+
				"/done — Marcar una tarea como completada\n"+
				"/resumen — Resumen semanal")
	case "/refresh":
		b.cmdRefresh(ctx, msg.Chat.ID)
	case "/hoy":
		b.cmdListSection(ctx, msg.Chat.ID, "Hoy")
	case "/semana":
		b.cmdListSection(ctx, msg.Chat.ID, "Semana")
	case "/done":
		b.cmdDone(ctx, msg.Chat.ID, args)
	case "/resumen":
		b.cmdSummary(ctx, msg.Chat.ID)
	case "/cancel":
		b.cmdCancel(ctx, msg.Chat.ID)
	default:
		b.reply(ctx, msg.Chat.ID, "Comando desconocido. Probá /start.")
	}
}

func (b *Bot) cmdRefresh(ctx context.Context, chatID int64) {
	if b.refresher == nil {
		b.reply(ctx, chatID, "❌ Error recargando: sin directorio configurado")
		return
	}
	if err := b.refresher.Refresh(ctx); err != nil {
		b.logger.Error("refresh failed", zap.Error(err))
		b.reply(ctx, chatID, "❌ Error recargando: "+shortError(err))
		return
	}
	b.reply(ctx, chatID, "🔄 IDs de Asana recargados correctamente.")
}

func (b *Bot) cmdListSection(ctx context.Context, chatID int64, section string) {
	items, err := b.agenda.ListSection(ctx, section)
	if err != nil {
		b.logger.Error("section listing failed", zap.String("section", section), zap.Error(err))
		b.reply(ctx, chatID, "❌ Error consultando tareas: "+shortError(err))
		return
	}
	b.reply(ctx, chatID, FormatSectionListing(section, items))
}

func (b *Bot) cmdSummary(ctx context.Context, chatID int64) {
	summary, err := b.agenda.WeeklySummary(ctx, time.Now())
	if err != nil {
		b.logger.Error("weekly summary failed", zap.Error(err))
		b.reply(ctx, chatID, "❌ Error generando el resumen: "+shortError(err))
		return
	}
	b.reply(ctx, chatID, FormatWeeklySummary(summary))
}

func (b *Bot) cmdDone(ctx context.Context, chatID int64, query string) {
	items, err := b.agenda.ListActive(ctx)
	if err != nil {
		b.logger.Error("done listing failed", zap.Error(err))
		b.reply(ctx, chatID, "❌ Error consultando tareas: "+shortError(err))
		return
	}
	if len(items) == 0 {
		b.reply(ctx, chatID, "🎉 No tenés tareas pendientes")
		return
	}

	state := &doneState{tasks: items}

	if query != "" {
		match, err := agenda.FindByText(items, query)
		if err != nil {
			b.reply(ctx, chatID, "❌ No encontré ninguna tarea que matchee ese texto.")
			return
		}
		state.selected = match
		b.setDoneState(chatID, state)
		b.reply(ctx, chatID, fmt.Sprintf("¿Confirmás completar: %s? (Sí/No)", match.Name))
		return
	}

	b.setDoneState(chatID, state)
	b.reply(ctx, chatID, FormatDoneListing(items))
}

// continueDone advances an in-flight /done conversation. Returns false when
// the chat has none, so the text falls through to capture.
func (b *Bot) continueDone(ctx context.Context, msg *Message) bool {
	b.mu.Lock()
	state := b.done[msg.Chat.ID]
	b.mu.Unlock()
	if state == nil {
		return false
	}

	text := strings.TrimSpace(msg.Text)

	if state.selected == nil {
		idx, err := strconv.Atoi(text)
		if err != nil {
			b.reply(ctx, msg.Chat.ID, "Decime un número válido (por ejemplo, 1) o /cancel para salir.")
			return true
		}
		if idx < 1 || idx > len(state.tasks) {
			b.reply(ctx, msg.Chat.ID,
				fmt.Sprintf("El número debe estar entre 1 y %d. Probá de nuevo.", len(state.tasks)))
			return true
		}
		state.selected = &state.tasks[idx-1]
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("¿Confirmás completar: %s? (Sí/No)", state.selected.Name))
		return true
	}

	switch strings.ToLower(text) {
	case "sí", "si", "s", "yes", "y":
		selected := state.selected
		b.clearDoneState(msg.Chat.ID)
		if err := b.agenda.Complete(ctx, selected.TaskGID); err != nil {
			b.logger.Error("task completion failed",
				zap.String("task", selected.TaskGID), zap.Error(err))
			b.reply(ctx, msg.Chat.ID, "❌ Error completando la tarea: "+shortError(err))
			return true
		}
		b.reply(ctx, msg.Chat.ID, "✅ Completada: "+selected.Name)
	case "no", "n":
		b.clearDoneState(msg.Chat.ID)
		b.reply(ctx, msg.Chat.ID, "❌ Cancelado")
	default:
		b.reply(ctx, msg.Chat.ID, `Respondé "Sí" o "No", por favor.`)
	}
	return true
}

func (b *Bot) cmdCancel(ctx context.Context, chatID int64) {
	b.clearDoneState(chatID)
	b.reply(ctx, chatID, "❌ Cancelado")
}

func (b *Bot) setDoneState(chatID int64, state *doneState) {
	b.mu.Lock()
	b.done[chatID] = state
	b.mu.Unlock()
}

func (b *Bot) clearDoneState(chatID int64) {
	b.mu.Lock()
	delete(b.done, chatID)
	b.mu.Unlock()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Error("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// shortError trims an error message for chat display.
func shortError(err error) string {
	if errors.Is(err, capture.ErrEmptyInput) {
		return "el mensaje está vacío"
	}
	msg := err.Error()
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return msg
}
