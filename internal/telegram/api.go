package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jarvis/internal/capture"
)

// API is a minimal Telegram Bot API client covering the methods the bot
// uses.
type API struct {
	token      string
	baseURL    string
	fileURL    string
	httpClient *http.Client
}

// APIConfig holds Bot API connection settings.
type APIConfig struct {
	Token   string
	BaseURL string
	FileURL string
	Timeout time.Duration
}

// DefaultAPIConfig returns Bot API defaults. The timeout must exceed the
// long-poll window of GetUpdates.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		BaseURL: "https://api.telegram.org",
		FileURL: "https://api.telegram.org/file",
		Timeout: 70 * time.Second,
	}
}

// NewAPI creates a Bot API client. Token is required.
func NewAPI(config APIConfig) (*API, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultAPIConfig().BaseURL
	}
	if config.FileURL == "" {
		config.FileURL = DefaultAPIConfig().FileURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultAPIConfig().Timeout
	}
	return &API{
		token:      config.Token,
		baseURL:    config.BaseURL,
		fileURL:    config.FileURL,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Update is one Bot API update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming Telegram message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Voice     *Voice `json:"voice"`
	Audio     *Voice `json:"audio"`
	Date      int64  `json:"date"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// Voice describes an attached voice or audio file.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MimeType string `json:"mime_type"`
}

// call posts a Bot API method and decodes its result into out.
func (a *API) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling %s params: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", a.baseURL, a.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: telegram %s: %v", capture.ErrTransport, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading telegram %s response: %v", capture.ErrTransport, method, err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%w: parsing telegram %s response: %v", capture.ErrTransport, method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%w: telegram %s: %s", capture.ErrTransport, method, envelope.Description)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%w: parsing telegram %s result: %v", capture.ErrTransport, method, err)
		}
	}
	return nil
}

// GetUpdates long-polls for updates after offset. timeout is the server-side
// hold in seconds.
func (a *API) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := a.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends text to a chat and returns the sent message.
func (a *API) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	var msg Message
	if err := a.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of a previously sent message.
func (a *API) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	return a.call(ctx, "editMessageText", params, nil)
}

// DownloadFile fetches the content of a file by its file_id.
func (a *API) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := a.call(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("%w: telegram getFile returned no path", capture.ErrTransport)
	}

	url := fmt.Sprintf("%s/bot%s/%s", a.fileURL, a.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: downloading telegram file: %v", capture.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: telegram file download status %d", capture.ErrTransport, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
