// Package transcribe converts voice audio to text through the Whisper API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"jarvis/internal/capture"
)

// Config holds transcription settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// DefaultConfig returns Whisper defaults tuned for Spanish voice notes.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://api.openai.com/v1",
		Model:    "whisper-1",
		Language: "es",
		Timeout:  120 * time.Second,
	}
}

// Transcriber sends audio to the Whisper transcription endpoint.
type Transcriber struct {
	config     Config
	httpClient *http.Client
}

// New creates a transcriber. APIKey is required.
func New(config Config) (*Transcriber, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("transcription API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.Language == "" {
		config.Language = DefaultConfig().Language
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Transcriber{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Transcribe uploads audio and returns the recognized text. filename only
// carries the extension hint the API uses to pick a decoder.
func (t *Transcriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}
	if err := writer.WriteField("model", t.config.Model); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if err := writer.WriteField("language", t.config.Language); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	url := t.config.BaseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: transcription request: %v", capture.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading transcription response: %v", capture.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: transcription API status %d: %s",
			capture.ErrTransport, resp.StatusCode, truncateBody(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: parsing transcription response: %v", capture.ErrTransport, err)
	}
	return result.Text, nil
}

func truncateBody(b []byte) string {
	const limit = 500
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
