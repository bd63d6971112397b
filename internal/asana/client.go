// Package asana talks to the Asana REST API: task creation, section and
// custom-field discovery, and the cached category directory that maps
// human-readable names to Asana GIDs.
package asana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Asana API client. All calls carry the http client's
// timeout; 429 responses are retried with exponential backoff.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// ClientConfig holds configuration for the Asana client.
type ClientConfig struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(accessToken string) ClientConfig {
	return ClientConfig{
		AccessToken: accessToken,
		BaseURL:     "https://app.asana.com/api/1.0",
		Timeout:     30 * time.Second,
	}
}

// NewClient creates a new Asana client with default config.
func NewClient(accessToken string) *Client {
	return NewClientWithConfig(DefaultClientConfig(accessToken))
}

// NewClientWithConfig creates a new Asana client with custom config.
func NewClientWithConfig(config ClientConfig) *Client {
	return &Client{
		accessToken: config.AccessToken,
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// NamedResource is a GID plus display name, the shape Asana uses for
// sections, enum options and users.
type NamedResource struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// CustomFieldValue is a custom field attached to a task.
type CustomFieldValue struct {
	GID       string         `json:"gid"`
	Name      string         `json:"name"`
	EnumValue *NamedResource `json:"enum_value"`
}

// Task is the subset of Asana task fields this system reads.
type Task struct {
	GID          string             `json:"gid"`
	Name         string             `json:"name"`
	Notes        string             `json:"notes"`
	Completed    bool               `json:"completed"`
	CompletedAt  string             `json:"completed_at"`
	DueOn        string             `json:"due_on"`
	CustomFields []CustomFieldValue `json:"custom_fields"`
}

// customFieldSetting mirrors project custom_field_settings entries.
type customFieldSetting struct {
	CustomField struct {
		GID         string `json:"gid"`
		Name        string `json:"name"`
		EnumOptions []struct {
			GID     string `json:"gid"`
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"enum_options"`
	} `json:"custom_field"`
}

type apiError struct {
	Message string `json:"message"`
}

// do performs one API call, decoding the "data" envelope into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	if c.accessToken == "" {
		return fmt.Errorf("access token not configured")
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(map[string]interface{}{"data": payload})
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	// Retry loop for 429 errors
	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var envelope struct {
				Errors []apiError `json:"errors"`
			}
			if json.Unmarshal(respBody, &envelope) == nil && len(envelope.Errors) > 0 {
				return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, envelope.Errors[0].Message)
			}
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		}

		if out == nil {
			return nil
		}
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// CreateTaskRequest is the payload for task creation.
type CreateTaskRequest struct {
	Name         string            `json:"name"`
	Notes        string            `json:"notes,omitempty"`
	Projects     []string          `json:"projects"`
	Assignee     string            `json:"assignee,omitempty"`
	DueOn        string            `json:"due_on,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// CreateTask creates a task and returns it.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, req, &task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

// AddTaskToSection moves a task into a board section.
func (c *Client) AddTaskToSection(ctx context.Context, sectionGID, taskGID string) error {
	payload := map[string]string{"task": taskGID}
	if err := c.do(ctx, http.MethodPost, "/sections/"+sectionGID+"/addTask", nil, payload, nil); err != nil {
		return fmt.Errorf("failed to move task to section: %w", err)
	}
	return nil
}

// Sections lists the sections of a project.
func (c *Client) Sections(ctx context.Context, projectGID string) ([]NamedResource, error) {
	query := url.Values{"opt_fields": {"gid,name"}}
	var sections []NamedResource
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectGID+"/sections", query, nil, &sections); err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	return sections, nil
}

// ProjectEnumField finds a named enum custom field on a project and returns
// its GID plus the enabled options.
func (c *Client) ProjectEnumField(ctx context.Context, projectGID, fieldName string) (string, []NamedResource, error) {
	query := url.Values{"opt_fields": {
		"custom_field_settings.custom_field.name," +
			"custom_field_settings.custom_field.gid," +
			"custom_field_settings.custom_field.enum_options",
	}}

	var project struct {
		CustomFieldSettings []customFieldSetting `json:"custom_field_settings"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectGID, query, nil, &project); err != nil {
		return "", nil, fmt.Errorf("failed to fetch project custom fields: %w", err)
	}

	for _, setting := range project.CustomFieldSettings {
		cf := setting.CustomField
		if cf.Name != fieldName {
			continue
		}
		options := make([]NamedResource, 0, len(cf.EnumOptions))
		for _, opt := range cf.EnumOptions {
			if opt.Enabled {
				options = append(options, NamedResource{GID: opt.GID, Name: opt.Name})
			}
		}
		return cf.GID, options, nil
	}
	return "", nil, fmt.Errorf("custom field %q not found on project %s", fieldName, projectGID)
}

// TasksForSection lists tasks in a section with the fields the agenda
// queries need.
func (c *Client) TasksForSection(ctx context.Context, sectionGID string) ([]Task, error) {
	query := url.Values{"opt_fields": {
		"name,completed,completed_at,due_on,notes," +
			"custom_fields,custom_fields.name," +
			"custom_fields.enum_value,custom_fields.enum_value.name",
	}}
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/sections/"+sectionGID+"/tasks", query, nil, &tasks); err != nil {
		return nil, fmt.Errorf("failed to list section tasks: %w", err)
	}
	return tasks, nil
}

// CompleteTask marks a task as completed.
func (c *Client) CompleteTask(ctx context.Context, taskGID string) error {
	payload := map[string]bool{"completed": true}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+taskGID, nil, payload, nil); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*NamedResource, error) {
	query := url.Values{"opt_fields": {"gid,name"}}
	var me NamedResource
	if err := c.do(ctx, http.MethodGet, "/users/me", query, nil, &me); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &me, nil
}
