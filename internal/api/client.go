package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PottierLoic/Remotely/internal/commands"
	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/pkg/errors"
)

// Client talks to a running bridge the way the UI shell does
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a new bridge client. baseURL may omit the scheme.
func NewClient(baseURL, token string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		token: token,
	}
}

// SetToken sets the authentication token
func (c *Client) SetToken(token string) {
	c.token = token
}

// Health checks that the bridge is up
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

// GetHostList fetches every stored host
func (c *Client) GetHostList(ctx context.Context) ([]models.Host, error) {
	var hosts []models.Host
	if err := c.Invoke(ctx, commands.GetHostList, nil, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// AddHost appends a host to the registry
func (c *Client) AddHost(ctx context.Context, host models.Host) error {
	return c.Invoke(ctx, commands.AddHost, map[string]models.Host{"newHost": host}, nil)
}

// DeleteHost removes every host with id
func (c *Client) DeleteHost(ctx context.Context, id uint64) error {
	return c.Invoke(ctx, commands.DeleteHost, map[string]uint64{"id": id}, nil)
}

// Invoke calls a bridge command. result, when non-nil, receives the decoded
// "result" field of the response.
func (c *Client) Invoke(ctx context.Context, command string, args, result interface{}) error {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/invoke/"+command, args, &envelope); err != nil {
		return err
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", command, err)
		}
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// decodeError turns the bridge's error body back into an AppError so callers
// can branch on the code.
func decodeError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error struct {
			Code       string `json:"code"`
			Message    string `json:"message"`
			Suggestion string `json:"suggestion"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &payload); err != nil || payload.Error.Code == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return errors.New(payload.Error.Code, "bridge", payload.Error.Message).
		WithSuggestion(payload.Error.Suggestion)
}
