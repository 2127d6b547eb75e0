package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnknownCommand is returned for anything other than start, pause or resume.
var ErrUnknownCommand = errors.New("unknown lifecycle command")

// Lifecycle commands accepted by the admin API.
const (
	CommandStart  = "start"
	CommandPause  = "pause"
	CommandResume = "resume"
)

// CommandResult is the response from a lifecycle POST.
type CommandResult struct {
	State string `json:"state"`
}

// Actor issues lifecycle commands via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Do sends POST /api/v1/{command} and returns the resulting state.
func (a *Actor) Do(ctx context.Context, command string) (*CommandResult, error) {
	switch command {
	case CommandStart, CommandPause, CommandResume:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	path := "/api/v1/" + command
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", command, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Method: http.MethodPost, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var result CommandResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
