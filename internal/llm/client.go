// Package llm is a minimal client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Roles accepted by the chat completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyResponse = errors.New("llm response missing content")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm error: status %d: %s", e.Code, e.Body)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	DisableSearch bool
}

// Client calls /chat/completions with fixed sampling parameters.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	maxTokens     int
	temperature   float64
	disableSearch bool
	logger        *slog.Logger
	http          *http.Client
}

// NewClient validates opts and builds a client.
func NewClient(log *slog.Logger, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("llm client: base url is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("llm client: api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("llm client: model is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		model:         opts.Model,
		maxTokens:     opts.MaxTokens,
		temperature:   opts.Temperature,
		disableSearch: opts.DisableSearch,
		logger:        log.With(slog.String("client", "llm")),
		http:          &http.Client{Timeout: opts.Timeout},
	}, nil
}

type chatRequest struct {
	Model         string    `json:"model"`
	Temperature   float64   `json:"temperature"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	DisableSearch bool      `json:"disable_search,omitempty"`
	Messages      []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete sends system followed by turns and returns the first choice text.
func (c *Client) Complete(ctx context.Context, system string, turns []Message) (string, error) {
	messages := make([]Message, 0, len(turns)+1)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, turns...)
	if len(messages) == 0 {
		return "", errors.New("messages is required")
	}

	body, err := json.Marshal(chatRequest{
		Model:         c.model,
		Temperature:   c.temperature,
		MaxTokens:     c.maxTokens,
		DisableSearch: c.disableSearch,
		Messages:      messages,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("llm completion",
		slog.Int("messages", len(messages)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return parsed.Choices[0].Message.Content, nil
}
