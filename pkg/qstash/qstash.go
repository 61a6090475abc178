package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

type Config struct {
	URL         string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token       string        `split_words:"true"`
	CallbackURL string        `split_words:"true"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether reminders can be delivered.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.CallbackURL) != ""
}

type Client struct {
	baseURL     string
	token       string
	callbackURL string
	httpClient  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}
	callbackURL := strings.TrimSpace(cfg.CallbackURL)
	if callbackURL != "" {
		if _, err := url.ParseRequestURI(callbackURL); err != nil {
			return nil, fmt.Errorf("invalid qstash callback url: %w", err)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		callbackURL: callbackURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

type scheduleResponse struct {
	ScheduleID string `json:"scheduleId"`
}

type publishResponse struct {
	MessageID string `json:"messageId"`
}

// Schedule registers a cron schedule that POSTs body to the callback URL.
func (c *Client) Schedule(ctx context.Context, cron string, body any) (string, error) {
	cron = strings.TrimSpace(cron)
	if cron == "" {
		return "", errors.New("qstash cron is required")
	}
	var out scheduleResponse
	if err := c.post(ctx, "/v2/schedules/", map[string]string{"Upstash-Cron": cron}, body, &out); err != nil {
		return "", err
	}
	return out.ScheduleID, nil
}

// Publish delivers body to the callback URL once, after delay.
func (c *Client) Publish(ctx context.Context, delay time.Duration, body any) (string, error) {
	headers := map[string]string{}
	if delay > 0 {
		headers["Upstash-Delay"] = fmt.Sprintf("%ds", int64(delay/time.Second))
	}
	var out publishResponse
	if err := c.post(ctx, "/v2/publish/", headers, body, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (c *Client) post(ctx context.Context, endpoint string, headers map[string]string, body any, out any) error {
	if c == nil {
		return errors.New("nil qstash client")
	}
	if c.callbackURL == "" {
		return errors.New("qstash callback url is not configured")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal qstash body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint+c.callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read qstash response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("qstash http status=%d body=%s", resp.StatusCode, string(raw))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode qstash response: %w", err)
	}
	return nil
}
