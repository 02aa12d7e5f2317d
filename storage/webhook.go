package storage

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/sensor"
)

// WebhookStorage POSTs every measurement as JSON to a URL
type WebhookStorage struct {
	client *resty.Client
	url    string
}

// NewWebhookStorage creates a webhook backend
func NewWebhookStorage(cfg config.WebhookStorageConfig) (*WebhookStorage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url cannot be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers)

	return &WebhookStorage{client: client, url: cfg.URL}, nil
}

// Store sends m; any non-2xx answer is an error
func (s *WebhookStorage) Store(m sensor.Measurement) error {
	body, err := m.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serialize measurement failed: %w", err)
	}

	resp, err := s.client.R().
		SetBody(body).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook %s failed: %w", s.url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s returned %s", s.url, resp.Status())
	}
	return nil
}

// Close is a no-op; the HTTP client holds no long-lived resources
func (s *WebhookStorage) Close() error {
	return nil
}
