package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/co2-sensor/config"
)

func TestWebhookStorage_Store(t *testing.T) {
	var gotBody, gotToken, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotToken = r.Header.Get("X-Token")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewWebhookStorage(config.WebhookStorageConfig{
		URL:     srv.URL,
		Timeout: time.Second,
		Headers: map[string]string{"X-Token": "secret"},
	})
	require.NoError(t, err)

	require.NoError(t, s.Store(sampleMeasurement(t)))
	assert.JSONEq(t, sampleFieldsJSON, gotBody)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "application/json", gotType)
	require.NoError(t, s.Close())
}

func TestWebhookStorage_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s, err := NewWebhookStorage(config.WebhookStorageConfig{URL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	err = s.Store(sampleMeasurement(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewWebhookStorage_RequiresURL(t *testing.T) {
	_, err := NewWebhookStorage(config.WebhookStorageConfig{})
	assert.Error(t, err)
}

func TestRedisStorage_AddArgs(t *testing.T) {
	s := newRedisStorage(nil, config.RedisStorageConfig{MaxLen: 100})

	args := s.addArgs(sampleMeasurement(t))
	assert.Equal(t, "co2-sensor:measurements", args.Stream)
	assert.Equal(t, int64(100), args.MaxLen)
	assert.True(t, args.Approx)
	assert.Equal(t, []string{
		"co2", "955",
		"humidity", "46.3",
		"temperature", "32.0",
		"time", "2026-10-19T10:00:00",
	}, args.Values)
}

// Runs against a live server when CO2_TEST_REDIS_ADDR is set.
func TestRedisStorage_Live(t *testing.T) {
	addr := os.Getenv("CO2_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CO2_TEST_REDIS_ADDR not set")
	}
	stream := "co2-sensor:test:" + time.Now().Format("150405.000000")
	s, err := NewRedisStorage(config.RedisStorageConfig{Addr: addr, Stream: stream})
	require.NoError(t, err)
	defer s.Close()
	defer s.client.Del(context.Background(), stream)

	require.NoError(t, s.Store(sampleMeasurement(t)))

	entries, err := s.client.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "955", entries[0].Values["co2"])
}
