package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_URL(t *testing.T) {
	tests := []struct {
		name  string
		vhost string
		want  string
	}{
		{name: "root vhost", vhost: "/", want: "amqp://guest:secret@mq:5672/"},
		{name: "empty vhost", vhost: "", want: "amqp://guest:secret@mq:5672/"},
		{name: "named vhost", vhost: "musicgen", want: "amqp://guest:secret@mq:5672/musicgen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Host: "mq", Port: 5672, User: "guest", Password: "secret", VHost: tt.vhost}
			assert.Equal(t, tt.want, cfg.URL())
		})
	}
}

func TestClient_NotConnected(t *testing.T) {
	client := &Client{
		config: &Config{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	err := client.Publish(context.Background(), Message{Body: []byte(`{}`)})
	assert.True(t, errors.Is(err, ErrNotConnected))

	_, err = client.Consume("tag")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, client.IsConnected())
}

func TestClient_ConsumeCallbacks(t *testing.T) {
	client := &Client{
		config: &Config{CallbackRoutingKey: "generation.callback"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, err := client.ConsumeCallbacks("tag")
	assert.ErrorIs(t, err, ErrNotConnected)
}
