// Package service holds the stateless request/response core of the API:
// the submission gateway and the status normalizer.
package service

import (
	"context"

	"github.com/cuongbtq/musicgen/internal/suno"
)

// Provider is the upstream music generation API
type Provider interface {
	Generate(ctx context.Context, params suno.GenerateParams) ([]byte, error)
	Extend(ctx context.Context, params suno.ExtendParams) ([]byte, error)
	RecordInfo(ctx context.Context, taskID string) (*suno.RecordInfo, []byte, error)
}

// CallbackLookup returns the last provider callback received for a task
type CallbackLookup interface {
	Get(ctx context.Context, taskID string) (*suno.Callback, error)
}

// Canned identifiers returned by test short-circuits
const (
	TestGenerationID = "test-generation"
	TestAudioURL     = "https://cdn.example.com/test-generation.mp3"
)
