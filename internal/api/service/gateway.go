package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/resolver"
	"github.com/cuongbtq/musicgen/internal/suno"
)

// PendingMessage tells callers that identity and result arrive asynchronously
const PendingMessage = "provider accepted the job without an id; the real id and result will be delivered through the callback channel"

var (
	statusCandidates = []resolver.Candidate{
		{Name: "data.status", Path: []interface{}{"data", "status"}},
		{Name: "status", Path: []interface{}{"status"}},
	}

	audioCandidates = []resolver.Candidate{
		{Name: "data.response.sunoData[0].audioUrl", Path: []interface{}{"data", "response", "sunoData", 0, "audioUrl"}},
		{Name: "data.response.sunoData[0].audio_url", Path: []interface{}{"data", "response", "sunoData", 0, "audio_url"}},
		{Name: "data.data[0].audioUrl", Path: []interface{}{"data", "data", 0, "audioUrl"}},
		{Name: "data.data[0].audio_url", Path: []interface{}{"data", "data", 0, "audio_url"}},
		{Name: "audioUrl", Path: []interface{}{"audioUrl"}},
		{Name: "audio_url", Path: []interface{}{"audio_url"}},
	}
)

// Gateway validates submissions, forwards them upstream and returns a
// normalized envelope. It never returns the provider's raw shape.
type Gateway struct {
	provider    Provider
	callbackURL string
	ids         *domain.IDGenerator
	logger      *slog.Logger
}

// NewGateway creates a gateway injecting callbackURL when a request carries none
func NewGateway(provider Provider, callbackURL string, logger *slog.Logger) *Gateway {
	return &Gateway{
		provider:    provider,
		callbackURL: callbackURL,
		ids:         domain.NewIDGenerator(),
		logger:      logger,
	}
}

// TestSubmission is the canned answer to a submission with test set
func TestSubmission() *dto.JobEnvelope {
	return &dto.JobEnvelope{ID: TestGenerationID, Status: domain.JobStatusSubmitted}
}

// ValidateGenerate checks a submission before any network call
func ValidateGenerate(req *dto.GenerateRequest) error {
	if req.Instrumental == nil {
		return domain.NewValidationError("instrumental", "must be an explicit boolean")
	}
	if req.CustomMode == nil {
		return domain.NewValidationError("customMode", "must be an explicit boolean")
	}

	if *req.CustomMode {
		if strings.TrimSpace(req.Style) == "" {
			return domain.NewValidationError("style", "is required in custom mode")
		}
		if strings.TrimSpace(req.Title) == "" {
			return domain.NewValidationError("title", "is required in custom mode")
		}
		return nil
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return domain.NewValidationError("prompt", "is required")
	}
	return nil
}

// Submit forwards a generation request
func (g *Gateway) Submit(ctx context.Context, req dto.GenerateRequest) (*dto.JobEnvelope, error) {
	if req.Test {
		return TestSubmission(), nil
	}

	if err := ValidateGenerate(&req); err != nil {
		return nil, err
	}

	params := suno.GenerateParams{
		Prompt:       strings.TrimSpace(req.Prompt),
		Style:        strings.TrimSpace(req.Style),
		Title:        strings.TrimSpace(req.Title),
		Tags:         strings.TrimSpace(req.Tags),
		Model:        strings.TrimSpace(req.Model),
		Tempo:        strings.TrimSpace(req.Tempo),
		Instrumental: *req.Instrumental,
		CustomMode:   *req.CustomMode,
		CallBackURL:  g.callbackFor(req.CallBackURL),
	}

	g.logger.Info("Submitting generation",
		slog.Bool("custom_mode", params.CustomMode),
		slog.Bool("instrumental", params.Instrumental),
		slog.String("model", params.Model),
	)

	body, err := g.provider.Generate(ctx, params)
	if err != nil {
		return nil, err
	}

	return g.envelope(body), nil
}

// Extend forwards an extension of an existing track
func (g *Gateway) Extend(ctx context.Context, req dto.ExtendRequest) (*dto.JobEnvelope, error) {
	src, ok := resolver.First(
		resolver.Source{Name: "audioId", Value: req.AudioID},
		resolver.Source{Name: "id", Value: req.ID},
	)
	if !ok {
		return nil, domain.NewValidationError("id", "is required")
	}
	if domain.IsProvisionalID(src.Value) {
		return nil, domain.NewValidationError(src.Name, "is provisional; wait for the provider id")
	}

	custom := strings.TrimSpace(req.Prompt) != "" || strings.TrimSpace(req.Style) != "" || strings.TrimSpace(req.Title) != ""
	if custom && req.ContinueAt == nil {
		return nil, domain.NewValidationError("continueAt", "is required when overriding parameters")
	}

	params := suno.ExtendParams{
		AudioID:          src.Value,
		DefaultParamFlag: custom,
		Prompt:           strings.TrimSpace(req.Prompt),
		Style:            strings.TrimSpace(req.Style),
		Title:            strings.TrimSpace(req.Title),
		Model:            strings.TrimSpace(req.Model),
		CallBackURL:      g.callbackFor(req.CallBackURL),
	}
	if req.ContinueAt != nil {
		if *req.ContinueAt < 0 {
			return nil, domain.NewValidationError("continueAt", "must not be negative")
		}
		params.ContinueAt = *req.ContinueAt
	}

	g.logger.Info("Extending track", slog.String("audio_id", params.AudioID), slog.Bool("custom", custom))

	body, err := g.provider.Extend(ctx, params)
	if err != nil {
		return nil, err
	}

	return g.envelope(body), nil
}

func (g *Gateway) callbackFor(requested string) string {
	if u := strings.TrimSpace(requested); u != "" {
		return u
	}
	return g.callbackURL
}

func (g *Gateway) envelope(body []byte) *dto.JobEnvelope {
	id, matched := resolver.Resolve(body, resolver.DefaultCandidates)
	if id == "" {
		provisional := g.ids.Next()
		g.logger.Warn("Provider returned no job id, using provisional id",
			slog.String("id", provisional),
		)
		return &dto.JobEnvelope{
			ID:      provisional,
			Status:  domain.JobStatusPending,
			Message: PendingMessage,
		}
	}

	env := &dto.JobEnvelope{ID: id, Status: domain.JobStatusSubmitted}

	status, _ := resolver.Resolve(body, statusCandidates)
	audioURL, _ := resolver.Resolve(body, audioCandidates)
	switch {
	case strings.EqualFold(status, suno.StatusSuccess) && audioURL != "":
		env.Status = domain.JobStatusComplete
		env.Progress = 1
		env.AudioURL = audioURL
	case status != "":
		env.Status = domain.JobStatusProcessing
	}

	g.logger.Info("Generation accepted",
		slog.String("id", id),
		slog.String("matched", matched),
		slog.String("status", string(env.Status)),
	)
	return env
}
