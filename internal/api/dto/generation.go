package dto

import (
	"encoding/json"

	"github.com/cuongbtq/musicgen/internal/domain"
)

// GenerateRequest is the submission body.
// Instrumental and CustomMode are pointers so that absence can be told apart from false.
type GenerateRequest struct {
	Prompt       string `json:"prompt,omitempty"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Tags         string `json:"tags,omitempty"`
	Model        string `json:"model,omitempty"`
	Tempo        string `json:"tempo,omitempty"`
	Instrumental *bool  `json:"instrumental"`
	CustomMode   *bool  `json:"customMode"`
	CallBackURL  string `json:"callBackUrl,omitempty"`
	Test         bool   `json:"test,omitempty"`
}

// ExtendRequest asks the provider to continue an existing track.
// AudioID wins over ID when both are set.
type ExtendRequest struct {
	ID          string   `json:"id,omitempty"`
	AudioID     string   `json:"audioId,omitempty"`
	ContinueAt  *float64 `json:"continueAt,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Style       string   `json:"style,omitempty"`
	Title       string   `json:"title,omitempty"`
	Model       string   `json:"model,omitempty"`
	CallBackURL string   `json:"callBackUrl,omitempty"`
}

// JobEnvelope is returned by submit and extend
type JobEnvelope struct {
	ID       string           `json:"id"`
	Status   domain.JobStatus `json:"status"`
	Progress float64          `json:"progress"`
	AudioURL string           `json:"audioUrl,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// StatusEnvelope is returned by the status endpoint whatever upstream variant answered.
// AudioURL is empty until the job is COMPLETE.
type StatusEnvelope struct {
	ID       string           `json:"id"`
	Status   domain.JobStatus `json:"status"`
	Progress float64          `json:"progress"`
	AudioURL string           `json:"audioUrl"`
	Error    string           `json:"error,omitempty"`
	Raw      json.RawMessage  `json:"raw,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Message string           `json:"message"`
	Kind    domain.ErrorKind `json:"kind"`
	Code    int              `json:"code,omitempty"`
}

// Update converts the envelope into a job observation
func (e *StatusEnvelope) Update() domain.Update {
	return domain.Update{
		ID:       e.ID,
		Status:   e.Status,
		AudioURL: e.AudioURL,
		Error:    e.Error,
	}
}
