package suno

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/cuongbtq/musicgen/internal/domain"
	"github.com/cuongbtq/musicgen/internal/transport"
)

// Provider status vocabulary
const (
	StatusSuccess = "SUCCESS"
	StatusPending = "PENDING"
)

// Track is one generated clip
type Track struct {
	ID             string  `json:"id"`
	AudioURL       string  `json:"audioUrl"`
	AudioURLSnake  string  `json:"audio_url"`
	StreamAudioURL string  `json:"streamAudioUrl"`
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
}

// URL returns the playable URL whatever casing the provider used
func (t Track) URL() string {
	if u := strings.TrimSpace(t.AudioURL); u != "" {
		return u
	}
	return strings.TrimSpace(t.AudioURLSnake)
}

// RecordInfo is the data section of a record-info response
type RecordInfo struct {
	TaskID       string      `json:"taskId"`
	Status       string      `json:"status"`
	Type         string      `json:"type"`
	ErrorCode    interface{} `json:"errorCode"`
	ErrorMessage string      `json:"errorMessage"`
	Response     struct {
		TaskID   string  `json:"taskId"`
		SunoData []Track `json:"sunoData"`
		Data     []Track `json:"data"`
	} `json:"response"`
}

// FirstAudioURL returns the first available audio URL across result arrays
func (r *RecordInfo) FirstAudioURL() string {
	for _, tracks := range [][]Track{r.Response.SunoData, r.Response.Data} {
		for _, t := range tracks {
			if u := t.URL(); u != "" {
				return u
			}
		}
	}
	return ""
}

// ResolvedTaskID returns the provider task id carried by the record, if any
func (r *RecordInfo) ResolvedTaskID() string {
	if id := strings.TrimSpace(r.TaskID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Response.TaskID)
}

// IsFailure reports whether Status belongs to the provider's failure vocabulary
func (r *RecordInfo) IsFailure() bool {
	s := strings.ToUpper(strings.TrimSpace(r.Status))
	return strings.HasSuffix(s, "FAILED") || strings.HasSuffix(s, "_ERROR") || strings.HasSuffix(s, "EXCEPTION")
}

// FailureReason formats the provider's error as "<code>: <message>"
func (r *RecordInfo) FailureReason() string {
	code := strings.TrimSpace(r.Status)
	if r.ErrorCode != nil {
		if s := strings.TrimSpace(fmt.Sprint(r.ErrorCode)); s != "" {
			code = s
		}
	}
	msg := strings.TrimSpace(r.ErrorMessage)
	if msg == "" {
		msg = "generation failed"
	}
	if code == "" {
		return msg
	}
	return code + ": " + msg
}

type recordInfoEnvelope struct {
	Data *RecordInfo `json:"data"`
}

func decodeRecordInfo(body []byte) (*RecordInfo, error) {
	var env recordInfoEnvelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, &domain.ParseError{Snippet: transport.Snippet(body), Err: err}
	}
	if env.Data == nil {
		return &RecordInfo{Status: StatusPending}, nil
	}
	return env.Data, nil
}

// Callback is a provider-pushed completion event
type Callback struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		CallbackType string  `json:"callbackType"`
		TaskID       string  `json:"task_id"`
		Data         []Track `json:"data"`
	} `json:"data"`
}

// Callback types
const (
	CallbackText     = "text"
	CallbackFirst    = "first"
	CallbackComplete = "complete"
	CallbackError    = "error"
)

// ParseCallback decodes a callback payload
func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := sonic.Unmarshal(body, &cb); err != nil {
		return nil, &domain.ParseError{Snippet: transport.Snippet(body), Err: err}
	}
	return &cb, nil
}

// FirstAudioURL returns the first audio URL in the callback
func (cb *Callback) FirstAudioURL() string {
	for _, t := range cb.Data.Data {
		if u := t.URL(); u != "" {
			return u
		}
	}
	return ""
}

// IsComplete reports whether the callback announces a finished job with audio
func (cb *Callback) IsComplete() bool {
	return cb.Data.CallbackType == CallbackComplete && cb.FirstAudioURL() != ""
}

// IsFailure reports whether the callback announces a failed job
func (cb *Callback) IsFailure() bool {
	return cb.Data.CallbackType == CallbackError || (cb.Code != 0 && cb.Code != codeOK)
}

// FailureReason formats the callback's error as "<code>: <message>"
func (cb *Callback) FailureReason() string {
	msg := strings.TrimSpace(cb.Msg)
	if msg == "" {
		msg = "generation failed"
	}
	if cb.Code == 0 {
		return msg
	}
	return fmt.Sprintf("%d: %s", cb.Code, msg)
}
