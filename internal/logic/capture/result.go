package capture

import (
	"encoding/json"
	"time"
)

// Result is the outcome of one capture attempt. It succeeded when Err is nil.
type Result struct {
	ID         string
	FilePath   string
	TakenAt    time.Time
	FocusScore float64
	Err        error
}

// OK reports whether the capture succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Message is the failure text ("<Kind>: <detail>"), or "" on success.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type resultJSON struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	FilePath   string     `json:"file_path,omitempty"`
	TakenAt    *time.Time `json:"taken_at,omitempty"`
	FocusScore *float64   `json:"focus_score,omitempty"`
	Message    string     `json:"message,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK() {
		return json.Marshal(resultJSON{ID: r.ID, Status: StatusFailure, Message: r.Message()})
	}
	taken, score := r.TakenAt, r.FocusScore
	return json.Marshal(resultJSON{
		ID:         r.ID,
		Status:     StatusSuccess,
		FilePath:   r.FilePath,
		TakenAt:    &taken,
		FocusScore: &score,
	})
}

// Result statuses, as used in JSON and metric attributes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

func (r Result) status() string {
	if r.OK() {
		return StatusSuccess
	}
	return StatusFailure
}
