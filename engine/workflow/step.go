package workflow

import (
	"context"
	"time"
)

// Func is a step's computation. It reads its declared inputs from the data
// context and returns the outputs to merge back; a nil map with a nil
// error is a valid empty result. Returned errors (and panics) mark the
// step failed without aborting the process.
type Func func(ctx context.Context, dc *Context) (map[string]any, error)

// Step declares one unit of the workflow: its function, the context keys
// it consumes and produces, and the steps it depends on.
type Step struct {
	ID           string
	Name         string
	Description  string
	Func         Func
	RequiredKeys []string
	ProducesKeys []string
	Dependencies []string

	status       Status
	startTime    time.Time
	endTime      time.Time
	runtimeSecs  float64
	errorMessage string
	warnings     []string
}

// reset returns the step to its pristine state.
func (s *Step) reset() {
	s.status = StatusNotStarted
	s.startTime = time.Time{}
	s.endTime = time.Time{}
	s.runtimeSecs = 0
	s.errorMessage = ""
	s.warnings = nil
}

// AddWarning records a non-fatal observation on the step's current run.
func (s *Step) AddWarning(msg string) {
	s.warnings = append(s.warnings, msg)
}

// State is an immutable snapshot of a step's bookkeeping.
type State struct {
	ID             string     `json:"step_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	RequiredKeys   []string   `json:"required_input_keys"`
	ProducesKeys   []string   `json:"produces_output_keys"`
	Dependencies   []string   `json:"dependencies"`
	Status         Status     `json:"status"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	RuntimeSeconds float64    `json:"runtime_seconds,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
}

func (s *Step) state() State {
	st := State{
		ID:             s.ID,
		Name:           s.Name,
		Description:    s.Description,
		RequiredKeys:   append([]string(nil), s.RequiredKeys...),
		ProducesKeys:   append([]string(nil), s.ProducesKeys...),
		Dependencies:   append([]string(nil), s.Dependencies...),
		Status:         s.status,
		RuntimeSeconds: s.runtimeSecs,
		ErrorMessage:   s.errorMessage,
		Warnings:       append([]string(nil), s.warnings...),
	}
	if !s.startTime.IsZero() {
		ts := s.startTime
		st.StartTime = &ts
	}
	if !s.endTime.IsZero() {
		ts := s.endTime
		st.EndTime = &ts
	}
	return st
}
