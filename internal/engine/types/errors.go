package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownGID is returned by engine calls naming a GID the session never issued.
var ErrUnknownGID = errors.New("unknown gid")

// ConfigError reports invalid caller configuration, detected before any
// session is created.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidURIError reports one URI of a batch that the engine refused.
type InvalidURIError struct {
	Index int
	URI   string
	Err   error
}

func (e *InvalidURIError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid uri %q", e.URI)
	}
	return fmt.Sprintf("invalid uri %q: %v", e.URI, e.Err)
}

func (e *InvalidURIError) Unwrap() error { return e.Err }

// MarshalJSON keeps the failure readable over the control API.
func (e *InvalidURIError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Index int    `json:"index"`
		URI   string `json:"uri"`
		Error string `json:"error"`
	}{e.Index, e.URI, msg})
}

// UnmarshalJSON restores a failure decoded from the control API.
func (e *InvalidURIError) UnmarshalJSON(data []byte) error {
	var raw struct {
		Index int    `json:"index"`
		URI   string `json:"uri"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Index = raw.Index
	e.URI = raw.URI
	if raw.Error != "" {
		e.Err = errors.New(raw.Error)
	}
	return nil
}

// EngineInitError means the engine could not start a session.
type EngineInitError struct {
	Err error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("engine init failed: %v", e.Err)
}

func (e *EngineInitError) Unwrap() error { return e.Err }

// EngineStepError means a poll step failed; it ends the batch.
type EngineStepError struct {
	Err error
}

func (e *EngineStepError) Error() string {
	return fmt.Sprintf("engine step failed: %v", e.Err)
}

func (e *EngineStepError) Unwrap() error { return e.Err }
