package accesslog

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	MaxLogSize        = 10 * 1024 * 1024 // 10MB
	MaxLogFiles       = 5
	LogFilePermission = 0600
	LogDirPermission  = 0700
)

const timestampLayout = "2006-01-02 15:04:05.000 UTC"

type Action string

const (
	ActionInit     Action = "init"
	ActionChunk    Action = "chunk"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionSimple   Action = "simple"
	ActionDownload Action = "download"
)

// AccessLogEntry records one upload api call of a subject
type AccessLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Subject    string    `json:"subject"`
	SessionID  string    `json:"session_id,omitempty"`
	Path       string    `json:"path"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
}

type entryJSON struct {
	Timestamp  string `json:"timestamp"`
	Action     Action `json:"action"`
	Subject    string `json:"subject"`
	SessionID  string `json:"session_id,omitempty"`
	Path       string `json:"path"`
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
	Method     string `json:"method"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// MarshalJSON writes the timestamp in a human readable form
func (e AccessLogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(&entryJSON{
		Timestamp:  e.Timestamp.UTC().Format(timestampLayout),
		Action:     e.Action,
		Subject:    e.Subject,
		SessionID:  e.SessionID,
		Path:       e.Path,
		IP:         e.IP,
		UserAgent:  e.UserAgent,
		Method:     e.Method,
		StatusCode: e.StatusCode,
		Error:      e.Error,
	})
}

func (e *AccessLogEntry) UnmarshalJSON(data []byte) error {
	var aux entryJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t, err := time.Parse(timestampLayout, aux.Timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to parse timestamp: %w", err)
		}
	}

	*e = AccessLogEntry{
		Timestamp:  t,
		Action:     aux.Action,
		Subject:    aux.Subject,
		SessionID:  aux.SessionID,
		Path:       aux.Path,
		IP:         aux.IP,
		UserAgent:  aux.UserAgent,
		Method:     aux.Method,
		StatusCode: aux.StatusCode,
		Error:      aux.Error,
	}
	return nil
}
