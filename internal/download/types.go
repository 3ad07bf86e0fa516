package download

import "time"

// Status is the download state machine for one language model.
//
// idle → downloading → {idle (success) | failed (terminal error) |
// paused (network error, pending retry)}; paused → downloading on
// connectivity restoration or manual retry.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusFailed      Status = "failed"
	StatusPaused      Status = "paused"
)

// LanguageModel is the manager-owned view of one language's model.
type LanguageModel struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Downloaded  bool     `json:"downloaded"`
	Downloading bool     `json:"downloading"`
	Progress    *float64 `json:"progress,omitempty"`
	Status      Status   `json:"status"`
	Error       string   `json:"error,omitempty"`
}

// Event surfaces a status message for one language to the UI layer.
type Event struct {
	Code    string `json:"code"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// statusEntry is one TTL'd downloaded-state check.
type statusEntry struct {
	downloaded bool
	checkedAt  time.Time
}
