package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/backend"
	"github.com/Additional-Code/tableside/internal/config"
)

// BackendSettingsRequest is the operator form for remote credentials.
// Driver is checked case-insensitively by the settings store.
type BackendSettingsRequest struct {
	Driver        string `json:"driver" validate:"max=16"`
	APIKey        string `json:"apiKey" validate:"required"`
	ProjectID     string `json:"projectId" validate:"required"`
	Endpoint      string `json:"endpoint" validate:"required"`
	AuthDomain    string `json:"authDomain"`
	StorageBucket string `json:"storageBucket"`
	AppID         string `json:"appId"`
}

// Remote converts the form into credentials.
func (r BackendSettingsRequest) Remote() config.Remote {
	return config.Remote{
		Driver:        r.Driver,
		APIKey:        r.APIKey,
		ProjectID:     r.ProjectID,
		Endpoint:      r.Endpoint,
		AuthDomain:    r.AuthDomain,
		StorageBucket: r.StorageBucket,
		AppID:         r.AppID,
	}
}

// BackendSettingsResponse shows saved credentials next to the active backend.
// Saved changes take effect on restart.
type BackendSettingsResponse struct {
	Saved           bool           `json:"saved"`
	Settings        *config.Remote `json:"settings,omitempty"`
	Active          backend.Info   `json:"active"`
	RestartRequired bool           `json:"restartRequired"`
}

// DiagnosticsResponse reports whether the active backend answers.
type DiagnosticsResponse struct {
	Backend   backend.Info `json:"backend"`
	Reachable bool         `json:"reachable"`
	LatencyMS int64        `json:"latencyMs"`
	Error     string       `json:"error,omitempty"`
	CheckedAt time.Time    `json:"checkedAt"`
}
