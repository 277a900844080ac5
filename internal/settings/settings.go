// Package settings persists the operator-entered remote backend credentials in
// the local store so they survive restarts on the same device.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

// BackendKey is the settings document holding the remote credentials.
const BackendKey = "backend"

// Module provides the settings store to Fx.
var Module = fx.Provide(New)

// Store reads and writes device-local settings.
type Store struct {
	local  *local.Store
	logger *zap.Logger
}

// New wraps the local store.
func New(localStore *local.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{local: localStore, logger: logger}
}

// Load returns the saved credentials. The boolean is false when nothing was
// saved or the saved document is unreadable.
func (s *Store) Load(ctx context.Context) (config.Remote, bool, error) {
	doc, err := s.local.Get(ctx, store.Settings, BackendKey)
	if errors.Is(err, store.ErrNotFound) {
		return config.Remote{}, false, nil
	}
	if err != nil {
		return config.Remote{}, false, err
	}
	var remote config.Remote
	if err := json.Unmarshal(doc.Data, &remote); err != nil {
		s.logger.Warn("ignoring unreadable backend settings", zap.Error(err))
		return config.Remote{}, false, nil
	}
	return remote, true, nil
}

// Save validates and stores remote credentials. They take effect on the next
// start.
func (s *Store) Save(ctx context.Context, remote config.Remote) (config.Remote, error) {
	remote = Normalize(remote)
	if err := Validate(remote); err != nil {
		return config.Remote{}, err
	}
	body, err := json.Marshal(remote)
	if err != nil {
		return config.Remote{}, errorbank.Internal("failed to encode settings", errorbank.WithCause(err))
	}
	if err := s.local.Put(ctx, store.Settings, BackendKey, body); err != nil {
		return config.Remote{}, errorbank.Backend("failed to save settings", errorbank.WithCause(err))
	}
	s.logger.Info("remote backend settings saved",
		zap.String("driver", remote.Driver), zap.String("project_id", remote.ProjectID))
	return remote, nil
}

// Clear removes saved credentials so the next start falls back to env or local.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.local.Delete(ctx, store.Settings, BackendKey); err != nil {
		return errorbank.Backend("failed to clear settings", errorbank.WithCause(err))
	}
	s.logger.Info("remote backend settings cleared")
	return nil
}

// Normalize trims every field and lowercases the driver, defaulting it to redis.
func Normalize(remote config.Remote) config.Remote {
	remote.Driver = strings.ToLower(strings.TrimSpace(remote.Driver))
	if remote.Driver == "" {
		remote.Driver = "redis"
	}
	remote.APIKey = strings.TrimSpace(remote.APIKey)
	remote.ProjectID = strings.TrimSpace(remote.ProjectID)
	remote.Endpoint = strings.TrimSpace(remote.Endpoint)
	remote.AuthDomain = strings.TrimSpace(remote.AuthDomain)
	remote.StorageBucket = strings.TrimSpace(remote.StorageBucket)
	remote.AppID = strings.TrimSpace(remote.AppID)
	return remote
}

// Validate checks the fields the operator form requires.
func Validate(remote config.Remote) error {
	if err := config.ValidateRemoteDriver(remote.Driver); err != nil {
		return errorbank.Validation(err.Error(), errorbank.WithDetail("field", "driver"))
	}
	if remote.APIKey == "" {
		return errorbank.Validation("api key is required", errorbank.WithDetail("field", "apiKey"))
	}
	if remote.ProjectID == "" {
		return errorbank.Validation("project id is required", errorbank.WithDetail("field", "projectId"))
	}
	if remote.Endpoint == "" {
		return errorbank.Validation("endpoint is required", errorbank.WithDetail("field", "endpoint"))
	}
	return nil
}

// Redact hides the key for display.
func Redact(remote config.Remote) config.Remote {
	if n := len(remote.APIKey); n > 4 {
		remote.APIKey = strings.Repeat("*", n-4) + remote.APIKey[n-4:]
	} else if n > 0 {
		remote.APIKey = "****"
	}
	return remote
}
