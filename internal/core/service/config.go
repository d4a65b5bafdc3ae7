package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
)

// ConfigService owns the versioned algorithm configuration. Readers always see
// a fully-formed immutable snapshot through an atomically swapped pointer;
// publishing is the only write path and is serialized.
type ConfigService struct {
	repo   port.ConfigRepository
	active atomic.Pointer[domain.AlgorithmConfig]
	mu     sync.Mutex // serializes Publish
	log    *zap.Logger
}

func NewConfigService(repo port.ConfigRepository, log *zap.Logger) *ConfigService {
	return &ConfigService{
		repo: repo,
		log:  log,
	}
}

// Load warms the active pointer from storage. Called once at startup; a
// missing active config is not an error, the engine just refuses tasks until
// a version is published.
func (s *ConfigService) Load(ctx context.Context) error {
	cfg, err := s.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveConfig) {
			s.log.Warn("No active algorithm config yet")
			return nil
		}
		return err
	}
	s.active.Store(cfg)
	s.log.Info("Loaded active algorithm config",
		zap.String("id", cfg.ID),
		zap.Int64("version", cfg.Version))
	return nil
}

// CreateVersion stores a draft snapshot and returns its id. Drafts are not
// validated here; validation gates Publish so that the admin surface can save
// work in progress.
func (s *ConfigService) CreateVersion(ctx context.Context, cfg domain.AlgorithmConfig) (string, error) {
	now := time.Now().UTC()
	cfg.ID = uuid.NewString()
	cfg.Version = 0
	cfg.IsActive = false
	cfg.PublishedAt = nil
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.repo.SaveDraft(ctx, &cfg); err != nil {
		return "", err
	}
	s.log.Info("Created algorithm config draft", zap.String("id", cfg.ID))
	return cfg.ID, nil
}

// Publish validates the draft and atomically activates it. On any failure the
// previously active version stays active and keeps serving.
func (s *ConfigService) Publish(ctx context.Context, draftID string) (*domain.AlgorithmConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := s.repo.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		s.log.Warn("Rejected invalid config at publish",
			zap.String("id", draftID),
			zap.Error(err))
		return nil, err
	}

	version := int64(1)
	if current := s.active.Load(); current != nil {
		version = current.Version + 1
	}

	published, err := s.repo.Activate(ctx, draftID, version)
	if err != nil {
		return nil, err
	}
	s.active.Store(published)
	s.log.Info("Published algorithm config",
		zap.String("id", published.ID),
		zap.Int64("version", published.Version))
	return published, nil
}

// GetActive returns the current snapshot. The returned config is immutable;
// tasks pin it for their whole escalation.
func (s *ConfigService) GetActive() (*domain.AlgorithmConfig, error) {
	cfg := s.active.Load()
	if cfg == nil {
		return nil, domain.ErrNoActiveConfig
	}
	return cfg, nil
}

// ListVersions exposes the audit trail for read-only display.
func (s *ConfigService) ListVersions(ctx context.Context) ([]*domain.AlgorithmConfig, error) {
	return s.repo.ListVersions(ctx)
}
