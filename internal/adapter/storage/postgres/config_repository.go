package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
)

type configRepository struct {
	db  *pgxpool.Pool
	qb  squirrel.StatementBuilderType
	log *zap.Logger
}

// NewConfigRepository creates a postgres-backed config version store.
func NewConfigRepository(db *pgxpool.Pool, log *zap.Logger) port.ConfigRepository {
	return &configRepository{
		db:  db,
		qb:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log: log,
	}
}

func (r *configRepository) SaveDraft(ctx context.Context, cfg *domain.AlgorithmConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query, args, err := r.qb.Insert("algorithm_configs").
		Columns("id", "version", "is_active", "payload", "created_at", "updated_at").
		Values(cfg.ID, cfg.Version, cfg.IsActive, payload, cfg.CreatedAt, cfg.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.Error("Failed to save config draft", zap.String("id", cfg.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *configRepository) GetByID(ctx context.Context, id string) (*domain.AlgorithmConfig, error) {
	query, args, err := r.qb.Select("payload", "version", "is_active", "published_at", "updated_at").
		From("algorithm_configs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.scanOne(r.db.QueryRow(ctx, query, args...))
}

func (r *configRepository) GetActive(ctx context.Context) (*domain.AlgorithmConfig, error) {
	query, args, err := r.qb.Select("payload", "version", "is_active", "published_at", "updated_at").
		From("algorithm_configs").
		Where(squirrel.Eq{"is_active": true}).
		ToSql()
	if err != nil {
		return nil, err
	}
	cfg, err := r.scanOne(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActiveConfig
	}
	return cfg, err
}

func (r *configRepository) ListVersions(ctx context.Context) ([]*domain.AlgorithmConfig, error) {
	query, args, err := r.qb.Select("payload", "version", "is_active", "published_at", "updated_at").
		From("algorithm_configs").
		OrderBy("version DESC", "created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.AlgorithmConfig
	for rows.Next() {
		cfg, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Activate flips the previous active version off and the draft on in one
// transaction; readers never observe zero or two active versions.
func (r *configRepository) Activate(ctx context.Context, id string, version int64) (*domain.AlgorithmConfig, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE algorithm_configs SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE`, now); err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE algorithm_configs SET is_active = TRUE, version = $1, published_at = $2, updated_at = $2 WHERE id = $3`,
		version, now, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("config %s not found", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *configRepository) scanOne(row rowScanner) (*domain.AlgorithmConfig, error) {
	var (
		payload     []byte
		version     int64
		isActive    bool
		publishedAt *time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(&payload, &version, &isActive, &publishedAt, &updatedAt); err != nil {
		return nil, err
	}
	var cfg domain.AlgorithmConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config payload: %w", err)
	}
	// Lifecycle columns win over whatever the payload was saved with.
	cfg.Version = version
	cfg.IsActive = isActive
	cfg.PublishedAt = publishedAt
	cfg.UpdatedAt = updatedAt
	return &cfg, nil
}
