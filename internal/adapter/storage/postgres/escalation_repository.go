package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
)

type escalationRepository struct {
	db  *pgxpool.Pool
	qb  squirrel.StatementBuilderType
	log *zap.Logger
}

// NewEscalationRepository creates a postgres-backed escalation state store.
func NewEscalationRepository(db *pgxpool.Pool, log *zap.Logger) port.EscalationRepository {
	return &escalationRepository{
		db:  db,
		qb:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log: log,
	}
}

func (r *escalationRepository) Upsert(ctx context.Context, state *domain.EscalationState) error {
	tried, err := json.Marshal(state.OffersTried)
	if err != nil {
		return fmt.Errorf("marshal offers tried: %w", err)
	}
	var task []byte
	if state.Task != nil {
		if task, err = json.Marshal(state.Task); err != nil {
			return fmt.Errorf("marshal task: %w", err)
		}
	}

	query := `
		INSERT INTO escalation_states
			(task_id, task, status, current_tier, offers_tried, config_version, assigned_artist_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_tier = EXCLUDED.current_tier,
			offers_tried = EXCLUDED.offers_tried,
			assigned_artist_id = EXCLUDED.assigned_artist_id,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Exec(ctx, query,
		state.TaskID, task, state.Status, state.CurrentTier, tried,
		state.ConfigVersion, state.AssignedArtistID, state.CreatedAt, state.UpdatedAt); err != nil {
		r.log.Error("Failed to upsert escalation state", zap.String("task_id", state.TaskID), zap.Error(err))
		return err
	}
	return nil
}

func (r *escalationRepository) GetByTask(ctx context.Context, taskID string) (*domain.EscalationState, error) {
	query, args, err := r.qb.Select(
		"task_id", "task", "status", "current_tier", "offers_tried",
		"config_version", "assigned_artist_id", "created_at", "updated_at").
		From("escalation_states").
		Where(squirrel.Eq{"task_id": taskID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	state, err := scanState(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return state, err
}

func (r *escalationRepository) ListActive(ctx context.Context) ([]*domain.EscalationState, error) {
	query, args, err := r.qb.Select(
		"task_id", "task", "status", "current_tier", "offers_tried",
		"config_version", "assigned_artist_id", "created_at", "updated_at").
		From("escalation_states").
		Where(squirrel.Eq{"status": []domain.EscalationStatus{
			domain.StatusLevel1Active, domain.StatusLevel2Active, domain.StatusLevel3Broadcast,
		}}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.EscalationState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func scanState(row rowScanner) (*domain.EscalationState, error) {
	var (
		s     domain.EscalationState
		task  []byte
		tried []byte
	)
	if err := row.Scan(&s.TaskID, &task, &s.Status, &s.CurrentTier, &tried,
		&s.ConfigVersion, &s.AssignedArtistID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(task) > 0 {
		s.Task = &domain.Task{}
		if err := json.Unmarshal(task, s.Task); err != nil {
			return nil, fmt.Errorf("unmarshal task payload: %w", err)
		}
	}
	s.OffersTried = make(map[domain.Tier]int)
	if len(tried) > 0 {
		if err := json.Unmarshal(tried, &s.OffersTried); err != nil {
			return nil, fmt.Errorf("unmarshal offers tried: %w", err)
		}
	}
	return &s, nil
}
