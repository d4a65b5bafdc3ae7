package postgres

import (
	"context"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
)

type offerRepository struct {
	db  *pgxpool.Pool
	qb  squirrel.StatementBuilderType
	log *zap.Logger
}

// NewOfferRepository creates a postgres-backed offer audit trail.
func NewOfferRepository(db *pgxpool.Pool, log *zap.Logger) port.OfferRepository {
	return &offerRepository{
		db:  db,
		qb:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log: log,
	}
}

func (r *offerRepository) Save(ctx context.Context, offer *domain.TaskOffer) error {
	query, args, err := r.qb.Insert("task_offers").
		Columns("id", "task_id", "artist_id", "tier", "score", "offered_at", "expires_at", "outcome").
		Values(offer.ID, offer.TaskID, offer.ArtistID, offer.Tier, offer.Score,
			offer.OfferedAt, offer.ExpiresAt, offer.Outcome).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.Error("Failed to save offer", zap.String("offer_id", offer.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *offerRepository) UpdateOutcome(ctx context.Context, offerID string, outcome domain.OfferOutcome, artistID string) error {
	builder := r.qb.Update("task_offers").
		Set("outcome", outcome).
		Where(squirrel.Eq{"id": offerID})
	if artistID != "" {
		// Level3 broadcast claims fill the artist in at resolution time.
		builder = builder.Set("artist_id", artistID)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

func (r *offerRepository) GetByID(ctx context.Context, offerID string) (*domain.TaskOffer, error) {
	offers, err := r.query(ctx, squirrel.Eq{"id": offerID}, "")
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, domain.ErrOfferNotFound
	}
	return offers[0], nil
}

func (r *offerRepository) ListByTask(ctx context.Context, taskID string) ([]*domain.TaskOffer, error) {
	return r.query(ctx, squirrel.Eq{"task_id": taskID}, "offered_at ASC")
}

func (r *offerRepository) ListPending(ctx context.Context) ([]*domain.TaskOffer, error) {
	return r.query(ctx, squirrel.Eq{"outcome": domain.OfferPending}, "expires_at ASC")
}

func (r *offerRepository) query(ctx context.Context, where squirrel.Eq, orderBy string) ([]*domain.TaskOffer, error) {
	builder := r.qb.Select("id", "task_id", "artist_id", "tier", "score", "offered_at", "expires_at", "outcome").
		From("task_offers").
		Where(where)
	if orderBy != "" {
		builder = builder.OrderBy(orderBy)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var offers []*domain.TaskOffer
	for rows.Next() {
		var o domain.TaskOffer
		if err := rows.Scan(&o.ID, &o.TaskID, &o.ArtistID, &o.Tier, &o.Score,
			&o.OfferedAt, &o.ExpiresAt, &o.Outcome); err != nil {
			return nil, err
		}
		offers = append(offers, &o)
	}
	return offers, rows.Err()
}
