package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fedfollow/internal/model"
)

// actorRepository implements ActorRepository using sqlx
type actorRepository struct {
	db *sqlx.DB
}

func NewActorRepository(db *sqlx.DB) ActorRepository {
	return &actorRepository{db: db}
}

const actorColumns = `
	id, username, is_remote,
	COALESCE(external_actor_url, '') AS external_actor_url,
	COALESCE(inbox_url, '') AS inbox_url,
	COALESCE(shared_inbox_url, '') AS shared_inbox_url,
	auto_accept_followers, created_at`

func (r *actorRepository) GetByHandle(ctx context.Context, username string, isRemote bool) (*model.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE username = $1 AND is_remote = $2`

	var a model.Actor
	err := r.db.GetContext(ctx, &a, query, username, isRemote)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrActorNotFound
		}
		return nil, fmt.Errorf("failed to get actor by handle: %w", err)
	}

	a.Policy = model.PolicyFromSetting(a.AutoAccept)
	return &a, nil
}

func (r *actorRepository) GetByID(ctx context.Context, id int64) (*model.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE id = $1`

	var a model.Actor
	err := r.db.GetContext(ctx, &a, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrActorNotFound
		}
		return nil, fmt.Errorf("failed to get actor by id: %w", err)
	}

	a.Policy = model.PolicyFromSetting(a.AutoAccept)
	return &a, nil
}
