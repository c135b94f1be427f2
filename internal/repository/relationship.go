package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fedfollow/internal/model"
)

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

type relationshipRepository struct {
	db *sqlx.DB
}

func NewRelationshipRepository(db *sqlx.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

const relationshipColumns = `
	id, user_id, actor_url, accepted,
	COALESCE(inbox_url, '') AS inbox_url,
	COALESCE(shared_inbox_url, '') AS shared_inbox_url,
	created_at`

func (r *relationshipRepository) GetFollowing(ctx context.Context, userID int64, actorURL string) (*model.Following, error) {
	query := `SELECT ` + relationshipColumns + ` FROM following WHERE user_id = $1 AND actor_url = $2`

	var f model.Following
	err := r.db.GetContext(ctx, &f, query, userID, actorURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get following: %w", err)
	}
	return &f, nil
}

func (r *relationshipRepository) CreateFollowing(ctx context.Context, f *model.Following) error {
	return createFollowing(ctx, r.db, f)
}

func createFollowing(ctx context.Context, q sqlx.QueryerContext, f *model.Following) error {
	query := `
		INSERT INTO following (user_id, actor_url, accepted, inbox_url, shared_inbox_url, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING id
	`
	err := q.QueryRowxContext(ctx, query,
		f.UserID, f.ActorURL, f.Accepted, f.InboxURL, f.SharedInboxURL, f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.ErrConflict
		}
		return fmt.Errorf("failed to create following: %w", err)
	}
	return nil
}

func (r *relationshipRepository) ReplaceFollowing(ctx context.Context, staleID int64, f *model.Following) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := deletePendingFollowing(ctx, tx, staleID); err != nil {
			return err
		}
		return createFollowing(ctx, tx, f)
	})
}

func deletePendingFollowing(ctx context.Context, e sqlx.ExecerContext, id int64) error {
	if id == 0 {
		return nil
	}
	if _, err := e.ExecContext(ctx, `DELETE FROM following WHERE id = $1 AND NOT accepted`, id); err != nil {
		return fmt.Errorf("failed to delete stale following: %w", err)
	}
	return nil
}

func (r *relationshipRepository) SetFollowingAccepted(ctx context.Context, userID int64, actorURL string) error {
	return setFollowingAccepted(ctx, r.db, userID, actorURL)
}

func setFollowingAccepted(ctx context.Context, e sqlx.ExecerContext, userID int64, actorURL string) error {
	query := `UPDATE following SET accepted = TRUE WHERE user_id = $1 AND actor_url = $2`
	result, err := e.ExecContext(ctx, query, userID, actorURL)
	if err != nil {
		return fmt.Errorf("failed to accept following: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrNotFollowing
	}
	return nil
}

func (r *relationshipRepository) DeleteFollowing(ctx context.Context, userID int64, actorURL string) error {
	return deleteFollowing(ctx, r.db, userID, actorURL)
}

func deleteFollowing(ctx context.Context, e sqlx.ExecerContext, userID int64, actorURL string) error {
	query := `DELETE FROM following WHERE user_id = $1 AND actor_url = $2`
	if _, err := e.ExecContext(ctx, query, userID, actorURL); err != nil {
		return fmt.Errorf("failed to delete following: %w", err)
	}
	return nil
}

func (r *relationshipRepository) UpsertFollower(ctx context.Context, f *model.Follower) error {
	return upsertFollower(ctx, r.db, f)
}

// upsertFollower never rewrites identity columns on conflict.
func upsertFollower(ctx context.Context, q sqlx.QueryerContext, f *model.Follower) error {
	query := `
		INSERT INTO follower (user_id, actor_url, accepted, inbox_url, shared_inbox_url, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		ON CONFLICT (user_id, actor_url) DO UPDATE SET
			accepted = EXCLUDED.accepted,
			inbox_url = EXCLUDED.inbox_url,
			shared_inbox_url = EXCLUDED.shared_inbox_url
		RETURNING id, created_at
	`
	err := q.QueryRowxContext(ctx, query,
		f.UserID, f.ActorURL, f.Accepted, f.InboxURL, f.SharedInboxURL, f.CreatedAt,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert follower: %w", err)
	}
	return nil
}

func (r *relationshipRepository) DeleteFollowerByActor(ctx context.Context, userID int64, actorURL string) error {
	return deleteFollowerByActor(ctx, r.db, userID, actorURL)
}

func deleteFollowerByActor(ctx context.Context, e sqlx.ExecerContext, userID int64, actorURL string) error {
	query := `DELETE FROM follower WHERE user_id = $1 AND actor_url = $2`
	if _, err := e.ExecContext(ctx, query, userID, actorURL); err != nil {
		return fmt.Errorf("failed to delete follower: %w", err)
	}
	return nil
}

func (r *relationshipRepository) ListPendingFollowers(ctx context.Context, userID int64) ([]model.Follower, error) {
	query := `SELECT ` + relationshipColumns + `
		FROM follower
		WHERE user_id = $1 AND NOT accepted
		ORDER BY created_at DESC
	`
	followers := []model.Follower{}
	if err := r.db.SelectContext(ctx, &followers, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list pending followers: %w", err)
	}
	return followers, nil
}

func (r *relationshipRepository) GetFollowerByID(ctx context.Context, id int64) (*model.Follower, error) {
	query := `SELECT ` + relationshipColumns + ` FROM follower WHERE id = $1`

	var f model.Follower
	err := r.db.GetContext(ctx, &f, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get follower: %w", err)
	}
	return &f, nil
}

func (r *relationshipRepository) MarkFollowerAccepted(ctx context.Context, id int64) error {
	return markFollowerAccepted(ctx, r.db, id)
}

func markFollowerAccepted(ctx context.Context, e sqlx.ExecerContext, id int64) error {
	if _, err := e.ExecContext(ctx, `UPDATE follower SET accepted = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to accept follower: %w", err)
	}
	return nil
}

func (r *relationshipRepository) DeleteFollowerByID(ctx context.Context, id int64) error {
	return deleteFollowerByID(ctx, r.db, id)
}

func deleteFollowerByID(ctx context.Context, e sqlx.ExecerContext, id int64) error {
	if _, err := e.ExecContext(ctx, `DELETE FROM follower WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete follower: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing only when fn succeeds.
func (r *relationshipRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *relationshipRepository) ApplyLocalFollow(ctx context.Context, staleID int64, following *model.Following, follower *model.Follower) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := deletePendingFollowing(ctx, tx, staleID); err != nil {
			return err
		}
		if err := upsertFollower(ctx, tx, follower); err != nil {
			return err
		}
		return createFollowing(ctx, tx, following)
	})
}

func (r *relationshipRepository) RemoveLocalFollow(ctx context.Context, requesterID int64, targetURL string, targetID int64, requesterURL string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteFollowing(ctx, tx, requesterID, targetURL); err != nil {
			return err
		}
		return deleteFollowerByActor(ctx, tx, targetID, requesterURL)
	})
}

func (r *relationshipRepository) AcceptLocalFollow(ctx context.Context, followerID int64, requesterID int64, targetURL string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := markFollowerAccepted(ctx, tx, followerID); err != nil {
			return err
		}
		// The requester may have cancelled in the meantime; a missing Following row is fine.
		err := setFollowingAccepted(ctx, tx, requesterID, targetURL)
		if err != nil && !errors.Is(err, model.ErrNotFollowing) {
			return err
		}
		return nil
	})
}

func (r *relationshipRepository) RejectLocalFollow(ctx context.Context, followerID int64, requesterID int64, targetURL string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteFollowerByID(ctx, tx, followerID); err != nil {
			return err
		}
		return deleteFollowing(ctx, tx, requesterID, targetURL)
	})
}
