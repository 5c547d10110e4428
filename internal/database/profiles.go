package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bara-app/buddy-service/internal/models"
	"github.com/bara-app/buddy-service/internal/store"
)

const profileColumns = "id, display_name, invite_code, buddy_id, points, health"

func scanProfile(row pgx.Row) (*models.BuddyProfile, error) {
	var p models.BuddyProfile
	var buddyID uuid.NullUUID
	err := row.Scan(&p.ID, &p.DisplayName, &p.InviteCode, &buddyID, &p.Points, &p.Health)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if buddyID.Valid {
		id := buddyID.UUID
		p.BuddyID = &id
	}
	return &p, nil
}

// GetProfile returns the profile with the given id.
func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.BuddyProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE id=$1`
	return scanProfile(s.pool.QueryRow(ctx, q, id))
}

// GetProfileByInviteCode returns the profile owning the invite code. Codes
// are stored normalized (upper-case), so the lookup is a plain equality.
func (s *Store) GetProfileByInviteCode(ctx context.Context, code string) (*models.BuddyProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE invite_code=$1`
	return scanProfile(s.pool.QueryRow(ctx, q, code))
}

// InsertProfile creates a new profile row.
func (s *Store) InsertProfile(ctx context.Context, p *models.BuddyProfile) error {
	q := `INSERT INTO profiles (id, display_name, invite_code, buddy_id, points, health)
	      VALUES ($1, $2, $3, $4, $5, $6)`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, p.ID, p.DisplayName, p.InviteCode, p.BuddyID, p.Points, p.Health)
		return err
	})
}

// PatchProfile applies a partial update and returns the updated row, or
// store.ErrNotFound when no row matches.
func (s *Store) PatchProfile(ctx context.Context, id uuid.UUID, patch store.ProfilePatch) (*models.BuddyProfile, error) {
	sets := []string{}
	args := []interface{}{id}
	n := 2

	add := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s=$%d", col, n))
		args = append(args, v)
		n++
	}

	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.InviteCode != nil {
		add("invite_code", *patch.InviteCode)
	}
	if patch.Points != nil {
		add("points", models.ClampPoints(*patch.Points))
	}
	if patch.Health != nil {
		add("health", models.ClampHealth(*patch.Health))
	}
	if patch.SetBuddyID {
		add("buddy_id", patch.BuddyID)
	}
	if len(sets) == 0 {
		return s.GetProfile(ctx, id)
	}

	q := "UPDATE profiles SET "
	for i, set := range sets {
		if i > 0 {
			q += ", "
		}
		q += set
	}
	q += " WHERE id=$1 RETURNING " + profileColumns

	return scanProfile(s.pool.QueryRow(ctx, q, args...))
}

// AdjustPointsHealth applies both deltas in a single arithmetic UPDATE, so
// two concurrent adjustments to the same profile serialize at the row
// instead of overwriting each other.
func (s *Store) AdjustPointsHealth(ctx context.Context, id uuid.UUID, pointsDelta, healthDelta int) (*models.BuddyProfile, error) {
	q := `UPDATE profiles
	      SET points = GREATEST(points + $2, 0),
	          health = LEAST(GREATEST(health + $3, 0), 100)
	      WHERE id=$1
	      RETURNING ` + profileColumns
	return scanProfile(s.pool.QueryRow(ctx, q, id, pointsDelta, healthDelta))
}

// PairProfiles writes both buddy pointers inside one transaction so a crash
// between the two updates cannot leave the relationship asymmetric.
func (s *Store) PairProfiles(ctx context.Context, meID, buddyID uuid.UUID) error {
	q := `UPDATE profiles SET buddy_id=$2 WHERE id=$1`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, meID, buddyID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		ct, err = tx.Exec(ctx, q, buddyID, meID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}
