package infra_postgres_vote

import (
	"context"
	"time"

	"github.com/cinematch/core/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

type voteDTO struct {
	ID        uuid.UUID `db:"id"`
	RoomID    uuid.UUID `db:"room_id"`
	UserID    uuid.UUID `db:"user_id"`
	MovieID   int64     `db:"movie_id"`
	Liked     bool      `db:"liked"`
	CreatedAt time.Time `db:"created_at"`
}

// Upsert lands on the (room_id, user_id, movie_id) unique key: a repeat
// swipe overwrites the stored reaction instead of duplicating the row.
func (d *Driver) Upsert(ctx context.Context, vote model.Vote) error {
	query := `
        INSERT INTO votes (id, room_id, user_id, movie_id, liked)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (room_id, user_id, movie_id)
        DO UPDATE SET liked = EXCLUDED.liked
    `

	_, err := d.db.ExecContext(ctx, query,
		vote.ID, vote.RoomID, vote.UserID, vote.MovieID, vote.Liked,
	)
	return err
}

func (d *Driver) ByRoom(ctx context.Context, roomID uuid.UUID) ([]model.Vote, error) {
	var dtos []voteDTO

	query := `
        SELECT id, room_id, user_id, movie_id, liked, created_at
        FROM votes
        WHERE room_id = $1
        ORDER BY created_at
    `

	if err := d.db.SelectContext(ctx, &dtos, query, roomID); err != nil {
		return nil, err
	}

	votes := make([]model.Vote, 0, len(dtos))
	for _, dto := range dtos {
		votes = append(votes, model.Vote{
			ID:        dto.ID,
			RoomID:    dto.RoomID,
			UserID:    dto.UserID,
			MovieID:   dto.MovieID,
			Liked:     dto.Liked,
			CreatedAt: dto.CreatedAt,
		})
	}

	return votes, nil
}

func (d *Driver) CountsByUser(ctx context.Context, roomID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		UserID uuid.UUID `db:"user_id"`
		Count  int       `db:"count"`
	}

	query := `
        SELECT user_id, COUNT(*) as count
        FROM votes
        WHERE room_id = $1
        GROUP BY user_id
    `

	if err := d.db.SelectContext(ctx, &rows, query, roomID); err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.UserID] = row.Count
	}

	return counts, nil
}
