package infra_postgres_room

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cinematch/core/internal/model"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Driver struct {
	db *sqlx.DB
}

func New(
	db *sqlx.DB,
) *Driver {
	return &Driver{db: db}
}

type roomDTO struct {
	ID        uuid.UUID     `db:"id"`
	Code      string        `db:"code"`
	CreatorID uuid.UUID     `db:"creator_id"`
	Status    string        `db:"status"`
	MovieIDs  pq.Int64Array `db:"movie_ids"`
	CreatedAt time.Time     `db:"created_at"`
}

type participantDTO struct {
	ID       uuid.UUID `db:"id"`
	RoomID   uuid.UUID `db:"room_id"`
	UserID   uuid.UUID `db:"user_id"`
	JoinedAt time.Time `db:"joined_at"`
}

func (dto roomDTO) toModel() model.Room {
	return model.Room{
		ID:        dto.ID,
		Code:      dto.Code,
		CreatorID: dto.CreatorID,
		Status:    dto.Status,
		MovieIDs:  []int64(dto.MovieIDs),
		CreatedAt: dto.CreatedAt,
	}
}

// Create inserts the room and registers the creator as its first
// participant within one transaction.
func (d *Driver) Create(ctx context.Context, room model.Room) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	roomQuery := `
		INSERT INTO rooms (id, code, creator_id, status, movie_ids)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, roomQuery,
		room.ID, room.Code, room.CreatorID, room.Status, pq.Int64Array(room.MovieIDs),
	); err != nil {
		if strings.Contains(err.Error(), "unique constraint") ||
			strings.Contains(err.Error(), "duplicate key") {
			return usecase_room.ErrCodeConflict
		}
		return err
	}

	participantQuery := `
		INSERT INTO room_participants (id, room_id, user_id)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, participantQuery,
		uuid.New(), room.ID, room.CreatorID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (d *Driver) ByCode(ctx context.Context, code string) (model.Room, error) {
	var dto roomDTO

	query := `
        SELECT id, code, creator_id, status, movie_ids, created_at
        FROM rooms
        WHERE code = $1
    `

	err := d.db.GetContext(ctx, &dto, query, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Room{}, usecase_room.ErrResourceNotFound
		}
		return model.Room{}, err
	}

	return dto.toModel(), nil
}

func (d *Driver) ByID(ctx context.Context, id uuid.UUID) (model.Room, error) {
	var dto roomDTO

	query := `
        SELECT id, code, creator_id, status, movie_ids, created_at
        FROM rooms
        WHERE id = $1
    `

	err := d.db.GetContext(ctx, &dto, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Room{}, usecase_room.ErrResourceNotFound
		}
		return model.Room{}, err
	}

	return dto.toModel(), nil
}

func (d *Driver) AddParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	query := `
        INSERT INTO room_participants (id, room_id, user_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (room_id, user_id)
        DO NOTHING
    `

	_, err := d.db.ExecContext(ctx, query, uuid.New(), roomID, userID)
	return err
}

func (d *Driver) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	query := `
        DELETE FROM room_participants
        WHERE room_id = $1 AND user_id = $2
    `

	_, err := d.db.ExecContext(ctx, query, roomID, userID)
	return err
}

func (d *Driver) Participants(ctx context.Context, roomID uuid.UUID) ([]model.Participant, error) {
	var dtos []participantDTO

	query := `
        SELECT id, room_id, user_id, joined_at
        FROM room_participants
        WHERE room_id = $1
        ORDER BY joined_at
    `

	if err := d.db.SelectContext(ctx, &dtos, query, roomID); err != nil {
		return nil, err
	}

	participants := make([]model.Participant, 0, len(dtos))
	for _, dto := range dtos {
		participants = append(participants, model.Participant{
			ID:       dto.ID,
			RoomID:   dto.RoomID,
			UserID:   dto.UserID,
			JoinedAt: dto.JoinedAt,
		})
	}

	return participants, nil
}

// StartVoting is the compare-and-swap that makes pool generation
// once-per-room: the write lands only while the status is still 'waiting'.
func (d *Driver) StartVoting(ctx context.Context, roomID uuid.UUID, movieIDs []int64) (bool, error) {
	query := `
        UPDATE rooms
        SET movie_ids = $1, status = $2
        WHERE id = $3 AND status = $4
    `

	result, err := d.db.ExecContext(ctx, query,
		pq.Int64Array(movieIDs), model.StatusVoting, roomID, model.StatusWaiting,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

func (d *Driver) FinishVoting(ctx context.Context, roomID uuid.UUID) (bool, error) {
	query := `
        UPDATE rooms
        SET status = $1
        WHERE id = $2 AND status = $3
    `

	result, err := d.db.ExecContext(ctx, query, model.StatusFinished, roomID, model.StatusVoting)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

func (d *Driver) DeleteOlderThan(ctx context.Context, age time.Duration) error {
	query := `
        DELETE FROM rooms
        WHERE created_at < $1
    `

	_, err := d.db.ExecContext(ctx, query, time.Now().Add(-age))
	return err
}
