package usecase_room

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cinematch/core/internal/model"
	"github.com/google/uuid"
)

var (
	ErrCodeConflict     = errors.New("code conflict")
	ErrRoomConflict     = errors.New("room state conflict")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomsUnavailable = errors.New("no available rooms")
	ErrInternal         = errors.New("internal error")
	ErrResourceNotFound = errors.New("no such resource")
)

const (
	MaxParticipants = 10

	// RoomLifetime bounds how long an abandoned room survives before the
	// periodic cleanup removes it.
	RoomLifetime = 24 * time.Hour
)

type RoomRepository interface {
	// Create inserts the room together with its creator as the first
	// participant. Returns ErrCodeConflict on a code collision.
	Create(ctx context.Context, room model.Room) error
	ByCode(ctx context.Context, code string) (model.Room, error)
	ByID(ctx context.Context, id uuid.UUID) (model.Room, error)

	// AddParticipant is an upsert on (room_id, user_id): rejoin is a no-op.
	AddParticipant(ctx context.Context, roomID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error
	Participants(ctx context.Context, roomID uuid.UUID) ([]model.Participant, error)

	// StartVoting atomically sets movie_ids and status=voting, guarded by
	// status='waiting'. Returns false when the guard failed (someone else
	// already started the room).
	StartVoting(ctx context.Context, roomID uuid.UUID, movieIDs []int64) (bool, error)
	// FinishVoting sets status=finished guarded by status='voting'.
	FinishVoting(ctx context.Context, roomID uuid.UUID) (bool, error)

	DeleteOlderThan(ctx context.Context, age time.Duration) error
}

type PoolGenerator interface {
	Generate(ctx context.Context, roomID uuid.UUID) ([]int64, error)
}

type Usecase struct {
	roomRepository RoomRepository
	pool           PoolGenerator

	// Orphaned rooms are swept on every Nth creation. The counter is
	// atomic: the usecase is shared across request goroutines.
	cleanupPeriod int64
	createsCount  atomic.Int64
}

func New(
	roomRepository RoomRepository,
	pool PoolGenerator,
	cleanup int,
) *Usecase {
	if cleanup <= 0 {
		cleanup = 20 /* default */
	}

	return &Usecase{
		roomRepository: roomRepository,
		pool:           pool,
		cleanupPeriod:  int64(cleanup),
	}
}

func (u *Usecase) Create(ctx context.Context, creatorID uuid.UUID) (model.Room, error) {
	if u.createsCount.Add(1)%u.cleanupPeriod == 0 {
		if err := u.roomRepository.DeleteOlderThan(ctx, RoomLifetime); err != nil {
			return model.Room{}, errors.Join(ErrInternal, err)
		}
	}

	return u.createWaitingRoom(ctx, creatorID)
}

// Assuming that codes can conflict.
// Retrying...
func (u *Usecase) createWaitingRoom(ctx context.Context, creatorID uuid.UUID) (model.Room, error) {
	var retries = 3
	for retries > 0 {
		room := model.Room{
			ID:        uuid.New(),
			Code:      u.buildRoomCode(),
			CreatorID: creatorID,
			Status:    model.StatusWaiting,
		}
		if err := u.roomRepository.Create(ctx, room); err != nil {
			if errors.Is(err, ErrCodeConflict) {
				retries--
			} else {
				return model.Room{}, errors.Join(ErrInternal, err)
			}
		} else {
			return room, nil
		}
	}
	return model.Room{}, ErrRoomsUnavailable
}

// Codes skip lookalike characters (0/O, 1/I/L) and are stored uppercase;
// lookups normalize, so codes compare case-insensitively.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func (u *Usecase) buildRoomCode() string {
	var builder strings.Builder
	builder.Grow(model.RoomCodeLen)

	for i := 0; i < model.RoomCodeLen; i++ {
		builder.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}

	return builder.String()
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (u *Usecase) Join(ctx context.Context, code string, userID uuid.UUID) (model.Room, error) {
	room, err := u.roomRepository.ByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return model.Room{}, ErrResourceNotFound
		}
		return model.Room{}, errors.Join(ErrInternal, err)
	}

	// Late joiners are rejected, not queued. Applies to former participants
	// as well.
	if room.Status != model.StatusWaiting {
		return model.Room{}, ErrRoomConflict
	}

	participants, err := u.roomRepository.Participants(ctx, room.ID)
	if err != nil {
		return model.Room{}, errors.Join(ErrInternal, err)
	}
	if len(participants) >= MaxParticipants && !isParticipant(participants, userID) {
		return model.Room{}, ErrRoomFull
	}

	if err := u.roomRepository.AddParticipant(ctx, room.ID, userID); err != nil {
		return model.Room{}, errors.Join(ErrInternal, err)
	}

	return room, nil
}

func (u *Usecase) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	if err := u.roomRepository.RemoveParticipant(ctx, roomID, userID); err != nil {
		return errors.Join(ErrInternal, err)
	}
	return nil
}

// Start moves the room waiting -> voting. The pool is generated at most
// once: the conditional status update is the only writer of movie_ids, so
// when two starts race the loser's write affects no rows and it re-reads
// the winner's pool instead of erroring.
func (u *Usecase) Start(ctx context.Context, roomID uuid.UUID) ([]int64, error) {
	room, err := u.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	switch room.Status {
	case model.StatusVoting:
		return room.MovieIDs, nil
	case model.StatusFinished:
		return nil, ErrRoomConflict
	}

	movieIDs := room.MovieIDs
	if !room.HasPool() {
		movieIDs, err = u.pool.Generate(ctx, roomID)
		if err != nil {
			return nil, err
		}
	}

	started, err := u.roomRepository.StartVoting(ctx, roomID, movieIDs)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	if started {
		return movieIDs, nil
	}

	// Lost the race: adopt whatever the winner persisted.
	room, err = u.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status == model.StatusVoting {
		return room.MovieIDs, nil
	}
	return nil, ErrRoomConflict
}

func (u *Usecase) Finish(ctx context.Context, roomID uuid.UUID) error {
	finished, err := u.roomRepository.FinishVoting(ctx, roomID)
	if err != nil {
		return errors.Join(ErrInternal, err)
	}
	if finished {
		return nil
	}

	room, err := u.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == model.StatusFinished {
		// Someone finished first. Same outcome.
		return nil
	}
	return ErrRoomConflict
}

func (u *Usecase) Get(ctx context.Context, roomID uuid.UUID) (model.Room, error) {
	room, err := u.roomRepository.ByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return model.Room{}, ErrResourceNotFound
		}
		return model.Room{}, errors.Join(ErrInternal, err)
	}
	return room, nil
}

func (u *Usecase) Participants(ctx context.Context, roomID uuid.UUID) ([]model.Participant, error) {
	participants, err := u.roomRepository.Participants(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}

	// An empty scan is ambiguous: the room may not exist at all. Unknown
	// room ids must read as not-found, not as an empty lobby.
	if len(participants) == 0 {
		if _, err := u.roomRepository.ByID(ctx, roomID); err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				return nil, ErrResourceNotFound
			}
			return nil, errors.Join(ErrInternal, err)
		}
	}

	return participants, nil
}

func isParticipant(participants []model.Participant, userID uuid.UUID) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
