package model

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus = string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusVoting   RoomStatus = "voting"
	StatusFinished RoomStatus = "finished"
)

const RoomCodeLen = 6

type Room struct {
	ID        uuid.UUID
	Code      string
	CreatorID uuid.UUID
	Status    RoomStatus

	// MovieIDs is the room's candidate pool. Empty until voting starts,
	// written exactly once so every participant swipes the same set.
	MovieIDs []int64

	CreatedAt time.Time
}

func (r Room) HasPool() bool {
	return len(r.MovieIDs) > 0
}

type Participant struct {
	ID       uuid.UUID
	RoomID   uuid.UUID
	UserID   uuid.UUID
	JoinedAt time.Time
}
