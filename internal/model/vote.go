package model

import (
	"time"

	"github.com/google/uuid"
)

// SwipeQuota is the number of swipes after which a participant is done.
const SwipeQuota = 20

type Vote struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	UserID    uuid.UUID
	MovieID   int64
	Liked     bool
	CreatedAt time.Time
}

// MovieTally is one voted-on movie with its like count and the users who
// liked it.
type MovieTally struct {
	MovieID int64
	Likes   int
	Voters  []uuid.UUID
}

// RoomResults partitions every voted-on movie into exactly one bucket.
// Movies nobody reached appear nowhere.
type RoomResults struct {
	Matches []MovieTally // liked by every participant
	Partial []MovieTally // liked by some, not all
	NoMatch []int64      // shown and rejected by everyone who voted on it
}

type VotingProgress struct {
	ParticipantCount int
	FinishedCount    int
	AllFinished      bool
	VoteCounts       map[uuid.UUID]int
}
