package usecase_vote

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cinematch/core/internal/model"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	"github.com/google/uuid"
)

var (
	ErrUnableToSaveVote   = errors.New("unable to save vote")
	ErrUnableToGetResults = errors.New("unable to get results")
	ErrInvalidInput       = errors.New("invalid input")

	// The participant reader is backed by the room storage; reuse its
	// not-found sentinel.
	ErrResourceNotFound = usecase_room.ErrResourceNotFound
)

type VoteRepository interface {
	// Upsert replaces an existing vote on the same (room, user, movie) key.
	Upsert(ctx context.Context, vote model.Vote) error
	ByRoom(ctx context.Context, roomID uuid.UUID) ([]model.Vote, error)
	// CountsByUser returns per-user vote counts for the room, cheaper than
	// loading the full ledger when only progress is needed.
	CountsByUser(ctx context.Context, roomID uuid.UUID) (map[uuid.UUID]int, error)
}

type ParticipantReader interface {
	Participants(ctx context.Context, roomID uuid.UUID) ([]model.Participant, error)
}

type Usecase struct {
	voteRepository VoteRepository
	participants   ParticipantReader
}

func New(
	r VoteRepository,
	p ParticipantReader,
) *Usecase {
	return &Usecase{
		voteRepository: r,
		participants:   p,
	}
}

// Record registers one swipe. Double submits (network retries) land on the
// unique (room, user, movie) key and overwrite, never duplicate. Votes that
// slip in after the room finished are accepted: results are recomputed on
// demand, so a straggler is harmless.
func (u *Usecase) Record(ctx context.Context, roomID, userID uuid.UUID, movieID int64, liked bool) error {
	if roomID == uuid.Nil || userID == uuid.Nil || movieID <= 0 {
		return fmt.Errorf("%w: room, user and movie ids are required", ErrInvalidInput)
	}

	vote := model.Vote{
		ID:      uuid.New(),
		RoomID:  roomID,
		UserID:  userID,
		MovieID: movieID,
		Liked:   liked,
	}
	if err := u.voteRepository.Upsert(ctx, vote); err != nil {
		return fmt.Errorf("%w: %w", ErrUnableToSaveVote, err)
	}

	return nil
}

// Results recomputes consensus from the current ledger. Never persisted:
// it's a deterministic function of the vote set, so recomputing is always
// consistent no matter how submissions interleaved.
func (u *Usecase) Results(ctx context.Context, roomID uuid.UUID) (model.RoomResults, error) {
	votes, err := u.voteRepository.ByRoom(ctx, roomID)
	if err != nil {
		return model.RoomResults{}, fmt.Errorf("%w: %w", ErrUnableToGetResults, err)
	}

	participants, err := u.participants.Participants(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return model.RoomResults{}, ErrResourceNotFound
		}
		return model.RoomResults{}, fmt.Errorf("%w: %w", ErrUnableToGetResults, err)
	}

	return Tally(votes, len(participants)), nil
}

func (u *Usecase) Progress(ctx context.Context, roomID uuid.UUID) (model.VotingProgress, error) {
	counts, err := u.voteRepository.CountsByUser(ctx, roomID)
	if err != nil {
		return model.VotingProgress{}, fmt.Errorf("%w: %w", ErrUnableToGetResults, err)
	}

	participants, err := u.participants.Participants(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return model.VotingProgress{}, ErrResourceNotFound
		}
		return model.VotingProgress{}, fmt.Errorf("%w: %w", ErrUnableToGetResults, err)
	}

	return ComputeProgress(counts, participants), nil
}

type movieVotes struct {
	movieID  int64
	liked    []uuid.UUID
	disliked []uuid.UUID
}

// Tally partitions every voted-on movie into exactly one bucket: full match
// when everyone liked it, partial when some did, no-match when it was shown
// and nobody liked it. Movies nobody voted on are absent entirely. Buckets
// come back sorted by like count descending; ties keep first-vote order.
func Tally(votes []model.Vote, participantCount int) model.RoomResults {
	byMovie := make(map[int64]*movieVotes)
	order := make([]*movieVotes, 0)

	for _, v := range votes {
		mv, ok := byMovie[v.MovieID]
		if !ok {
			mv = &movieVotes{movieID: v.MovieID}
			byMovie[v.MovieID] = mv
			order = append(order, mv)
		}
		if v.Liked {
			mv.liked = append(mv.liked, v.UserID)
		} else {
			mv.disliked = append(mv.disliked, v.UserID)
		}
	}

	results := model.RoomResults{
		Matches: make([]model.MovieTally, 0),
		Partial: make([]model.MovieTally, 0),
		NoMatch: make([]int64, 0),
	}
	for _, mv := range order {
		switch {
		case len(mv.liked) > 0 && len(mv.liked) == participantCount:
			results.Matches = append(results.Matches, model.MovieTally{
				MovieID: mv.movieID,
				Likes:   len(mv.liked),
				Voters:  mv.liked,
			})
		case len(mv.liked) > 0:
			results.Partial = append(results.Partial, model.MovieTally{
				MovieID: mv.movieID,
				Likes:   len(mv.liked),
				Voters:  mv.liked,
			})
		default:
			results.NoMatch = append(results.NoMatch, mv.movieID)
		}
	}

	sort.SliceStable(results.Matches, func(i, j int) bool {
		return results.Matches[i].Likes > results.Matches[j].Likes
	})
	sort.SliceStable(results.Partial, func(i, j int) bool {
		return results.Partial[i].Likes > results.Partial[j].Likes
	})

	return results
}

// ComputeProgress marks a participant finished once they hit the swipe
// quota. Consumers recompute full results only when FinishedCount moves,
// which keeps tallying off the hot vote path.
func ComputeProgress(counts map[uuid.UUID]int, participants []model.Participant) model.VotingProgress {
	voteCounts := make(map[uuid.UUID]int, len(participants))
	for _, p := range participants {
		voteCounts[p.UserID] = 0
	}
	for userID, n := range counts {
		voteCounts[userID] = n
	}

	// Only current participants count toward completion; a voter who left
	// keeps their entry in VoteCounts but no longer gates the finish.
	finished := 0
	for _, p := range participants {
		if voteCounts[p.UserID] >= model.SwipeQuota {
			finished++
		}
	}

	return model.VotingProgress{
		ParticipantCount: len(participants),
		FinishedCount:    finished,
		AllFinished:      len(participants) > 0 && finished == len(participants),
		VoteCounts:       voteCounts,
	}
}
