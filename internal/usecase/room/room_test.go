package usecase_room

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cinematch/core/internal/model"
	"github.com/google/uuid"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type roomRepoMock struct {
	mock.Mock
}

func (m *roomRepoMock) Create(ctx context.Context, room model.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *roomRepoMock) ByCode(ctx context.Context, code string) (model.Room, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(model.Room), args.Error(1)
}

func (m *roomRepoMock) ByID(ctx context.Context, id uuid.UUID) (model.Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Room), args.Error(1)
}

func (m *roomRepoMock) AddParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *roomRepoMock) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *roomRepoMock) Participants(ctx context.Context, roomID uuid.UUID) ([]model.Participant, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]model.Participant), args.Error(1)
}

func (m *roomRepoMock) StartVoting(ctx context.Context, roomID uuid.UUID, movieIDs []int64) (bool, error) {
	args := m.Called(ctx, roomID, movieIDs)
	return args.Bool(0), args.Error(1)
}

func (m *roomRepoMock) FinishVoting(ctx context.Context, roomID uuid.UUID) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *roomRepoMock) DeleteOlderThan(ctx context.Context, age time.Duration) error {
	args := m.Called(ctx, age)
	return args.Error(0)
}

type poolGeneratorMock struct {
	mock.Mock
}

func (m *poolGeneratorMock) Generate(ctx context.Context, roomID uuid.UUID) ([]int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]int64), args.Error(1)
}

type roomResources struct {
	usecase  *Usecase
	roomRepo *roomRepoMock
	pool     *poolGeneratorMock
	ctx      context.Context
}

func initRoomResources(cleanup int) *roomResources {
	roomRepo := &roomRepoMock{}
	pool := &poolGeneratorMock{}

	return &roomResources{
		usecase:  New(roomRepo, pool, cleanup),
		roomRepo: roomRepo,
		pool:     pool,
		ctx:      context.Background(),
	}
}

func waitingRoomWith(userIDs ...uuid.UUID) (model.Room, []model.Participant) {
	room := model.Room{ID: uuid.New(), Code: "ABC234", Status: model.StatusWaiting}
	ps := make([]model.Participant, 0, len(userIDs))
	for _, id := range userIDs {
		ps = append(ps, model.Participant{ID: uuid.New(), RoomID: room.ID, UserID: id})
	}
	return room, ps
}

type UsecaseRoomUnitSuite struct {
	suite.Suite
}

func (s *UsecaseRoomUnitSuite) TestCreate(t provider.T) {
	t.Run("Should create a waiting room with a well-formed code", func(t provider.T) {
		r := initRoomResources(20)
		creatorID := uuid.New()

		r.roomRepo.On("Create", r.ctx, mock.MatchedBy(func(room model.Room) bool {
			if room.CreatorID != creatorID || room.Status != model.StatusWaiting {
				return false
			}
			if len(room.Code) != model.RoomCodeLen {
				return false
			}
			for _, c := range room.Code {
				if !strings.ContainsRune(codeAlphabet, c) {
					return false
				}
			}
			return true
		})).Return(nil).Once()

		room, err := r.usecase.Create(r.ctx, creatorID)

		assert.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, room.Status)
		r.roomRepo.AssertExpectations(t)
	})

	t.Run("Should give up after repeated code collisions", func(t provider.T) {
		r := initRoomResources(20)

		r.roomRepo.On("Create", r.ctx, mock.AnythingOfType("model.Room")).
			Return(ErrCodeConflict).Times(3)

		_, err := r.usecase.Create(r.ctx, uuid.New())

		assert.ErrorIs(t, err, ErrRoomsUnavailable)
		r.roomRepo.AssertNumberOfCalls(t, "Create", 3)
	})

	t.Run("Should sweep expired rooms on the cleanup tick", func(t provider.T) {
		r := initRoomResources(1)

		r.roomRepo.On("DeleteOlderThan", r.ctx, RoomLifetime).Return(nil).Once()
		r.roomRepo.On("Create", r.ctx, mock.AnythingOfType("model.Room")).Return(nil).Once()

		_, err := r.usecase.Create(r.ctx, uuid.New())

		assert.NoError(t, err)
		r.roomRepo.AssertExpectations(t)
	})
}

func (s *UsecaseRoomUnitSuite) TestJoin(t provider.T) {
	t.Run("Should normalize the code before lookup", func(t provider.T) {
		r := initRoomResources(20)
		userID := uuid.New()
		room, participants := waitingRoomWith(uuid.New())

		r.roomRepo.On("ByCode", r.ctx, "ABC234").Return(room, nil).Once()
		r.roomRepo.On("Participants", r.ctx, room.ID).Return(participants, nil).Once()
		r.roomRepo.On("AddParticipant", r.ctx, room.ID, userID).Return(nil).Once()

		got, err := r.usecase.Join(r.ctx, "  abc234 ", userID)

		assert.NoError(t, err)
		assert.Equal(t, room.ID, got.ID)
		r.roomRepo.AssertExpectations(t)
	})

	t.Run("Should report an unknown code", func(t provider.T) {
		r := initRoomResources(20)

		r.roomRepo.On("ByCode", r.ctx, "ZZZZZZ").
			Return(model.Room{}, ErrResourceNotFound).Once()

		_, err := r.usecase.Join(r.ctx, "ZZZZZZ", uuid.New())

		assert.ErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("Should reject joining once voting started", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith()
		room.Status = model.StatusVoting

		r.roomRepo.On("ByCode", r.ctx, room.Code).Return(room, nil).Once()

		_, err := r.usecase.Join(r.ctx, room.Code, uuid.New())

		assert.ErrorIs(t, err, ErrRoomConflict)
		r.roomRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should reject a newcomer when the room is full", func(t provider.T) {
		r := initRoomResources(20)
		userIDs := make([]uuid.UUID, MaxParticipants)
		for i := range userIDs {
			userIDs[i] = uuid.New()
		}
		room, participants := waitingRoomWith(userIDs...)

		r.roomRepo.On("ByCode", r.ctx, room.Code).Return(room, nil)
		r.roomRepo.On("Participants", r.ctx, room.ID).Return(participants, nil)

		_, err := r.usecase.Join(r.ctx, room.Code, uuid.New())
		assert.ErrorIs(t, err, ErrRoomFull)

		// An existing participant rejoining is not a newcomer.
		r.roomRepo.On("AddParticipant", r.ctx, room.ID, userIDs[0]).Return(nil).Once()
		_, err = r.usecase.Join(r.ctx, room.Code, userIDs[0])
		assert.NoError(t, err)
	})
}

func (s *UsecaseRoomUnitSuite) TestStart(t provider.T) {
	t.Run("Should generate a pool and flip the room to voting", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith(uuid.New())
		pool := []int64{1, 2, 3}

		r.roomRepo.On("ByID", r.ctx, room.ID).Return(room, nil).Once()
		r.pool.On("Generate", r.ctx, room.ID).Return(pool, nil).Once()
		r.roomRepo.On("StartVoting", r.ctx, room.ID, pool).Return(true, nil).Once()

		got, err := r.usecase.Start(r.ctx, room.ID)

		assert.NoError(t, err)
		assert.Equal(t, pool, got)
		r.roomRepo.AssertExpectations(t)
	})

	t.Run("Should return the existing pool when voting is already running", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith()
		room.Status = model.StatusVoting
		room.MovieIDs = []int64{4, 5, 6}

		r.roomRepo.On("ByID", r.ctx, room.ID).Return(room, nil).Once()

		got, err := r.usecase.Start(r.ctx, room.ID)

		assert.NoError(t, err)
		assert.Equal(t, room.MovieIDs, got)
		r.pool.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("Should refuse to restart a finished room", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith()
		room.Status = model.StatusFinished

		r.roomRepo.On("ByID", r.ctx, room.ID).Return(room, nil).Once()

		_, err := r.usecase.Start(r.ctx, room.ID)

		assert.ErrorIs(t, err, ErrRoomConflict)
	})

	t.Run("Should adopt the winner's pool after losing the start race", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith(uuid.New())
		winnerPool := []int64{9, 8, 7}
		started := room
		started.Status = model.StatusVoting
		started.MovieIDs = winnerPool

		r.roomRepo.On("ByID", r.ctx, room.ID).Return(room, nil).Once()
		r.pool.On("Generate", r.ctx, room.ID).Return([]int64{1, 2, 3}, nil).Once()
		r.roomRepo.On("StartVoting", r.ctx, room.ID, []int64{1, 2, 3}).Return(false, nil).Once()
		r.roomRepo.On("ByID", r.ctx, room.ID).Return(started, nil).Once()

		got, err := r.usecase.Start(r.ctx, room.ID)

		assert.NoError(t, err)
		assert.Equal(t, winnerPool, got)
	})
}

func (s *UsecaseRoomUnitSuite) TestFinish(t provider.T) {
	t.Run("Should finish a voting room", func(t provider.T) {
		r := initRoomResources(20)
		roomID := uuid.New()

		r.roomRepo.On("FinishVoting", r.ctx, roomID).Return(true, nil).Once()

		assert.NoError(t, r.usecase.Finish(r.ctx, roomID))
	})

	t.Run("Should treat an already finished room as success", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith()
		room.Status = model.StatusFinished

		r.roomRepo.On("FinishVoting", r.ctx, room.ID).Return(false, nil).Once()
		r.roomRepo.On("ByID", r.ctx, room.ID).Return(room, nil).Once()

		assert.NoError(t, r.usecase.Finish(r.ctx, room.ID))
	})

	t.Run("Should refuse to finish a room that never started", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith()

		r.roomRepo.On("FinishVoting", r.ctx, room.ID).Return(false, nil).Once()
		r.roomRepo.On("ByID", r.ctx, room.ID).Return(room, nil).Once()

		assert.ErrorIs(t, r.usecase.Finish(r.ctx, room.ID), ErrRoomConflict)
	})
}

func (s *UsecaseRoomUnitSuite) TestParticipants(t provider.T) {
	t.Run("Should report an unknown room as not found, not as empty", func(t provider.T) {
		r := initRoomResources(20)
		roomID := uuid.New()

		r.roomRepo.On("Participants", r.ctx, roomID).
			Return([]model.Participant{}, nil).Once()
		r.roomRepo.On("ByID", r.ctx, roomID).
			Return(model.Room{}, ErrResourceNotFound).Once()

		_, err := r.usecase.Participants(r.ctx, roomID)

		assert.ErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("Should return an empty lobby for an existing room everyone left", func(t provider.T) {
		r := initRoomResources(20)
		room, _ := waitingRoomWith()

		r.roomRepo.On("Participants", r.ctx, room.ID).
			Return([]model.Participant{}, nil).Once()
		r.roomRepo.On("ByID", r.ctx, room.ID).Return(room, nil).Once()

		participants, err := r.usecase.Participants(r.ctx, room.ID)

		assert.NoError(t, err)
		assert.Empty(t, participants)
	})
}

func TestUsecaseRoomUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecaseRoomUnitSuite))
}

func TestConcurrentCreatesKeepCleanupCadence(t *testing.T) {
	roomRepo := &roomRepoMock{}
	u := New(roomRepo, &poolGeneratorMock{}, 5)

	roomRepo.On("Create", mock.Anything, mock.AnythingOfType("model.Room")).Return(nil)
	roomRepo.On("DeleteOlderThan", mock.Anything, RoomLifetime).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.Create(context.Background(), uuid.New())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	roomRepo.AssertNumberOfCalls(t, "Create", 10)
	roomRepo.AssertNumberOfCalls(t, "DeleteOlderThan", 2)
}

// memRoomRepo backs the concurrency test with real compare-and-set
// semantics instead of scripted returns.
type memRoomRepo struct {
	mu          sync.Mutex
	room        model.Room
	startWrites int
}

func (r *memRoomRepo) Create(_ context.Context, room model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = room
	return nil
}

func (r *memRoomRepo) ByCode(context.Context, string) (model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room, nil
}

func (r *memRoomRepo) ByID(context.Context, uuid.UUID) (model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room, nil
}

func (r *memRoomRepo) AddParticipant(context.Context, uuid.UUID, uuid.UUID) error    { return nil }
func (r *memRoomRepo) RemoveParticipant(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (r *memRoomRepo) Participants(context.Context, uuid.UUID) ([]model.Participant, error) {
	return []model.Participant{{ID: uuid.New(), UserID: uuid.New()}}, nil
}

func (r *memRoomRepo) StartVoting(_ context.Context, _ uuid.UUID, movieIDs []int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room.Status != model.StatusWaiting {
		return false, nil
	}
	r.room.Status = model.StatusVoting
	r.room.MovieIDs = movieIDs
	r.startWrites++
	return true, nil
}

func (r *memRoomRepo) FinishVoting(context.Context, uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room.Status != model.StatusVoting {
		return false, nil
	}
	r.room.Status = model.StatusFinished
	return true, nil
}

func (r *memRoomRepo) DeleteOlderThan(context.Context, time.Duration) error { return nil }

// countingGenerator hands out a distinct pool per call so adopted pools are
// distinguishable from regenerated ones.
type countingGenerator struct {
	calls atomic.Int64
}

func (g *countingGenerator) Generate(context.Context, uuid.UUID) ([]int64, error) {
	base := g.calls.Add(1) * 100
	ids := make([]int64, 0, 20)
	for i := int64(0); i < 20; i++ {
		ids = append(ids, base+i)
	}
	return ids, nil
}

func TestStartIsRaceSafe(t *testing.T) {
	roomID := uuid.New()
	repo := &memRoomRepo{room: model.Room{ID: roomID, Code: "ABC234", Status: model.StatusWaiting}}
	gen := &countingGenerator{}
	u := New(repo, gen, 20)

	const starters = 8
	var wg sync.WaitGroup
	pools := make([][]int64, starters)
	errs := make([]error, starters)

	for i := 0; i < starters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			pools[i], errs[i] = u.Start(context.Background(), roomID)
		}()
	}
	wg.Wait()

	for i := 0; i < starters; i++ {
		assert.NoError(t, errs[i])
	}

	assert.Equal(t, 1, repo.startWrites)

	room, _ := repo.ByID(context.Background(), roomID)
	assert.Equal(t, model.StatusVoting, room.Status)
	for i := 0; i < starters; i++ {
		assert.Equal(t, room.MovieIDs, pools[i])
	}
}
