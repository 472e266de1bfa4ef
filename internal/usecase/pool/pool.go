package usecase_pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/cinematch/core/internal/model"
	"github.com/cinematch/core/internal/service/prefagg"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	"github.com/google/uuid"
)

var (
	ErrUpstream      = errors.New("failed to fetch movies")
	ErrMovieNotFound = errors.New("movie not found")
	ErrInternal      = errors.New("internal error")

	// The room storage is shared with the lifecycle usecase, so its
	// not-found sentinel is shared too.
	ErrResourceNotFound = usecase_room.ErrResourceNotFound
)

const (
	// PoolTarget is the pool size handed to voters.
	PoolTarget = 20
	// PoolMinAcceptable is the point below which the cascade keeps relaxing
	// its filters.
	PoolMinAcceptable = 15
)

// CatalogQuery is the filtered catalog search the generator drives.
type CatalogQuery struct {
	Genres         []int64
	YearFrom       *int
	YearTo         *int
	Page           int
	SortBy         string
	VoteCountGte   int
	VoteAverageGte float64
}

type Catalog interface {
	Discover(ctx context.Context, q CatalogQuery) (model.MoviePage, error)
	Popular(ctx context.Context, page int) (model.MoviePage, error)
	Details(ctx context.Context, movieID int64) (model.MovieSummary, error)
}

type RoomReader interface {
	ByID(ctx context.Context, id uuid.UUID) (model.Room, error)
	Participants(ctx context.Context, roomID uuid.UUID) ([]model.Participant, error)
}

type PreferenceRepository interface {
	ByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]model.Preference, error)
}

type MovieCache interface {
	Get(movieID int64) (model.MovieSummary, bool, error)
	Set(m model.MovieSummary) error
}

type Usecase struct {
	catalog     Catalog
	rooms       RoomReader
	preferences PreferenceRepository
	cache       MovieCache

	rng *rand.Rand
}

type Option func(*Usecase)

// WithRand pins the page picks and the shuffle for tests.
func WithRand(rng *rand.Rand) Option {
	return func(u *Usecase) {
		u.rng = rng
	}
}

func New(
	catalog Catalog,
	rooms RoomReader,
	preferences PreferenceRepository,
	cache MovieCache,
	opts ...Option,
) *Usecase {
	u := &Usecase{
		catalog:     catalog,
		rooms:       rooms,
		preferences: preferences,
		cache:       cache,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Generate assembles the one-shot candidate pool for a room: aggregate
// participant preferences, then walk a cascade of progressively looser
// catalog queries until at least PoolMinAcceptable unique movies are
// collected, shuffle, and cut to PoolTarget.
//
// Generate does not persist anything. The caller writes the ids with the
// guarded start-voting update, which is what makes generation effectively
// once-per-room. A room without participants yields an empty pool, which is
// a valid terminal result.
func (u *Usecase) Generate(ctx context.Context, roomID uuid.UUID) ([]int64, error) {
	participants, err := u.rooms.Participants(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}
	if len(participants) == 0 {
		return []int64{}, nil
	}

	userIDs := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
	}

	prefs, err := u.preferences.ByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}

	filter := prefagg.Aggregate(prefs)

	acc := newAccumulator()

	// Strict pass: page 1 plus one random page so the pool isn't always the
	// same top-popularity slice. Random-page results go in first.
	strict := CatalogQuery{
		Genres:         filter.Genres,
		YearFrom:       filter.YearFrom,
		YearTo:         filter.YearTo,
		Page:           1,
		VoteCountGte:   100,
		VoteAverageGte: 6.0,
	}
	initial, err := u.catalog.Discover(ctx, strict)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if randomPage := u.randomPage(initial.TotalPages, 10); randomPage > 1 {
		q := strict
		q.Page = randomPage
		extra, err := u.catalog.Discover(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		acc.add(extra.Results)
	}
	acc.add(initial.Results)

	// Too few: lower the quality bar.
	if acc.size() < PoolMinAcceptable {
		relaxed, err := u.catalog.Discover(ctx, CatalogQuery{
			Genres:         filter.Genres,
			YearFrom:       filter.YearFrom,
			YearTo:         filter.YearTo,
			Page:           u.randomPage(5, 5),
			VoteCountGte:   30,
			VoteAverageGte: 5.0,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		acc.add(relaxed.Results)
	}

	// Still short: the year range may be the problem (it can even be
	// inverted). Drop it.
	if acc.size() < PoolMinAcceptable && filter.HasYearRange() {
		noYears, err := u.catalog.Discover(ctx, CatalogQuery{
			Genres:         filter.Genres,
			Page:           u.randomPage(5, 5),
			VoteCountGte:   50,
			VoteAverageGte: 5.5,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		acc.add(noYears.Results)
	}

	// Last resort: generically popular movies, kept only when they have a
	// poster and a description.
	if acc.size() < PoolMinAcceptable {
		popular, err := u.catalog.Popular(ctx, u.randomPage(3, 3))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		swipable := make([]model.MovieSummary, 0, len(popular.Results))
		for _, m := range popular.Results {
			if m.PosterPath != "" && m.Overview != "" {
				swipable = append(swipable, m)
			}
		}
		acc.add(swipable)
	}

	ids := acc.ids()
	u.shuffle(ids)
	if len(ids) > PoolTarget {
		ids = ids[:PoolTarget]
	}
	return ids, nil
}

// MoviesForRoom resolves the room's persisted pool to summaries, verbatim
// and in pool order. It never regenerates: participants loading at
// different times must see the identical set. Ids that dropped out of the
// catalog since generation are skipped.
func (u *Usecase) MoviesForRoom(ctx context.Context, roomID uuid.UUID) ([]model.MovieSummary, error) {
	room, err := u.rooms.ByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}

	movies := make([]model.MovieSummary, 0, len(room.MovieIDs))
	for _, id := range room.MovieIDs {
		if m, ok, err := u.cache.Get(id); err == nil && ok {
			movies = append(movies, m)
			continue
		}

		m, err := u.catalog.Details(ctx, id)
		if err != nil {
			if errors.Is(err, ErrMovieNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		_ = u.cache.Set(m) // cache is best-effort
		movies = append(movies, m)
	}

	return movies, nil
}

func (u *Usecase) randomPage(totalPages, maxPage int) int {
	available := min(totalPages, maxPage)
	if available < 1 {
		return 1
	}
	return u.intn(available) + 1
}

func (u *Usecase) intn(n int) int {
	if u.rng != nil {
		return u.rng.Intn(n)
	}
	return rand.Intn(n)
}

// Fisher-Yates.
func (u *Usecase) shuffle(ids []int64) {
	for i := len(ids) - 1; i > 0; i-- {
		j := u.intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

type accumulator struct {
	seen map[int64]struct{}
	ord  []int64
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[int64]struct{})}
}

func (a *accumulator) add(movies []model.MovieSummary) {
	for _, m := range movies {
		if _, ok := a.seen[m.ID]; ok {
			continue
		}
		a.seen[m.ID] = struct{}{}
		a.ord = append(a.ord, m.ID)
	}
}

func (a *accumulator) size() int { return len(a.ord) }

func (a *accumulator) ids() []int64 { return a.ord }
