package usecase_pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/cinematch/core/internal/model"
	"github.com/google/uuid"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
)

type scriptedCatalog struct {
	discover    func(q CatalogQuery) (model.MoviePage, error)
	popular     func(page int) (model.MoviePage, error)
	detailsByID map[int64]model.MovieSummary

	queries      []CatalogQuery
	popularCalls int
	detailCalls  int
}

func (c *scriptedCatalog) Discover(_ context.Context, q CatalogQuery) (model.MoviePage, error) {
	c.queries = append(c.queries, q)
	if c.discover == nil {
		return model.MoviePage{Page: q.Page, TotalPages: 1}, nil
	}
	return c.discover(q)
}

func (c *scriptedCatalog) Popular(_ context.Context, page int) (model.MoviePage, error) {
	c.popularCalls++
	if c.popular == nil {
		return model.MoviePage{Page: page, TotalPages: 1}, nil
	}
	return c.popular(page)
}

func (c *scriptedCatalog) Details(_ context.Context, movieID int64) (model.MovieSummary, error) {
	c.detailCalls++
	m, ok := c.detailsByID[movieID]
	if !ok {
		return model.MovieSummary{}, ErrMovieNotFound
	}
	return m, nil
}

type fakeRooms struct {
	room         model.Room
	participants []model.Participant
}

func (f *fakeRooms) ByID(context.Context, uuid.UUID) (model.Room, error) {
	return f.room, nil
}

func (f *fakeRooms) Participants(context.Context, uuid.UUID) ([]model.Participant, error) {
	return f.participants, nil
}

type fakePrefs struct {
	prefs []model.Preference
}

func (f *fakePrefs) ByUserIDs(context.Context, []uuid.UUID) ([]model.Preference, error) {
	return f.prefs, nil
}

type memCache struct {
	movies map[int64]model.MovieSummary
}

func newMemCache() *memCache {
	return &memCache{movies: make(map[int64]model.MovieSummary)}
}

func (c *memCache) Get(movieID int64) (model.MovieSummary, bool, error) {
	m, ok := c.movies[movieID]
	return m, ok, nil
}

func (c *memCache) Set(m model.MovieSummary) error {
	c.movies[m.ID] = m
	return nil
}

func someParticipants(n int) []model.Participant {
	ps := make([]model.Participant, 0, n)
	for i := 0; i < n; i++ {
		ps = append(ps, model.Participant{ID: uuid.New(), UserID: uuid.New()})
	}
	return ps
}

func summaries(ids ...int64) []model.MovieSummary {
	movies := make([]model.MovieSummary, 0, len(ids))
	for _, id := range ids {
		movies = append(movies, model.MovieSummary{
			ID:         id,
			Title:      fmt.Sprintf("Movie %d", id),
			PosterPath: "/poster.jpg",
			Overview:   "plot",
		})
	}
	return movies
}

func pageOf(totalPages int, ids ...int64) model.MoviePage {
	return model.MoviePage{
		Page:         1,
		Results:      summaries(ids...),
		TotalPages:   totalPages,
		TotalResults: len(ids),
	}
}

func idRange(from, to int64) []int64 {
	ids := make([]int64, 0, to-from+1)
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return ids
}

func buildPoolUsecase(catalog *scriptedCatalog, rooms *fakeRooms, prefs *fakePrefs, cache *memCache) *Usecase {
	return New(catalog, rooms, prefs, cache, WithRand(rand.New(rand.NewSource(7))))
}

type UsecasePoolUnitSuite struct {
	suite.Suite
}

func (s *UsecasePoolUnitSuite) TestGenerate(t provider.T) {
	ctx := context.Background()

	t.Run("Should return an empty pool for a room without participants", func(t provider.T) {
		catalog := &scriptedCatalog{}
		u := buildPoolUsecase(catalog, &fakeRooms{}, &fakePrefs{}, newMemCache())

		ids, err := u.Generate(ctx, uuid.New())

		assert.NoError(t, err)
		assert.NotNil(t, ids)
		assert.Empty(t, ids)
		assert.Empty(t, catalog.queries)
	})

	t.Run("Should stop after a sufficient strict pass", func(t provider.T) {
		want := idRange(1, 20)
		catalog := &scriptedCatalog{
			discover: func(q CatalogQuery) (model.MoviePage, error) {
				return pageOf(1, want...), nil
			},
		}
		u := buildPoolUsecase(catalog, &fakeRooms{participants: someParticipants(2)}, &fakePrefs{}, newMemCache())

		ids, err := u.Generate(ctx, uuid.New())

		assert.NoError(t, err)
		assert.ElementsMatch(t, want, ids)

		assert.Len(t, catalog.queries, 1)
		assert.Equal(t, 1, catalog.queries[0].Page)
		assert.Equal(t, 100, catalog.queries[0].VoteCountGte)
		assert.Equal(t, 6.0, catalog.queries[0].VoteAverageGte)
		assert.Zero(t, catalog.popularCalls)
	})

	t.Run("Should relax thresholds when the strict pass is thin", func(t provider.T) {
		catalog := &scriptedCatalog{
			discover: func(q CatalogQuery) (model.MoviePage, error) {
				if q.VoteCountGte == 100 {
					return pageOf(1, idRange(1, 5)...), nil
				}
				return pageOf(1, idRange(100, 111)...), nil
			},
		}
		u := buildPoolUsecase(catalog, &fakeRooms{participants: someParticipants(3)}, &fakePrefs{}, newMemCache())

		ids, err := u.Generate(ctx, uuid.New())

		assert.NoError(t, err)
		assert.Len(t, ids, 17)
		assert.ElementsMatch(t, append(idRange(1, 5), idRange(100, 111)...), ids)

		assert.Len(t, catalog.queries, 2)
		assert.Equal(t, 30, catalog.queries[1].VoteCountGte)
		assert.Equal(t, 5.0, catalog.queries[1].VoteAverageGte)
	})

	t.Run("Should drop an inverted year range before going generic", func(t provider.T) {
		catalog := &scriptedCatalog{
			discover: func(q CatalogQuery) (model.MoviePage, error) {
				if q.YearFrom != nil || q.YearTo != nil {
					return pageOf(1), nil // disjoint tastes, nothing matches
				}
				return pageOf(1, idRange(1, 16)...), nil
			},
		}
		yf, yt := 2015, 1989
		prefs := &fakePrefs{prefs: []model.Preference{
			{YearFrom: &yf},
			{YearTo: &yt},
		}}
		u := buildPoolUsecase(catalog, &fakeRooms{participants: someParticipants(2)}, prefs, newMemCache())

		ids, err := u.Generate(ctx, uuid.New())

		assert.NoError(t, err)
		assert.Len(t, ids, 16)

		assert.Len(t, catalog.queries, 3)
		last := catalog.queries[2]
		assert.Nil(t, last.YearFrom)
		assert.Nil(t, last.YearTo)
		assert.Equal(t, 50, last.VoteCountGte)
		assert.Equal(t, 5.5, last.VoteAverageGte)
		assert.Zero(t, catalog.popularCalls)
	})

	t.Run("Should fall back to popular movies and keep only swipable ones", func(t provider.T) {
		popular := summaries(idRange(1, 8)...)
		popular = append(popular,
			model.MovieSummary{ID: 9, Title: "No poster", Overview: "plot"},
			model.MovieSummary{ID: 10, Title: "No overview", PosterPath: "/poster.jpg"},
		)
		catalog := &scriptedCatalog{
			discover: func(q CatalogQuery) (model.MoviePage, error) {
				return pageOf(1), nil
			},
			popular: func(page int) (model.MoviePage, error) {
				return model.MoviePage{Page: page, Results: popular, TotalPages: 3}, nil
			},
		}
		u := buildPoolUsecase(catalog, &fakeRooms{participants: someParticipants(2)}, &fakePrefs{}, newMemCache())

		ids, err := u.Generate(ctx, uuid.New())

		assert.NoError(t, err)
		assert.ElementsMatch(t, idRange(1, 8), ids)
		assert.Equal(t, 1, catalog.popularCalls)
	})

	t.Run("Should deduplicate across passes and cut to the target size", func(t provider.T) {
		catalog := &scriptedCatalog{
			discover: func(q CatalogQuery) (model.MoviePage, error) {
				if q.VoteCountGte == 100 {
					return pageOf(1, idRange(1, 14)...), nil
				}
				return pageOf(1, idRange(13, 22)...), nil // 13 and 14 repeat
			},
		}
		u := buildPoolUsecase(catalog, &fakeRooms{participants: someParticipants(4)}, &fakePrefs{}, newMemCache())

		ids, err := u.Generate(ctx, uuid.New())

		assert.NoError(t, err)
		assert.Len(t, ids, PoolTarget)

		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			assert.GreaterOrEqual(t, id, int64(1))
			assert.LessOrEqual(t, id, int64(22))
			_, dup := seen[id]
			assert.False(t, dup)
			seen[id] = struct{}{}
		}
	})

	t.Run("Should fail on an upstream error", func(t provider.T) {
		catalog := &scriptedCatalog{
			discover: func(q CatalogQuery) (model.MoviePage, error) {
				return model.MoviePage{}, errors.New("503 from upstream")
			},
		}
		u := buildPoolUsecase(catalog, &fakeRooms{participants: someParticipants(2)}, &fakePrefs{}, newMemCache())

		_, err := u.Generate(ctx, uuid.New())

		assert.ErrorIs(t, err, ErrUpstream)
	})
}

func (s *UsecasePoolUnitSuite) TestMoviesForRoom(t provider.T) {
	ctx := context.Background()

	t.Run("Should resolve the persisted pool in order, via cache when possible", func(t provider.T) {
		catalog := &scriptedCatalog{
			detailsByID: map[int64]model.MovieSummary{
				8: summaries(8)[0],
				9: summaries(9)[0],
			},
		}
		cache := newMemCache()
		_ = cache.Set(summaries(7)[0])

		rooms := &fakeRooms{room: model.Room{
			ID:       uuid.New(),
			Status:   model.StatusVoting,
			MovieIDs: []int64{7, 8, 9},
		}}
		u := buildPoolUsecase(catalog, rooms, &fakePrefs{}, cache)

		movies, err := u.MoviesForRoom(ctx, rooms.room.ID)

		assert.NoError(t, err)
		assert.Equal(t, []int64{7, 8, 9}, movieIDsOf(movies))
		assert.Equal(t, 2, catalog.detailCalls)

		// Resolved summaries are now cached; a second load hits no upstream.
		movies, err = u.MoviesForRoom(ctx, rooms.room.ID)
		assert.NoError(t, err)
		assert.Equal(t, []int64{7, 8, 9}, movieIDsOf(movies))
		assert.Equal(t, 2, catalog.detailCalls)
	})

	t.Run("Should skip ids that vanished from the catalog", func(t provider.T) {
		catalog := &scriptedCatalog{
			detailsByID: map[int64]model.MovieSummary{
				7: summaries(7)[0],
				9: summaries(9)[0],
			},
		}
		rooms := &fakeRooms{room: model.Room{
			ID:       uuid.New(),
			Status:   model.StatusVoting,
			MovieIDs: []int64{7, 8, 9},
		}}
		u := buildPoolUsecase(catalog, rooms, &fakePrefs{}, newMemCache())

		movies, err := u.MoviesForRoom(ctx, rooms.room.ID)

		assert.NoError(t, err)
		assert.Equal(t, []int64{7, 9}, movieIDsOf(movies))
	})
}

func movieIDsOf(movies []model.MovieSummary) []int64 {
	ids := make([]int64, 0, len(movies))
	for _, m := range movies {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestUsecasePoolUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecasePoolUnitSuite))
}
