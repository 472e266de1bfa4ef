package model

import "github.com/google/uuid"

// Preference is a single user's saved movie taste. One row per user,
// upserted on save.
type Preference struct {
	UserID            uuid.UUID
	Genres            []int64
	FavoriteActors    []int64
	FavoriteDirectors []int64
	YearFrom          *int
	YearTo            *int
}

// Filter is the aggregated preference set for one room. Nil Genres means
// unconstrained. YearFrom/YearTo may form an inverted range; the pool
// generator tolerates that by falling through its cascade.
type Filter struct {
	Genres   []int64
	YearFrom *int
	YearTo   *int
}

func (f Filter) HasYearRange() bool {
	return f.YearFrom != nil || f.YearTo != nil
}
