package prefagg

import "github.com/cinematch/core/internal/model"

// Aggregate folds the preferences of all current room participants into one
// catalog filter.
//
// Genres: intersection across participants that named at least one genre.
// An empty intersection falls back to the union, so the genre filter is
// non-empty whenever anyone expressed a preference, and nil (unconstrained)
// when nobody did.
//
// Years: yearFrom = max of the stated lower bounds, yearTo = min of the
// stated upper bounds. The combination can invert (yearFrom > yearTo) when
// tastes don't overlap; that is returned as-is and the pool generator's
// fallback cascade absorbs it.
func Aggregate(prefs []model.Preference) model.Filter {
	return model.Filter{
		Genres:   aggregateGenres(prefs),
		YearFrom: maxYearFrom(prefs),
		YearTo:   minYearTo(prefs),
	}
}

func aggregateGenres(prefs []model.Preference) []int64 {
	withGenres := make([]model.Preference, 0, len(prefs))
	for _, p := range prefs {
		if len(p.Genres) > 0 {
			withGenres = append(withGenres, p)
		}
	}
	if len(withGenres) == 0 {
		return nil
	}

	common := make([]int64, 0, len(withGenres[0].Genres))
	for _, genre := range withGenres[0].Genres {
		if inAll(genre, withGenres[1:]) {
			common = append(common, genre)
		}
	}
	if len(common) > 0 {
		return common
	}

	// No common ground: widen to everything anyone named.
	seen := make(map[int64]struct{})
	union := make([]int64, 0)
	for _, p := range withGenres {
		for _, genre := range p.Genres {
			if _, ok := seen[genre]; !ok {
				seen[genre] = struct{}{}
				union = append(union, genre)
			}
		}
	}
	return union
}

func inAll(genre int64, prefs []model.Preference) bool {
	for _, p := range prefs {
		found := false
		for _, g := range p.Genres {
			if g == genre {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func maxYearFrom(prefs []model.Preference) *int {
	var year *int
	for _, p := range prefs {
		if p.YearFrom == nil {
			continue
		}
		if year == nil || *p.YearFrom > *year {
			v := *p.YearFrom
			year = &v
		}
	}
	return year
}

func minYearTo(prefs []model.Preference) *int {
	var year *int
	for _, p := range prefs {
		if p.YearTo == nil {
			continue
		}
		if year == nil || *p.YearTo < *year {
			v := *p.YearTo
			year = &v
		}
	}
	return year
}
