package infra_tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cinematch/core/internal/config"
	"github.com/cinematch/core/internal/model"
	usecase_pool "github.com/cinematch/core/internal/usecase/pool"
)

var ErrBadStatus = errors.New("catalog returned non-success status")

const (
	SortPopularityDesc = "popularity.desc"

	imageBaseURL = "https://image.tmdb.org/t/p/w500"
)

type Client struct {
	cfg        config.TMDB
	httpClient *http.Client
}

func New(cfg config.TMDB) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("language", c.cfg.Language)

	fullURL := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, usecase_pool.ErrMovieNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	return body, nil
}

// Discover runs a filtered catalog query. Results are post-filtered to
// movies that carry a poster and a non-blank overview; cards without either
// are useless to swipe on.
func (c *Client) Discover(ctx context.Context, q usecase_pool.CatalogQuery) (model.MoviePage, error) {
	today := time.Now().Format("2006-01-02")

	params := url.Values{}
	params.Set("page", strconv.Itoa(max(q.Page, 1)))
	if q.SortBy == "" {
		q.SortBy = SortPopularityDesc
	}
	params.Set("sort_by", q.SortBy)
	params.Set("vote_count.gte", strconv.Itoa(q.VoteCountGte))
	params.Set("vote_average.gte", strconv.FormatFloat(q.VoteAverageGte, 'f', 1, 64))
	params.Set("include_adult", "false")
	// Only movies that are already out.
	params.Set("primary_release_date.lte", today)

	if len(q.Genres) > 0 {
		// '|' means OR: any of the genres qualifies.
		params.Set("with_genres", joinIDs(q.Genres, "|"))
	}
	if q.YearFrom != nil {
		params.Set("primary_release_date.gte", fmt.Sprintf("%d-01-01", *q.YearFrom))
	}
	if q.YearTo != nil {
		yearToDate := fmt.Sprintf("%d-12-31", *q.YearTo)
		if yearToDate < today {
			params.Set("primary_release_date.lte", yearToDate)
		}
	}

	body, err := c.get(ctx, "/discover/movie", params)
	if err != nil {
		return model.MoviePage{}, err
	}

	var page model.MoviePage
	if err := json.Unmarshal(body, &page); err != nil {
		return model.MoviePage{}, fmt.Errorf("unmarshal: %w", err)
	}

	page.Results = filterSwipable(page.Results)
	return page, nil
}

// Popular returns a page of generically popular movies, unfiltered.
func (c *Client) Popular(ctx context.Context, pageNum int) (model.MoviePage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(pageNum, 1)))

	body, err := c.get(ctx, "/movie/popular", params)
	if err != nil {
		return model.MoviePage{}, err
	}

	var page model.MoviePage
	if err := json.Unmarshal(body, &page); err != nil {
		return model.MoviePage{}, fmt.Errorf("unmarshal: %w", err)
	}

	return page, nil
}

type detailsDTO struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Genres      []struct {
		ID int64 `json:"id"`
	} `json:"genres"`
}

func (c *Client) Details(ctx context.Context, movieID int64) (model.MovieSummary, error) {
	body, err := c.get(ctx, fmt.Sprintf("/movie/%d", movieID), nil)
	if err != nil {
		return model.MovieSummary{}, err
	}

	var dto detailsDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return model.MovieSummary{}, fmt.Errorf("unmarshal details: %w", err)
	}

	genreIDs := make([]int64, 0, len(dto.Genres))
	for _, g := range dto.Genres {
		genreIDs = append(genreIDs, g.ID)
	}

	return model.MovieSummary{
		ID:          dto.ID,
		Title:       dto.Title,
		PosterPath:  dto.PosterPath,
		Overview:    dto.Overview,
		ReleaseDate: dto.ReleaseDate,
		VoteAverage: dto.VoteAverage,
		VoteCount:   dto.VoteCount,
		GenreIDs:    genreIDs,
	}, nil
}

func (c *Client) FullImageURL(path string) string {
	if path == "" {
		return ""
	}
	return imageBaseURL + path
}

func filterSwipable(movies []model.MovieSummary) []model.MovieSummary {
	filtered := make([]model.MovieSummary, 0, len(movies))
	for _, m := range movies {
		if m.PosterPath != "" && strings.TrimSpace(m.Overview) != "" {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func joinIDs(ids []int64, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, sep)
}
