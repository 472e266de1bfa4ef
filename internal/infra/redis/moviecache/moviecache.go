package infra_movie_cache

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/cinematch/core/internal/model"
	"github.com/go-redis/redis"
)

// Movie summaries barely change; an hour matches the upstream catalog's own
// cache window.
const defaultTTL = time.Hour

type Driver struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func New(
	client *redis.Client,
	key string,
) *Driver {
	return &Driver{
		client: client,
		key:    key,
		ttl:    defaultTTL,
	}
}

func (d *Driver) Get(movieID int64) (model.MovieSummary, bool, error) {
	val, err := d.client.Get(d.fullKey(movieID)).Result()
	if err != nil {
		if err == redis.Nil {
			return model.MovieSummary{}, false, nil
		}
		return model.MovieSummary{}, false, err
	}

	var m model.MovieSummary
	if err := json.Unmarshal([]byte(val), &m); err != nil {
		return model.MovieSummary{}, false, err
	}

	return m, true, nil
}

func (d *Driver) Set(m model.MovieSummary) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return d.client.Set(d.fullKey(m.ID), payload, d.ttl).Err()
}

func (d *Driver) fullKey(movieID int64) string {
	key := strconv.FormatInt(movieID, 10)
	if d.key != "" {
		return d.key + ":" + key
	}
	return key
}
