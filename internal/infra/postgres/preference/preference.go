package infra_postgres_preference

import (
	"context"
	"database/sql"

	"github.com/cinematch/core/internal/model"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

type preferenceDTO struct {
	UserID            uuid.UUID     `db:"user_id"`
	Genres            pq.Int64Array `db:"genres"`
	FavoriteActors    pq.Int64Array `db:"favorite_actors"`
	FavoriteDirectors pq.Int64Array `db:"favorite_directors"`
	YearFrom          sql.NullInt64 `db:"year_from"`
	YearTo            sql.NullInt64 `db:"year_to"`
}

func (dto preferenceDTO) toModel() model.Preference {
	p := model.Preference{
		UserID:            dto.UserID,
		Genres:            []int64(dto.Genres),
		FavoriteActors:    []int64(dto.FavoriteActors),
		FavoriteDirectors: []int64(dto.FavoriteDirectors),
	}
	if dto.YearFrom.Valid {
		year := int(dto.YearFrom.Int64)
		p.YearFrom = &year
	}
	if dto.YearTo.Valid {
		year := int(dto.YearTo.Int64)
		p.YearTo = &year
	}
	return p
}

func nullYear(year *int) sql.NullInt64 {
	if year == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*year), Valid: true}
}

// Upsert keeps exactly one preference row per user.
func (d *Driver) Upsert(ctx context.Context, p model.Preference) error {
	query := `
        INSERT INTO preferences (user_id, genres, favorite_actors, favorite_directors, year_from, year_to)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id)
        DO UPDATE SET
            genres = EXCLUDED.genres,
            favorite_actors = EXCLUDED.favorite_actors,
            favorite_directors = EXCLUDED.favorite_directors,
            year_from = EXCLUDED.year_from,
            year_to = EXCLUDED.year_to,
            updated_at = now()
    `

	_, err := d.db.ExecContext(ctx, query,
		p.UserID,
		pq.Int64Array(p.Genres),
		pq.Int64Array(p.FavoriteActors),
		pq.Int64Array(p.FavoriteDirectors),
		nullYear(p.YearFrom),
		nullYear(p.YearTo),
	)
	return err
}

func (d *Driver) ByUserID(ctx context.Context, userID uuid.UUID) (model.Preference, error) {
	var dto preferenceDTO

	query := `
        SELECT user_id, genres, favorite_actors, favorite_directors, year_from, year_to
        FROM preferences
        WHERE user_id = $1
    `

	err := d.db.GetContext(ctx, &dto, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Preference{}, usecase_room.ErrResourceNotFound
		}
		return model.Preference{}, err
	}

	return dto.toModel(), nil
}

// ByUserIDs returns the stored preferences for the given users. Users
// without a saved row are simply absent from the result.
func (d *Driver) ByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]model.Preference, error) {
	var dtos []preferenceDTO

	query := `
        SELECT user_id, genres, favorite_actors, favorite_directors, year_from, year_to
        FROM preferences
        WHERE user_id = ANY($1)
    `

	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, id.String())
	}

	if err := d.db.SelectContext(ctx, &dtos, query, pq.Array(ids)); err != nil {
		return nil, err
	}

	prefs := make([]model.Preference, 0, len(dtos))
	for _, dto := range dtos {
		prefs = append(prefs, dto.toModel())
	}

	return prefs, nil
}
