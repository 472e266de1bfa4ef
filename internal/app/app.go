package app

import (
	"github.com/cinematch/core/internal/config"
	http_init "github.com/cinematch/core/internal/delivery/http/init"
	http_preference "github.com/cinematch/core/internal/delivery/http/preference"
	http_room "github.com/cinematch/core/internal/delivery/http/room"
	http_voting "github.com/cinematch/core/internal/delivery/http/voting"
	ws_room "github.com/cinematch/core/internal/delivery/ws/room"
	infra_pg_init "github.com/cinematch/core/internal/infra/postgres/init"
	infra_postgres_preference "github.com/cinematch/core/internal/infra/postgres/preference"
	infra_postgres_room "github.com/cinematch/core/internal/infra/postgres/room"
	infra_postgres_vote "github.com/cinematch/core/internal/infra/postgres/vote"
	infra_redis_init "github.com/cinematch/core/internal/infra/redis/init"
	infra_movie_cache "github.com/cinematch/core/internal/infra/redis/moviecache"
	infra_tmdb "github.com/cinematch/core/internal/infra/tmdb"
	usecase_pool "github.com/cinematch/core/internal/usecase/pool"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	usecase_vote "github.com/cinematch/core/internal/usecase/vote"
)

func Go(cfg *config.Config) {
	redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
	pgConn := infra_pg_init.MustEstablishConn(cfg.Postgres)

	catalog := infra_tmdb.New(cfg.TMDB)
	movieCache := infra_movie_cache.New(redisConn, "movie_cache")

	roomRepository := infra_postgres_room.New(pgConn)
	preferenceRepository := infra_postgres_preference.New(pgConn)
	voteRepository := infra_postgres_vote.New(pgConn)

	poolUC := usecase_pool.New(catalog, roomRepository, preferenceRepository, movieCache)
	roomUC := usecase_room.New(roomRepository, poolUC, 20 /* orphaned room cleanups on every _ creation */)
	voteUC := usecase_vote.New(voteRepository, roomRepository)

	hub := ws_room.NewHub(roomUC)
	go hub.Run()

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_room.New(roomUC, hub))
	controllerPool.Add(http_preference.New(preferenceRepository))
	controllerPool.Add(http_voting.New(voteUC, roomUC, poolUC, hub))
	controllerPool.Add(ws_room.NewController(hub))

	controllerPool.Register()
	controllerPool.RunAll(cfg.HTTP.Port)
}
