package http_voting

import (
	"errors"
	"log/slog"
	"net/http"

	http_common "github.com/cinematch/core/internal/delivery/http/common"
	ws_room "github.com/cinematch/core/internal/delivery/ws/room"
	"github.com/cinematch/core/internal/model"
	usecase_pool "github.com/cinematch/core/internal/usecase/pool"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	usecase_vote "github.com/cinematch/core/internal/usecase/vote"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	votes *usecase_vote.Usecase
	rooms *usecase_room.Usecase
	pool  *usecase_pool.Usecase
	hub   *ws_room.Hub

	logger *slog.Logger
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(
	votes *usecase_vote.Usecase,
	rooms *usecase_room.Usecase,
	pool *usecase_pool.Usecase,
	hub *ws_room.Hub,
	opts ...ControllerOption,
) *Controller {
	c := &Controller{
		votes:  votes,
		rooms:  rooms,
		pool:   pool,
		hub:    hub,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	room := router.Group("rooms/:room_id")
	room.GET("/movies", c.movies)

	voting := room.Group("/voting")
	voting.POST("", c.start)
	voting.DELETE("", c.finish)
	voting.POST("/votes", c.vote)
	voting.GET("/results", c.results)
	voting.GET("/progress", c.progress)
}

func (c *Controller) validateParticipant(ctx *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid room id",
		})
		return uuid.Nil, uuid.Nil, false
	}

	userToken := ctx.GetHeader("X-user-token")
	if userToken == "" {
		ctx.JSON(http.StatusUnauthorized, http_common.ErrorResponse{
			Message: "X-user-token header required",
		})
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(userToken)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid user token",
		})
		return uuid.Nil, uuid.Nil, false
	}

	participants, err := c.rooms.Participants(ctx, roomID)
	if err != nil {
		if errors.Is(err, usecase_room.ErrResourceNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
			return uuid.Nil, uuid.Nil, false
		}
		c.logger.Error("failed to validate participant",
			slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return uuid.Nil, uuid.Nil, false
	}

	for _, p := range participants {
		if p.UserID == userID {
			return roomID, userID, true
		}
	}

	ctx.JSON(http.StatusForbidden, http_common.ErrorResponse{
		Message: "user is not a participant of this room",
	})
	return uuid.Nil, uuid.Nil, false
}

type StartVotingResponseDTO struct {
	MovieIDs []int64 `json:"movie_ids"`
}

// start generates the pool (at most once per room) and flips the room to
// voting. Safe to double-submit: the loser of the start race adopts the
// winner's pool.
func (c *Controller) start(ctx *gin.Context) {
	roomID, userID, ok := c.validateParticipant(ctx)
	if !ok {
		return
	}

	movieIDs, err := c.rooms.Start(ctx, roomID)
	if err != nil {
		switch {
		case errors.Is(err, usecase_room.ErrResourceNotFound):
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
		case errors.Is(err, usecase_room.ErrRoomConflict):
			ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
				Message: "voting already finished",
			})
		case errors.Is(err, usecase_pool.ErrUpstream):
			c.logger.Error("pool generation failed",
				slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
			ctx.JSON(http.StatusBadGateway, http_common.ErrorResponse{
				Message: "failed to fetch movies",
			})
		default:
			c.logger.Error("failed to start voting",
				slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
			ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
				Message: "internal error",
			})
		}
		return
	}

	c.hub.NotifyVotingStarted(roomID, userID, len(movieIDs))

	ctx.JSON(http.StatusOK, StartVotingResponseDTO{MovieIDs: movieIDs})
}

// finish ends voting early on a participant's request.
func (c *Controller) finish(ctx *gin.Context) {
	roomID, _, ok := c.validateParticipant(ctx)
	if !ok {
		return
	}

	if err := c.rooms.Finish(ctx, roomID); err != nil {
		switch {
		case errors.Is(err, usecase_room.ErrResourceNotFound):
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
		case errors.Is(err, usecase_room.ErrRoomConflict):
			ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
				Message: "voting has not started",
			})
		default:
			c.logger.Error("failed to finish voting",
				slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
			ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
				Message: "internal error",
			})
		}
		return
	}

	c.hub.NotifyVotingFinished(roomID)

	ctx.Status(http.StatusNoContent)
}

type MoviesResponseDTO struct {
	Movies []model.MovieSummary `json:"movies"`
}

func (c *Controller) movies(ctx *gin.Context) {
	roomID, _, ok := c.validateParticipant(ctx)
	if !ok {
		return
	}

	movies, err := c.pool.MoviesForRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, usecase_pool.ErrUpstream) {
			ctx.JSON(http.StatusBadGateway, http_common.ErrorResponse{
				Message: "failed to fetch movies",
			})
			return
		}
		c.logger.Error("failed to resolve room movies",
			slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusOK, MoviesResponseDTO{Movies: movies})
}

type VoteRequestDTO struct {
	MovieID int64 `json:"movie_id" binding:"required"`
	Liked   *bool `json:"liked" binding:"required"`
}

func (c *Controller) vote(ctx *gin.Context) {
	roomID, userID, ok := c.validateParticipant(ctx)
	if !ok {
		return
	}

	var req VoteRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid request format",
		})
		return
	}

	if err := c.votes.Record(ctx, roomID, userID, req.MovieID, *req.Liked); err != nil {
		if errors.Is(err, usecase_vote.ErrInvalidInput) {
			ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
				Message: "invalid vote",
			})
			return
		}
		c.logger.Error("failed to record vote",
			slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	// Progress drives the notification gate and the auto-finish; losing it
	// is not worth failing an accepted vote over.
	progress, err := c.votes.Progress(ctx, roomID)
	if err != nil {
		c.logger.Error("failed to compute progress",
			slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
		ctx.Status(http.StatusCreated)
		return
	}

	c.hub.NotifyProgress(roomID, progress)

	if progress.AllFinished {
		if err := c.rooms.Finish(ctx, roomID); err == nil {
			c.hub.NotifyVotingFinished(roomID)
		}
	}

	ctx.Status(http.StatusCreated)
}

type MovieTallyDTO struct {
	MovieID int64    `json:"movie_id"`
	Count   int      `json:"count"`
	Voters  []string `json:"voters"`
}

type ResultsResponseDTO struct {
	Matches []MovieTallyDTO `json:"matches"`
	Partial []MovieTallyDTO `json:"partial"`
	NoMatch []int64         `json:"no_match"`
}

func (c *Controller) results(ctx *gin.Context) {
	roomID, _, ok := c.validateParticipant(ctx)
	if !ok {
		return
	}

	results, err := c.votes.Results(ctx, roomID)
	if err != nil {
		c.logger.Error("failed to compute results",
			slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusOK, ResultsResponseDTO{
		Matches: toTallyDTOs(results.Matches),
		Partial: toTallyDTOs(results.Partial),
		NoMatch: results.NoMatch,
	})
}

func toTallyDTOs(tallies []model.MovieTally) []MovieTallyDTO {
	dtos := make([]MovieTallyDTO, 0, len(tallies))
	for _, t := range tallies {
		voters := make([]string, 0, len(t.Voters))
		for _, v := range t.Voters {
			voters = append(voters, v.String())
		}
		dtos = append(dtos, MovieTallyDTO{
			MovieID: t.MovieID,
			Count:   t.Likes,
			Voters:  voters,
		})
	}
	return dtos
}

type ProgressResponseDTO struct {
	ParticipantCount int  `json:"participant_count"`
	FinishedCount    int  `json:"finished_count"`
	AllFinished      bool `json:"all_finished"`
}

func (c *Controller) progress(ctx *gin.Context) {
	roomID, _, ok := c.validateParticipant(ctx)
	if !ok {
		return
	}

	progress, err := c.votes.Progress(ctx, roomID)
	if err != nil {
		c.logger.Error("failed to compute progress",
			slog.String("room_id", roomID.String()), slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusOK, ProgressResponseDTO{
		ParticipantCount: progress.ParticipantCount,
		FinishedCount:    progress.FinishedCount,
		AllFinished:      progress.AllFinished,
	})
}
