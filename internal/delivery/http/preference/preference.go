package http_preference

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	http_common "github.com/cinematch/core/internal/delivery/http/common"
	"github.com/cinematch/core/internal/model"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PreferenceRepository interface {
	Upsert(ctx context.Context, p model.Preference) error
	ByUserID(ctx context.Context, userID uuid.UUID) (model.Preference, error)
}

type Controller struct {
	preferences PreferenceRepository
	logger      *slog.Logger
}

func New(preferences PreferenceRepository) *Controller {
	return &Controller{
		preferences: preferences,
		logger:      slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/preferences", c.get)
	router.PUT("/preferences", c.save)
}

type PreferenceDTO struct {
	Genres            []int64 `json:"genres"`
	FavoriteActors    []int64 `json:"favorite_actors"`
	FavoriteDirectors []int64 `json:"favorite_directors"`
	YearFrom          *int    `json:"year_from"`
	YearTo            *int    `json:"year_to"`
}

func (c *Controller) userID(ctx *gin.Context) (uuid.UUID, bool) {
	token := ctx.GetHeader("X-user-token")
	if token == "" {
		ctx.JSON(http.StatusUnauthorized, http_common.ErrorResponse{
			Message: "X-user-token header required",
		})
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(token)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid user token",
		})
		return uuid.Nil, false
	}

	return userID, true
}

func (c *Controller) get(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	pref, err := c.preferences.ByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, usecase_room.ErrResourceNotFound) {
			// No saved taste yet: an empty preference, not an error.
			ctx.JSON(http.StatusOK, PreferenceDTO{})
			return
		}
		c.logger.Error("failed to load preferences", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusOK, PreferenceDTO{
		Genres:            pref.Genres,
		FavoriteActors:    pref.FavoriteActors,
		FavoriteDirectors: pref.FavoriteDirectors,
		YearFrom:          pref.YearFrom,
		YearTo:            pref.YearTo,
	})
}

func (c *Controller) save(ctx *gin.Context) {
	userID, ok := c.userID(ctx)
	if !ok {
		return
	}

	var req PreferenceDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid request format",
		})
		return
	}

	err := c.preferences.Upsert(ctx, model.Preference{
		UserID:            userID,
		Genres:            req.Genres,
		FavoriteActors:    req.FavoriteActors,
		FavoriteDirectors: req.FavoriteDirectors,
		YearFrom:          req.YearFrom,
		YearTo:            req.YearTo,
	})
	if err != nil {
		c.logger.Error("failed to save preferences", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.Status(http.StatusNoContent)
}
