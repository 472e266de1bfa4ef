package http_room

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	http_common "github.com/cinematch/core/internal/delivery/http/common"
	ws_room "github.com/cinematch/core/internal/delivery/ws/room"
	"github.com/cinematch/core/internal/model"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	usecase *usecase_room.Usecase
	hub     *ws_room.Hub
	logger  *slog.Logger
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(usecase *usecase_room.Usecase, hub *ws_room.Hub, opts ...ControllerOption) *Controller {
	c := &Controller{
		usecase: usecase,
		hub:     hub,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	{
		rooms.POST("", c.create)
		rooms.POST("/joins", c.join)
		rooms.GET("/:room_id", c.get)
		rooms.DELETE("/:room_id/participations", c.leave)
	}
}

// The identity provider sits in front of us; X-user-token carries the
// caller's opaque user id.
func requireUserID(ctx *gin.Context) (uuid.UUID, bool) {
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

type RoomResponseDTO struct {
	RoomID   string  `json:"room_id"`
	Code     string  `json:"code"`
	Status   string  `json:"status"`
	MovieIDs []int64 `json:"movie_ids,omitempty"`
	Created  string  `json:"created_at,omitempty"`
}

func toRoomDTO(room model.Room) RoomResponseDTO {
	dto := RoomResponseDTO{
		RoomID:   room.ID.String(),
		Code:     room.Code,
		Status:   room.Status,
		MovieIDs: room.MovieIDs,
	}
	if !room.CreatedAt.IsZero() {
		dto.Created = room.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func (c *Controller) create(ctx *gin.Context) {
	creatorID, ok := requireUserID(ctx)
	if !ok {
		return
	}

	room, err := c.usecase.Create(ctx, creatorID)
	if err != nil {
		c.logger.Error("failed to create room", slog.String("error", err.Error()))
		if errors.Is(err, usecase_room.ErrRoomsUnavailable) {
			ctx.JSON(http.StatusServiceUnavailable, http_common.ErrorResponse{
				Message: "unavailable",
			})
			return
		}
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusCreated, toRoomDTO(room))
}

type JoinRequestDTO struct {
	Code string `json:"code" binding:"required"`
}

func (c *Controller) join(ctx *gin.Context) {
	userID, ok := requireUserID(ctx)
	if !ok {
		return
	}

	var req JoinRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid request format",
		})
		return
	}

	room, err := c.usecase.Join(ctx, req.Code, userID)
	if err != nil {
		switch {
		case errors.Is(err, usecase_room.ErrResourceNotFound):
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
		case errors.Is(err, usecase_room.ErrRoomConflict):
			ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
				Message: "voting already started",
			})
		case errors.Is(err, usecase_room.ErrRoomFull):
			ctx.JSON(http.StatusConflict, http_common.ErrorResponse{
				Message: "room is full",
			})
		default:
			c.logger.Error("failed to join room", slog.String("error", err.Error()))
			ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
				Message: "internal error",
			})
		}
		return
	}

	c.hub.NotifyLobbyUpdate(room.ID)

	ctx.JSON(http.StatusOK, toRoomDTO(room))
}

type GetRoomResponseDTO struct {
	RoomResponseDTO
	Participants []ParticipantDTO `json:"participants"`
}

type ParticipantDTO struct {
	UserID   string `json:"user_id"`
	JoinedAt string `json:"joined_at"`
}

func (c *Controller) get(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid room id",
		})
		return
	}

	room, err := c.usecase.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, usecase_room.ErrResourceNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
			return
		}
		c.logger.Error("failed to get room", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	participants, err := c.usecase.Participants(ctx, roomID)
	if err != nil {
		c.logger.Error("failed to get participants", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	resp := GetRoomResponseDTO{
		RoomResponseDTO: toRoomDTO(room),
		Participants:    make([]ParticipantDTO, 0, len(participants)),
	}
	for _, p := range participants {
		resp.Participants = append(resp.Participants, ParticipantDTO{
			UserID:   p.UserID.String(),
			JoinedAt: p.JoinedAt.Format(time.RFC3339),
		})
	}

	ctx.JSON(http.StatusOK, resp)
}

func (c *Controller) leave(ctx *gin.Context) {
	userID, ok := requireUserID(ctx)
	if !ok {
		return
	}

	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid room id",
		})
		return
	}

	if err := c.usecase.Leave(ctx, roomID, userID); err != nil {
		c.logger.Error("failed to leave room", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	c.hub.NotifyLobbyUpdate(roomID)

	ctx.Status(http.StatusNoContent)
}
