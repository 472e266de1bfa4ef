package ws_room

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan Event
	userID string
	roomID string
}

type Controller struct {
	hub    *Hub
	logger *slog.Logger

	upgrader websocket.Upgrader
}

func NewController(hub *Hub) *Controller {
	return &Controller{
		hub:    hub,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin clients are expected; access control lives with
			// the identity provider in front.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws/rooms/:room_id", c.subscribe)
}

func (c *Controller) subscribe(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	userID := ctx.Query("user_id")

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &Client{
		hub:    c.hub,
		conn:   conn,
		send:   make(chan Event, 16),
		userID: userID,
		roomID: roomID,
	}

	c.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (cl *Client) readPump() {
	defer func() {
		cl.hub.unregister <- cl
		cl.conn.Close()
	}()

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (cl *Client) writePump() {
	defer cl.conn.Close()

	for event := range cl.send {
		if err := cl.conn.WriteJSON(event); err != nil {
			break
		}
	}
}
