package ws_room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cinematch/core/internal/model"
	usecase_room "github.com/cinematch/core/internal/usecase/room"
	"github.com/google/uuid"
)

const (
	EventLobbyUpdate    = "LOBBY_UPDATE"
	EventVotingStarted  = "VOTING_STARTED"
	EventResultsUpdate  = "RESULTS_UPDATE"
	EventVotingFinished = "VOTING_FINISHED"
	EventError          = "ERROR"
)

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type roomEvent struct {
	roomID string
	event  Event
}

// Hub fans room change notifications out to subscribed clients. The core
// only guarantees that every mutation leaves fetchable state behind;
// clients re-fetch on the events below.
type Hub struct {
	usecase *usecase_room.Usecase
	logger  *slog.Logger

	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan roomEvent

	// lastFinished gates RESULTS_UPDATE: a tally refresh is only announced
	// when the number of participants who hit the quota moved, not on every
	// single swipe.
	lastFinished map[string]int

	mu sync.RWMutex
}

func NewHub(usecase *usecase_room.Usecase) *Hub {
	return &Hub{
		usecase:      usecase,
		logger:       slog.Default(),
		clients:      make(map[*Client]bool),
		rooms:        make(map[string]map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan roomEvent),
		lastFinished: make(map[string]int),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case roomEvent := <-h.broadcast:
			h.broadcastToRoom(roomEvent.roomID, roomEvent.event)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if _, exists := h.rooms[client.roomID]; !exists {
		h.rooms[client.roomID] = make(map[*Client]bool)
	}
	h.rooms[client.roomID][client] = true

	h.logger.Info("client registered",
		"user_id", client.userID,
		"room", client.roomID)

	go h.broadcastParticipantsCount(client.roomID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	h.dropClientLocked(client)
	h.mu.Unlock()

	h.logger.Info("client unregistered",
		"user_id", client.userID,
		"room", client.roomID)

	if client.roomID != "" {
		go h.broadcastParticipantsCount(client.roomID)
	}
}

// dropClientLocked removes the client and closes its send channel. Checking
// membership first keeps the close single even when an unregister and a
// slow-client eviction collide. Caller holds mu.
func (h *Hub) dropClientLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if roomClients, exists := h.rooms[client.roomID]; exists {
		delete(roomClients, client)
		if len(roomClients) == 0 {
			delete(h.rooms, client.roomID)
			delete(h.lastFinished, client.roomID)
		}
	}
}

func (h *Hub) broadcastParticipantsCount(roomID string) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return
	}

	participants, err := h.usecase.Participants(context.Background(), id)
	if err != nil {
		h.logger.Error("failed to get participants", "error", err, "room", roomID)
		return
	}

	h.broadcastToRoom(roomID, Event{
		Type: EventLobbyUpdate,
		Payload: map[string]interface{}{
			"participants_count": len(participants),
		},
	})
}

// broadcastToRoom runs concurrently (the hub loop plus the goroutines
// behind NotifyLobbyUpdate), so it takes the write lock: the slow-client
// branch mutates the room map.
func (h *Hub) broadcastToRoom(roomID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[roomID] {
		select {
		case client.send <- event:
		default:
			h.dropClientLocked(client)
		}
	}
}

func (h *Hub) NotifyLobbyUpdate(roomID uuid.UUID) {
	go h.broadcastParticipantsCount(roomID.String())
}

func (h *Hub) NotifyVotingStarted(roomID uuid.UUID, initiatedBy uuid.UUID, movieCount int) {
	h.broadcast <- roomEvent{
		roomID: roomID.String(),
		event: Event{
			Type: EventVotingStarted,
			Payload: map[string]interface{}{
				"initiated_by": initiatedBy.String(),
				"room_id":      roomID.String(),
				"movie_count":  movieCount,
			},
		},
	}
}

// NotifyProgress reports fresh voting progress. Returns true when the
// finished count changed since the last report for this room, i.e. when
// subscribers should re-fetch results.
func (h *Hub) NotifyProgress(roomID uuid.UUID, progress model.VotingProgress) bool {
	key := roomID.String()

	h.mu.Lock()
	changed := h.lastFinished[key] != progress.FinishedCount
	h.lastFinished[key] = progress.FinishedCount
	h.mu.Unlock()

	if !changed {
		return false
	}

	h.broadcast <- roomEvent{
		roomID: key,
		event: Event{
			Type: EventResultsUpdate,
			Payload: map[string]interface{}{
				"room_id":           key,
				"finished_count":    progress.FinishedCount,
				"participant_count": progress.ParticipantCount,
			},
		},
	}

	return true
}

func (h *Hub) NotifyVotingFinished(roomID uuid.UUID) {
	h.broadcast <- roomEvent{
		roomID: roomID.String(),
		event: Event{
			Type: EventVotingFinished,
			Payload: map[string]interface{}{
				"room_id":   roomID.String(),
				"message":   "All participants have voted",
				"timestamp": time.Now().Unix(),
			},
		},
	}

	h.logger.Info("voting finished notification sent",
		"room", roomID.String())
}
