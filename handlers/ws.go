// handlers/ws.go - Live challenge event feed
package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type wsEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// challengeHub fans challenge events out to connected participants.
type challengeHub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[*websocket.Conn]chan wsEvent
}

var hub = &challengeHub{
	subscribers: make(map[uint]map[*websocket.Conn]chan wsEvent),
}

func (h *challengeHub) subscribe(challengeID uint, conn *websocket.Conn) chan wsEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[challengeID] == nil {
		h.subscribers[challengeID] = make(map[*websocket.Conn]chan wsEvent)
	}
	ch := make(chan wsEvent, 16)
	h.subscribers[challengeID][conn] = ch
	return ch
}

func (h *challengeHub) unsubscribe(challengeID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns := h.subscribers[challengeID]; conns != nil {
		if ch, ok := conns[conn]; ok {
			close(ch)
			delete(conns, conn)
		}
		if len(conns) == 0 {
			delete(h.subscribers, challengeID)
		}
	}
}

func (h *challengeHub) publish(challengeID uint, event wsEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers[challengeID] {
		select {
		case ch <- event:
		default:
			// Slow consumer, drop rather than block the publisher.
		}
	}
}

// PublishChallengeEvent pushes an event to every subscriber of a challenge.
// Safe to call from any goroutine; also registered as the evaluation
// service's event publisher.
func PublishChallengeEvent(challengeID uint, event string, payload any) {
	hub.publish(challengeID, wsEvent{Event: event, Payload: payload})
}

// WebSocketUpgrade gates non-websocket requests before the upgrade handler.
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ChallengeFeed streams opponent_submitted and evaluation_completed events
// for one challenge to an authenticated participant.
// GET /ws/challenges/:id
var ChallengeFeed = websocket.New(func(conn *websocket.Conn) {
	defer conn.Close()

	userID, ok := wsUserID(conn)
	if !ok {
		_ = conn.WriteJSON(wsEvent{Event: "error", Payload: fiber.Map{"message": "Not authenticated"}})
		return
	}

	challengeID, err := wsChallengeID(conn)
	if err != nil {
		_ = conn.WriteJSON(wsEvent{Event: "error", Payload: fiber.Map{"message": err.Error()}})
		return
	}

	challenge, err := challengeStore.GetChallenge(context.Background(), challengeID)
	if err != nil {
		_ = conn.WriteJSON(wsEvent{Event: "error", Payload: fiber.Map{"message": "Challenge not found"}})
		return
	}
	if !challenge.IsParticipant(userID) {
		_ = conn.WriteJSON(wsEvent{Event: "error", Payload: fiber.Map{"message": "Not a participant"}})
		return
	}

	events := hub.subscribe(challengeID, conn)
	defer hub.unsubscribe(challengeID, conn)

	_ = conn.WriteJSON(wsEvent{Event: "subscribed", Payload: fiber.Map{
		"challenge_id": challengeID,
		"status":       challenge.Status,
	}})

	// Reader goroutine detects client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("ws: write to challenge %d subscriber failed: %v", challengeID, err)
				return
			}
		case <-done:
			return
		}
	}
})

func wsUserID(conn *websocket.Conn) (uint, bool) {
	switch v := conn.Locals("userId").(type) {
	case float64:
		return uint(v), true
	case uint:
		return v, true
	default:
		return 0, false
	}
}

func wsChallengeID(conn *websocket.Conn) (uint, error) {
	id, err := strconv.ParseUint(conn.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("Invalid challenge ID format")
	}
	return uint(id), nil
}
