package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	Payload   T      `json:"payload"`
}

type ackPayload struct {
	Action string `json:"action"`
	Result any    `json:"result,omitempty"`
}

const (
	msgPing  = "ping"
	msgPong  = "pong"
	msgAck   = "ack"
	msgError = "error"

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong or frame from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// ServeWS upgrades HTTP requests to websockets. The first frame is a state
// snapshot; later frames are session events in commit order, interleaved
// with ack/error replies addressed to this connection only.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	room := strings.ToUpper(strings.TrimSpace(query.Get("room")))
	role := domain.Role(query.Get("role"))
	credential := query.Get("token")
	if role == domain.RolePlayer {
		credential = query.Get("teamId")
	}
	if room == "" || credential == "" || (role != domain.RoleFacilitator && role != domain.RolePlayer) {
		http.Error(w, "missing room, role, or credential", http.StatusBadRequest)
		return
	}

	actor, err := h.service.Authenticate(r.Context(), room, role, credential)
	if err != nil {
		writeError(w, err)
		return
	}
	sub, err := h.service.Subscribe(r.Context(), room, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)
	log.Printf("[ws %s] %s connected %s", room, role, actor.TeamID)

	ctx, cancel := context.WithCancel(r.Context())
	send := make(chan outboundMessage[any], 64)
	streamEnded := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})
	// Held while a request is handled so its reply is queued before a
	// session-ended close frame.
	var requests sync.Mutex

	go h.writePump(conn, send, streamEnded, &requests, writerDone)

	go func() {
		defer close(pumpDone)
		for {
			envelopes, err := sub.Next(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrSubscriptionClosed) {
					log.Printf("[ws %s] session closed stream for %s", room, role)
					close(streamEnded)
				}
				return
			}
			for _, env := range envelopes {
				select {
				case send <- outboundMessage[any]{Type: string(env.Type), Seq: env.Seq, Payload: env.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws %s] read error: %v", room, err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		requests.Lock()
		send <- h.handle(ctx, room, actor, inbound)
		requests.Unlock()
	}

	cancel()
	<-pumpDone
	close(send)
	<-writerDone
	log.Printf("[ws %s] %s disconnected %s", room, role, actor.TeamID)
}

// writePump is the only writer of conn. It pings the peer periodically and,
// once the session has ended the stream, waits for an in-flight reply, flushes
// what is queued, sends a close frame and closes the socket so the read loop
// returns. After any write failure it keeps draining send until the handler
// closes it.
func (h *WSHandler) writePump(conn *websocket.Conn, send chan outboundMessage[any], streamEnded <-chan struct{}, requests sync.Locker, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		for range send {
		}
		close(done)
	}()

	write := func(msg outboundMessage[any]) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !write(msg) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-streamEnded:
			idle := make(chan struct{})
			go func() {
				requests.Lock()
				close(idle)
				requests.Unlock()
			}()
			for waiting := true; waiting; {
				select {
				case msg, ok := <-send:
					if !ok {
						waiting = false
					} else if !write(msg) {
						return
					}
				case <-idle:
					waiting = false
				}
			}
			for n := len(send); n > 0; n-- {
				if !write(<-send) {
					return
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			return
		}
	}
}

func (h *WSHandler) handle(ctx context.Context, room string, actor domain.Actor, inbound inboundMessage) outboundMessage[any] {
	if inbound.Type == msgPing {
		return outboundMessage[any]{Type: msgPong, RequestID: inbound.RequestID}
	}
	result, err := dispatch(ctx, h.service, room, actor, inbound.Type, inbound.Payload)
	if err != nil {
		_, payload := toErrorPayload(err)
		return outboundMessage[any]{Type: msgError, RequestID: inbound.RequestID, Payload: payload}
	}
	return outboundMessage[any]{Type: msgAck, RequestID: inbound.RequestID, Payload: ackPayload{
		Action: strings.ToLower(inbound.Type),
		Result: result,
	}}
}
