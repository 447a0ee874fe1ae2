package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"salonbook/internal/auth"
	"salonbook/internal/domain"
	"salonbook/internal/events"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 64

	changeSubscribed = "subscribed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// changeMessage is one frame of the change feed. Payload is only sent to
// callers who manage the professional; everyone else just learns that the
// day must be reloaded.
type changeMessage struct {
	ID             string          `json:"id,omitempty"`
	Type           string          `json:"type"`
	ProfessionalID int64           `json:"professional_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// handleChanges streams change events for one professional over a WebSocket.
// Admins may omit professional_id to receive everything. A subscriber that
// falls behind is disconnected and is expected to reconnect and reload.
func (s *HTTPServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeError(w, http.StatusNotImplemented, "change feed is not configured")
		return
	}
	professionalID, err := queryID(r, "professional_id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	sess := auth.SessionFromContext(r.Context())
	if professionalID == 0 && !sess.IsAdmin() {
		writeServiceError(w, r, s.logger, fmt.Errorf("%w: professional_id is required", domain.ErrInvalidInput))
		return
	}
	full := sess.IsAdmin() || sess.CanManageProfessional(professionalID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	send := make(chan []byte, wsSendBuffer)
	// Приветствие уходит клиенту только после подписки: писатель стартует ниже
	hello, _ := json.Marshal(changeMessage{Type: changeSubscribed, ProfessionalID: professionalID, CreatedAt: s.now()})
	send <- hello
	var closeOnce sync.Once
	drop := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer drop()

	unsubscribe := s.deps.Bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		if professionalID != 0 && e.ProfessionalID != professionalID {
			return nil
		}
		msg := changeMessage{ID: e.ID, Type: e.Type, ProfessionalID: e.ProfessionalID, CreatedAt: e.CreatedAt}
		if full {
			msg.Payload = e.Payload
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		select {
		case send <- data:
		default:
			drop()
		}
		return nil
	})
	defer unsubscribe()

	s.logger.Debug().Int64("professional_id", professionalID).Bool("full", full).Msg("Change feed subscribed")

	done := make(chan struct{})
	go readChanges(conn, done)
	writeChanges(conn, send, done)
}

// readChanges discards client frames and keeps the read deadline alive on pongs.
func readChanges(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeChanges(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
