package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	hubBuffer    = 256
	clientBuffer = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Ошибки Hub.
var (
	// ErrHubBusy: очередь рассылки переполнена, событие отброшено.
	ErrHubBusy = errors.New("progress hub is busy")

	// ErrHubClosed: Run завершён, новые клиенты не принимаются.
	ErrHubClosed = errors.New("progress hub is closed")
)

// client: одно websocket соединение.
type client struct {
	conn *websocket.Conn

	// sessionID задаёт фильтр; uuid.Nil означает все сессии.
	sessionID uuid.UUID
	send      chan []byte
}

// Hub рассылает события websocket-клиентам.
//
// Все изменения набора клиентов и рассылка идут через один цикл Run.
// Медленный клиент, у которого переполнился буфер, отключается.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan Event
	count      chan chan int

	// done закрывается при выходе из Run.
	done  chan struct{}
	pumps sync.WaitGroup

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub создаёт Hub. Для работы нужно запустить Run.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, hubBuffer),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "hub"),
	}
}

// Run обрабатывает регистрацию клиентов и рассылку до отмены ctx.
// Вызывается один раз.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to marshal progress event", "error", err)
				continue
			}
			for c := range h.clients {
				if c.sessionID != uuid.Nil && c.sessionID != ev.SessionID {
					continue
				}
				select {
				case c.send <- data:
				default:
					h.logger.Warn("slow websocket client dropped", "session_id", c.sessionID)
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish реализует Sink. Не блокируется на медленных клиентах.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrHubBusy
	}
}

// Clients возвращает число подключённых клиентов.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
}

// Wait ждёт завершения горутин клиентов после остановки Run.
func (h *Hub) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS переводит запрос в websocket и подписывает клиента.
// sessionID == uuid.Nil подписывает на все сессии.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, sessionID: sessionID, send: make(chan []byte, clientBuffer)}

	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return r.Context().Err()
	case <-h.done:
		conn.Close()
		return ErrHubClosed
	}

	h.pumps.Add(2)
	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// readPump читает управляющие кадры до закрытия соединения.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
		h.pumps.Done()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump пишет события клиенту и шлёт ping.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.pumps.Done()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
