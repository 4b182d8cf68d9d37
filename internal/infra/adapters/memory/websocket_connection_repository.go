package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/application/metric"
	"github.com/qrave1/CareCall/internal/domain/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. Must be less than the reader's pong wait.
	PingPeriod = 54 * time.Second
)

// WebsocketConnectionRepository интерфейс для работы с активными сессиями в памяти
type WebsocketConnectionRepository interface {
	Add(uuid.UUID, *websocket.Conn)
	Remove(uuid.UUID)

	Write(uuid.UUID, events.Message) bool
	Count() int
}

// wsConn - соединение с очередью отправки; писатель в сокет ровно один (writePump)
type wsConn struct {
	conn *websocket.Conn
	send chan events.Message
	done chan struct{}
	once sync.Once
}

type wsConnectionRepository struct {
	// wsConns хранит map[session_id]*wsConn
	wsConns map[uuid.UUID]*wsConn

	sendBuffer int

	mu sync.RWMutex
}

func NewWSConnectionRepository(sendBuffer int) WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns:    make(map[uuid.UUID]*wsConn, 10),
		sendBuffer: sendBuffer,
	}
}

func (w *wsConnectionRepository) Add(sessionID uuid.UUID, conn *websocket.Conn) {
	c := &wsConn{
		conn: conn,
		send: make(chan events.Message, w.sendBuffer),
		done: make(chan struct{}),
	}

	w.mu.Lock()
	old, exists := w.wsConns[sessionID]
	w.wsConns[sessionID] = c
	w.mu.Unlock()

	if exists {
		old.stop()
	} else {
		metric.IncrementWSActiveConnections()
	}

	go c.writePump(sessionID)
}

func (w *wsConnectionRepository) Remove(sessionID uuid.UUID) {
	w.mu.Lock()
	c, exists := w.wsConns[sessionID]
	if exists {
		delete(w.wsConns, sessionID)
	}
	w.mu.Unlock()

	if !exists {
		return
	}

	c.stop()

	metric.DecrementWSActiveConnections()
}

// Write ставит сообщение в очередь и никогда не блокируется
func (w *wsConnectionRepository) Write(sessionID uuid.UUID, msg events.Message) bool {
	w.mu.RLock()
	c, ok := w.wsConns[sessionID]
	w.mu.RUnlock()

	if !ok {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		slog.Error(
			"websocket send queue is full",
			slog.Any(constant.SessionID, sessionID),
			slog.String(constant.Type, string(msg.Type)),
		)

		return false
	}
}

func (w *wsConnectionRepository) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.wsConns)
}

func (c *wsConn) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsConn) writePump(sessionID uuid.UUID) {
	ticker := time.NewTicker(PingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Error(
					"write to websocket",
					slog.Any(constant.Error, err),
					slog.Any(constant.SessionID, sessionID),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// дописываем то, что успели поставить в очередь (например user-left) и закрываемся
			for {
				select {
				case msg := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteJSON(msg); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
