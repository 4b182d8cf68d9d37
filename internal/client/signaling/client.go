package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/domain/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

var (
	ErrClosed    = errors.New("signaling connection closed")
	ErrQueueFull = errors.New("signaling send queue full")
)

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	serverURL string
	token     string

	conn     *websocket.Conn
	incoming chan events.Message
	outgoing chan events.Message

	// done закрывается, когда транспорт закрыт (любой стороной)
	done chan struct{}
	stop chan struct{}

	doneOnce sync.Once
	stopOnce sync.Once
}

// NewClient creates a new signaling client. Token is sent as the jwt cookie and as a bearer header
func NewClient(serverURL, token string) *Client {
	return &Client{
		serverURL: serverURL,
		token:     token,
		incoming:  make(chan events.Message, sendBuffer),
		outgoing:  make(chan events.Message, sendBuffer),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
		header.Set("Cookie", (&http.Cookie{Name: "jwt", Value: c.token}).String())
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.markDone()
		c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("signaling read", slog.Any(constant.Error, err))
			}
			return
		}

		msg, err := events.Decode(raw)
		if err != nil {
			slog.Warn("drop malformed signaling message", slog.Any(constant.Error, err))
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.stop:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			if err := c.write(msg); err != nil {
				slog.Warn("signaling write", slog.Any(constant.Error, err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return

		case <-c.stop:
			// отправляем то, что уже в очереди (например leave-room), затем close frame
			for {
				select {
				case msg := <-c.outgoing:
					if err := c.write(msg); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					)
					return
				}
			}
		}
	}
}

func (c *Client) write(msg events.Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return c.conn.WriteJSON(msg)
}

// Send queues a message without blocking.
func (c *Client) Send(msg events.Message) error {
	select {
	case <-c.stop:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Incoming returns the channel for receiving messages. It is closed with the transport.
func (c *Client) Incoming() <-chan events.Message {
	return c.incoming
}

// Done is closed once the transport is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close flushes queued messages and closes the WebSocket connection.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}
