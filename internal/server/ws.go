package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/game"
	"skinbet/internal/metrics"
)

const (
	DefaultSendBuffer = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// frames past MaxFrameBytes still reach the decoder so the client gets an error event
	readLimit  = 4 * game.MaxFrameBytes
)

// client adapts one websocket connection to game.Sender. Frames are queued on
// send and written by a single writer goroutine.
type client struct {
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
}

func newClient(conn *websocket.Conn, buffer int) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Send queues msg without blocking. A full queue or a closed client drops it.
func (c *client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *client) startWriter() {
	c.writerWG.Add(1)
	go c.writePump()
}

// wait blocks until the writer has stopped touching the connection.
func (c *client) wait() {
	c.writerWG.Wait()
}

func (c *client) writePump() {
	defer c.writerWG.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).Debug("[WS] Write error")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *FiberServer) websocketHandler(conn *websocket.Conn) {
	c := newClient(conn, s.sendBuffer)
	connID := s.platform.Connect(c)
	c.startWriter()

	log.WithFields(log.Fields{"conn": connID, "remote": conn.RemoteAddr().String()}).Info("[WS] New connection")

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reason := metrics.ReasonClosed
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			reason = disconnectReason(err)
			if reason != metrics.ReasonClosed {
				log.WithError(err).WithField("conn", connID).Debug("[WS] Read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		// rejections were already pushed to the client
		_ = s.platform.Handle(context.Background(), connID, message)
	}

	s.platform.Disconnect(connID)
	c.close()
	c.wait()

	metrics.Disconnects.WithLabelValues(reason).Inc()
	log.WithFields(log.Fields{"conn": connID, "reason": reason}).Info("[WS] Connection closed")
}

func disconnectReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return metrics.ReasonClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.ReasonTimeout
	}
	return metrics.ReasonError
}
