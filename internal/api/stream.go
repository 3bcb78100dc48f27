package api

import (
	"net/http"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/game"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxInbound = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is already checked by the cors middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamPlayer pushes the player's state every push interval until the client
// goes away or the session closes. Inbound frames are read only to notice the
// client disconnecting.
func (s *Server) streamPlayer(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.String("wallet", sess.Wallet()), zap.Error(err))
		return
	}
	defer conn.Close()
	logger := s.logger.With(zap.String("wallet", sess.Wallet()))
	logger.Debug("Stream opened")

	gone := make(chan struct{})
	go readUntilClosed(conn, gone)

	push := time.NewTicker(s.pushInterval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := writeState(conn, sess); err != nil {
		logger.Debug("Stream write failed", zap.Error(err))
		return
	}
	for {
		select {
		case <-gone:
			logger.Debug("Stream closed by client")
			return
		case <-sess.Done():
			if err := writeClosed(conn); err != nil {
				logger.Debug("Stream close frame failed", zap.Error(err))
			}
			return
		case <-push.C:
			if err := writeState(conn, sess); err != nil {
				logger.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeState(conn *websocket.Conn, sess *game.Session) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(StreamMessage{Type: "state", Data: playerResponse(sess.View())})
}

func writeClosed(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(StreamMessage{Type: "closed"})
}

func readUntilClosed(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(maxInbound)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
