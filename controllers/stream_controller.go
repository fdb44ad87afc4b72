package controllers

import (
	"net/http"
	"sync"
	"time"

	"fno-signals/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamController pushes the breakout scan to websocket clients
type StreamController struct {
	analytics *services.AnalyticsService
	interval  time.Duration
	logger    *logrus.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStreamController creates a stream controller scanning every interval
func NewStreamController(analytics *services.AnalyticsService, interval time.Duration) *StreamController {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if interval <= 0 {
		interval = 20 * time.Second
	}

	return &StreamController{
		analytics: analytics,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// SetLogger replaces the controller logger
func (sc *StreamController) SetLogger(l *logrus.Logger) {
	sc.logger = l
}

// Shutdown ends every open stream and waits for them to finish
func (sc *StreamController) Shutdown() {
	sc.stopOnce.Do(func() { close(sc.done) })
	sc.wg.Wait()
}

// HandleBreakoutStream upgrades to a websocket and pushes the scan until the client leaves
// GET /api/v1/stream/breakouts
func (sc *StreamController) HandleBreakoutStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sc.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	sc.wg.Add(1)
	defer sc.wg.Done()
	defer conn.Close()

	sc.logger.WithField("remote", c.ClientIP()).Info("Breakout stream opened")

	closed := make(chan struct{})
	go sc.readPump(conn, closed)

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if !sc.push(c, conn) {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !sc.push(c, conn) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			sc.logger.WithField("remote", c.ClientIP()).Info("Breakout stream closed by client")
			return
		case <-sc.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// push sends one scan, or an error frame when the scan fails. It reports whether the
// connection is still usable.
func (sc *StreamController) push(c *gin.Context, conn *websocket.Conn) bool {
	var payload interface{}
	result, err := sc.analytics.Breakouts(c.Request.Context())
	if err != nil {
		sc.logger.WithError(err).Warn("Breakout scan failed")
		payload = gin.H{
			"error":   "Failed to scan breakouts",
			"details": err.Error(),
		}
	} else {
		payload = result
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(payload); err != nil {
		sc.logger.WithError(err).Debug("Breakout stream write failed")
		return false
	}
	return true
}

// readPump drains client frames so pongs and close frames are processed
func (sc *StreamController) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
