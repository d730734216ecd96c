// SPDX-License-Identifier: MIT
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/analysis"
)

const (
	writeTimeout = 2 * time.Second
	minPollDelay = time.Millisecond
)

// SnapshotSource supplies the latest analysis result and the cadence it
// is produced at.
type SnapshotSource interface {
	Latest() analysis.Snapshot
	FPSCap() int
}

// ClientCounter tracks how many subscribers are currently connected.
type ClientCounter interface {
	AddClients(delta int)
}

// Handler upgrades HTTP requests to websocket subscribers and runs one
// delivery loop per connection.
type Handler struct {
	source   SnapshotSource
	clients  ClientCounter
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewHandler creates a websocket handler. Cross-origin upgrades are
// allowed so browser sources hosted elsewhere can connect.
func NewHandler(source SnapshotSource, clients ClientCounter, logger zerolog.Logger) *Handler {
	return &Handler{
		source:   source,
		clients:  clients,
		logger:   logger,
		shutdown: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and blocks serving it until the
// client disconnects or the handler shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if h.clients != nil {
		h.clients.AddClients(1)
		defer h.clients.AddClients(-1)
	}
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("subscriber connected")
	h.serve(conn)
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("subscriber disconnected")
}

// serve runs the delivery loop: poll the source at a quarter of the
// frame interval and push each new frame exactly once.
func (h *Handler) serve(conn *websocket.Conn) {
	// Inbound traffic is ignored; the reader exists to observe the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var lastID uint32
	for {
		select {
		case <-h.shutdown:
			return
		case <-gone:
			return
		case <-time.After(h.pollDelay()):
		}

		snap := h.source.Latest()
		if snap.FrameID == 0 || snap.FrameID == lastID {
			continue
		}
		frame, err := EncodeFrame(snap)
		if err != nil {
			h.logger.Error().Err(err).Msg("frame encode failed")
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
		lastID = snap.FrameID
	}
}

// pollDelay derives the poll interval from the producer cadence,
// sampling four times per frame so a fresh frame is never stale for
// more than a quarter interval.
func (h *Handler) pollDelay() time.Duration {
	fps := h.source.FPSCap()
	if fps < 1 {
		fps = 1
	}
	d := time.Second / time.Duration(4*fps)
	if d < minPollDelay {
		d = minPollDelay
	}
	return d
}

// Close stops accepting subscribers, signals the delivery loops, and
// waits for them to exit.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.shutdown)
	h.mu.Unlock()
	h.wg.Wait()
}
