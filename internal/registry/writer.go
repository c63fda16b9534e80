package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	idleTimeout       = 5 * time.Minute
	messageBufferSize = 16
)

// clientWriter is the only goroutine writing data frames to its connection.
type clientWriter struct {
	connection    *websocket.Conn
	clock         clockwork.Clock
	metrics       *metrics.RegistryMetrics
	sendChannel   chan []byte
	doneChannel   chan struct{}
	state         atomic.Int32
	stopOnce      sync.Once
	wg            sync.WaitGroup
	lastActivity  time.Time
	activityMutex sync.Mutex
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, m *metrics.RegistryMetrics) *clientWriter {
	cw := &clientWriter{
		connection:   connection,
		clock:        clock,
		metrics:      m,
		sendChannel:  make(chan []byte, messageBufferSize),
		doneChannel:  make(chan struct{}),
		lastActivity: clock.Now(),
	}
	cw.state.Store(int32(domain.StateOpen))
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) currentState() domain.ConnState {
	return domain.ConnState(cw.state.Load())
}

func (cw *clientWriter) isOpen() bool {
	return cw.currentState() == domain.StateOpen
}

// enqueue hands a frame to the writer without blocking.
// Returns false if the connection is not open or its buffer is full.
func (cw *clientWriter) enqueue(frame []byte) bool {
	if !cw.isOpen() {
		return false
	}
	select {
	case cw.sendChannel <- frame:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.fail()
				return
			}
			if cw.metrics != nil {
				cw.metrics.SendDuration.Observe(cw.clock.Since(start).Seconds())
			}
		case <-ticker.Chan():
			if cw.checkIdleTimeout() {
				cw.fail()
				return
			}

			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if cw.metrics != nil {
					cw.metrics.PingFailures.Inc()
				}
				cw.fail()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// fail marks a broken transport as closing and closes the socket so the
// reader observes the error and unregisters the connection.
func (cw *clientWriter) fail() {
	cw.state.CompareAndSwap(int32(domain.StateOpen), int32(domain.StateClosing))
	_ = cw.connection.Close()
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		cw.state.Store(int32(domain.StateClosing))
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
	cw.state.Store(int32(domain.StateClosed))
}

// stopGraceful sends a close frame with the given code and reason before closing.
func (cw *clientWriter) stopGraceful(code int, reason string) {
	cw.stopOnce.Do(func() {
		cw.state.Store(int32(domain.StateClosing))
		close(cw.doneChannel)

		// The run goroutine must be gone before the close frame is written.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)

		_ = cw.connection.Close()
	})
	cw.wg.Wait()
	cw.state.Store(int32(domain.StateClosed))
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		cw.recordActivity()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}

func (cw *clientWriter) updateReadDeadline() {
	deadline := cw.clock.Now().Add(pongDeadline)
	_ = cw.connection.SetReadDeadline(deadline)
}

// recordActivity updates the last activity timestamp.
func (cw *clientWriter) recordActivity() {
	cw.activityMutex.Lock()
	defer cw.activityMutex.Unlock()
	cw.lastActivity = cw.clock.Now()
}

// checkIdleTimeout returns true if the client has shown no activity for idleTimeout.
func (cw *clientWriter) checkIdleTimeout() bool {
	cw.activityMutex.Lock()
	idleDuration := cw.clock.Since(cw.lastActivity)
	cw.activityMutex.Unlock()

	if idleDuration >= idleTimeout {
		if cw.metrics != nil {
			cw.metrics.IdleDisconnects.Inc()
		}
		return true
	}
	return false
}
