// Package progress fans the level reports of running jobs out to WebSocket
// subscribers.
package progress

import (
	"io"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/png2mesh/amr"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// DefaultBufferSize is the number of events a subscriber can lag behind
// before events are dropped.
const DefaultBufferSize = 64

// Event is a level report of one job.
type Event struct {
	RunID string `json:"run_id"`
	Image string `json:"image"`
	amr.LevelReport
}

// Hub distributes events to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses events. A new subscriber first
// receives the last published event.
type Hub struct {
	BufferSize int

	mutex       sync.Mutex
	subscribers map[chan Event]struct{}
	last        *Event
	closed      bool
}

// Subscribe registers a subscriber. The returned function unsubscribes it.
// The channel is closed when the subscriber unsubscribes or the hub closes.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	size := h.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	ch := make(chan Event, size)

	if h.closed {
		close(ch)
		return ch, func() {}
	}

	if h.subscribers == nil {
		h.subscribers = make(map[chan Event]struct{})
	}
	h.subscribers[ch] = struct{}{}

	if h.last != nil {
		ch <- *h.last
	}

	return ch, func() {
		h.mutex.Lock()
		defer h.mutex.Unlock()

		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

// Publish sends e to every subscriber.
func (h *Hub) Publish(e Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}

	h.last = &e
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			instrumentDrop()
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}

	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// Handler returns a WebSocket handler streaming events as JSON text
// messages.
func (h *Hub) Handler() websocket.Handler {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		events, unsubscribe := h.Subscribe()
		defer unsubscribe()

		// Clients are not expected to send anything: reading only detects
		// disconnections.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			io.Copy(io.Discard, conn)
		}()

		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}

				b, err := json.Marshal(e)
				if err != nil {
					logs.Warn(errors.New("encoding progress event failed").Wrap(err))
					continue
				}

				if err := websocket.Message.Send(conn, string(b)); err != nil {
					logs.WithTag("remote_addr", conn.Request().RemoteAddr).
						Debug(errors.New("sending progress event failed").Wrap(err))
					return
				}

			case <-gone:
				return
			}
		}
	}
}
