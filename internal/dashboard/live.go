package dashboard

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MonilMehta/fyp/internal/tracking"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Feed fans persisted events out to connected dashboard sockets.
// Publishing is best-effort and never blocks the ingest path: a slow
// subscriber misses events rather than backing up the pipeline.
type Feed struct {
	mu   sync.Mutex
	subs map[chan tracking.Event]struct{}
	log  zerolog.Logger
}

// NewFeed creates a Feed.
func NewFeed(log zerolog.Logger) *Feed {
	return &Feed{
		subs: make(map[chan tracking.Event]struct{}),
		log:  log,
	}
}

// Publish delivers ev to all subscribers without blocking.
func (f *Feed) Publish(ev tracking.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *Feed) subscribe() chan tracking.Event {
	ch := make(chan tracking.Event, 32)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan tracking.Event) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
}

func (d *Dashboard) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.feed.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := d.feed.subscribe()
	defer d.feed.unsubscribe(ch)

	// Reader goroutine: the dashboard never sends anything useful,
	// but reading is required to observe the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					d.feed.log.Debug().Err(err).Msg("websocket write failed")
				}
				return
			}
		}
	}
}
