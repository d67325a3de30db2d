package surreal

import (
	"context"
	"sync"

	"github.com/squidcloud/squid-go/pkg/logger"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// hub shares one live query per table between all of its watchers. The live
// query starts with the first watcher and is killed when the last one
// leaves, so a watcher that attaches before its predecessor detaches keeps
// the query running.
type hub struct {
	ctx context.Context
	be  backend
	log logger.Logger

	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	subject *rx.Subject[Change]
	refs    int
	id      string
	stop    chan struct{}
}

func newHub(ctx context.Context, be backend, log logger.Logger) *hub {
	return &hub{ctx: ctx, be: be, log: log, feeds: map[string]*feed{}}
}

func (h *hub) watch(table string) rx.Observable[Change] {
	return rx.Func[Change](func(o rx.Observer[Change]) rx.Subscription {
		h.mu.Lock()
		f, ok := h.feeds[table]
		if !ok {
			f = &feed{subject: rx.NewSubject[Change](), stop: make(chan struct{})}
			h.feeds[table] = f
			go h.run(table, f)
		}
		f.refs++
		h.mu.Unlock()

		sub := f.subject.Subscribe(o)
		return rx.NewSubscription(func() {
			sub.Unsubscribe()
			h.release(table, f)
		})
	})
}

// Watchers reports how many watchers a table's live query has.
func (h *hub) watchers(table string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[table]; ok {
		return f.refs
	}
	return 0
}

func (h *hub) run(table string, f *feed) {
	id, changes, err := h.be.Live(h.ctx, table)
	if err != nil {
		h.log.Warn("live query failed", "table", table, "error", err)
		h.mu.Lock()
		if h.feeds[table] == f {
			delete(h.feeds, table)
		}
		h.mu.Unlock()
		f.subject.Error(err)
		return
	}

	h.mu.Lock()
	f.id = id
	select {
	case <-f.stop:
		h.mu.Unlock()
		h.kill(table, id)
		return
	default:
	}
	h.mu.Unlock()
	h.log.Debug("live query started", "table", table, "id", id)

	for {
		select {
		case <-f.stop:
			return
		case c, ok := <-changes:
			if !ok {
				h.mu.Lock()
				if h.feeds[table] == f {
					delete(h.feeds, table)
				}
				h.mu.Unlock()
				f.subject.Complete()
				return
			}
			f.subject.Next(c)
		}
	}
}

func (h *hub) release(table string, f *feed) {
	h.mu.Lock()
	f.refs--
	if f.refs > 0 {
		h.mu.Unlock()
		return
	}
	if h.feeds[table] == f {
		delete(h.feeds, table)
	}
	close(f.stop)
	id := f.id
	h.mu.Unlock()

	if id != "" {
		go h.kill(table, id)
	}
}

func (h *hub) kill(table, id string) {
	if err := h.be.Kill(h.ctx, id); err != nil {
		h.log.Warn("kill live query", "table", table, "id", id, "error", err)
		return
	}
	h.log.Debug("live query killed", "table", table, "id", id)
}

// refresher runs fn on its own goroutine each time it is triggered.
// Triggers that arrive while fn runs collapse into one more run.
type refresher struct {
	kick chan struct{}
}

func newRefresher(ctx context.Context, fn func(ctx context.Context)) *refresher {
	r := &refresher{kick: make(chan struct{}, 1)}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.kick:
				fn(ctx)
			}
		}
	}()
	return r
}

func (r *refresher) trigger() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}
