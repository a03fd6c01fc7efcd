package journal

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/internal/order"
	"github.com/wonny/tradedesk/pkg/logger"
)

const (
	defaultBuffer = 1024
	writeTimeout  = 5 * time.Second
)

// Store is where the recorder writes entries
type Store interface {
	SaveOrderEvent(ctx context.Context, e order.Event) error
	SaveTransaction(ctx context.Context, tx account.Transaction) error
}

// RecorderStats counts journal writes
type RecorderStats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

type entry struct {
	event *order.Event
	tx    *account.Transaction
}

// Recorder writes order events and transactions to a Store from one
// background goroutine so publishers never wait on the database.
// Entries arriving while the buffer is full are dropped and counted.
type Recorder struct {
	store  Store
	logger *logger.Logger
	queue  chan entry

	mu      sync.Mutex
	stats   RecorderStats
	stopped bool

	done chan struct{}
}

// NewRecorder creates a recorder with the given buffer size
func NewRecorder(store Store, buffer int, log *logger.Logger) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Recorder{
		store:  store,
		logger: log.WithComponent("journal"),
		queue:  make(chan entry, buffer),
		done:   make(chan struct{}),
	}
}

// Start runs the writer until Stop is called
func (r *Recorder) Start() {
	go r.run()
}

// Stop drains queued entries and waits for the writer to exit
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}

// OnOrderEvent queues an order event
func (r *Recorder) OnOrderEvent(e order.Event) {
	r.enqueue(entry{event: &e})
}

// OnTransaction queues a ledger entry
func (r *Recorder) OnTransaction(tx account.Transaction) {
	r.enqueue(entry{tx: &tx})
}

// Stats returns write counters
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Recorder) enqueue(e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		r.stats.Dropped++
		return
	}
	select {
	case r.queue <- e:
	default:
		r.stats.Dropped++
		r.logger.Warn("Journal buffer full, entry dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		var err error
		switch {
		case e.event != nil:
			err = r.store.SaveOrderEvent(ctx, *e.event)
		case e.tx != nil:
			err = r.store.SaveTransaction(ctx, *e.tx)
		}
		cancel()

		r.mu.Lock()
		if err != nil {
			r.stats.Failed++
		} else {
			r.stats.Written++
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.WithError(err).Error("Journal write failed")
		}
	}
}
