package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/attachments"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store"
)

// DefaultQueueSize bounds the number of records waiting to be written.
const DefaultQueueSize = 256

const recordTimeout = 5 * time.Second

type job struct {
	identifier string
	msg        proto.Message
}

// Recorder persists broadcast messages off the delivery path. Records that do
// not fit in the queue are dropped and logged.
type Recorder struct {
	store store.MessageStore
	files *attachments.Store
	log   *zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}
}

// NewRecorder creates a recorder. files may be nil to skip attachment copies.
func NewRecorder(st store.MessageStore, files *attachments.Store, queueSize int, logger *zerolog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{
		store: st,
		files: files,
		log:   logger,
		queue: make(chan job, queueSize),
		done:  make(chan struct{}),
	}
}

// Record enqueues msg. It never blocks.
func (r *Recorder) Record(identifier string, msg proto.Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.Error().Str("identifier", identifier).Msg("recorder closed, record dropped")
		return
	}
	select {
	case r.queue <- job{identifier: identifier, msg: msg}:
	default:
		r.log.Error().Str("identifier", identifier).Str("kind", msg.Kind.String()).Msg("persist queue full, record dropped")
	}
}

// Run writes queued records until Close is called and the queue is drained.
// Cancelling ctx does not abort the drain; each write has its own timeout.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	base := context.WithoutCancel(ctx)
	for j := range r.queue {
		r.persist(base, j)
	}
}

// Close stops accepting records and waits for Run to drain the queue.
// Run must have been started.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) persist(ctx context.Context, j job) {
	logger := r.log.With().Str("identifier", j.identifier).Str("kind", j.msg.Kind.String()).Logger()

	if r.store != nil {
		rec, err := store.NewRecord(j.identifier, j.msg)
		if err != nil {
			logger.Error().Err(err).Msg("build record")
		} else {
			ctx, cancel := context.WithTimeout(ctx, recordTimeout)
			err = r.store.SaveMessage(ctx, rec)
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("save message")
			}
		}
	}

	if r.files == nil {
		return
	}
	var (
		path string
		err  error
	)
	switch j.msg.Kind {
	case proto.KindFile:
		path, err = r.files.WriteFile(j.msg.Name, j.msg.Data)
	case proto.KindImage:
		path, err = r.files.WriteImage(j.msg.Data)
	default:
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("store attachment")
		return
	}
	logger.Debug().Str("path", path).Msg("attachment stored")
}
