package analytics

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/utils"
)

// Recorder accepts events on a bounded channel and writes them to a JSONL
// sink from a single worker goroutine. When the channel is full the event is
// dropped and counted; the request path never waits.
type Recorder struct {
	events  chan RequestEvent
	sink    *os.File
	stats   *Stats
	metrics *Metrics

	dropped   int64
	droppedMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// NewRecorder creates a recorder. logPath is the JSONL sink; empty disables
// file output (events still feed stats and metrics).
func NewRecorder(logPath string, queueSize int, stats *Stats, metrics *Metrics) (*Recorder, error) {
	var sink *os.File
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		sink = f
	}

	r := &Recorder{
		events:  make(chan RequestEvent, queueSize),
		sink:    sink,
		stats:   stats,
		metrics: metrics,
		done:    make(chan struct{}),
	}
	go r.worker()
	return r, nil
}

// Record enqueues an event. Never blocks: a full queue drops the event.
func (r *Recorder) Record(event RequestEvent) {
	select {
	case r.events <- event:
	default:
		r.droppedMu.Lock()
		r.dropped++
		n := r.dropped
		r.droppedMu.Unlock()
		if n%100 == 1 {
			log.Warn().Int64("dropped_total", n).Msg("analytics: queue full, dropping events")
		}
	}
}

// Dropped reports how many events were discarded due to a full queue.
func (r *Recorder) Dropped() int64 {
	r.droppedMu.Lock()
	defer r.droppedMu.Unlock()
	return r.dropped
}

// Close stops intake, drains queued events, and closes the sink.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() {
		close(r.events)
		<-r.done
		if r.sink != nil {
			_ = r.sink.Close()
		}
	})
}

func (r *Recorder) worker() {
	defer close(r.done)
	for event := range r.events {
		r.process(event)
	}
}

func (r *Recorder) process(event RequestEvent) {
	if r.stats != nil {
		r.stats.Observe(event)
	}
	if r.metrics != nil {
		r.metrics.Observe(event)
	}
	if r.sink == nil {
		return
	}

	line, err := utils.MarshalNoEscape(event)
	if err != nil {
		log.Error().Err(err).Str("request_id", event.RequestID).Msg("analytics: marshal event")
		return
	}
	if _, err := r.sink.Write(append(line, '\n')); err != nil {
		log.Error().Err(err).Msg("analytics: write event")
	}
}
