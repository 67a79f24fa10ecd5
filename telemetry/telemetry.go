// Package telemetry records per-turn usage, derives cost, and schedules
// background session reviews.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/lumen-mentor/lumen/config"
	"github.com/lumen-mentor/lumen/llm"
	"github.com/lumen-mentor/lumen/logging"
	"github.com/lumen-mentor/lumen/session"
)

// Recorder accumulates one turn's telemetry. A turn may involve several
// model round-trips; usage from each is summed. Flush persists exactly once,
// whether the turn completed or aborted.
type Recorder struct {
	rate    config.ModelRate
	start   time.Time
	usage   llm.Usage
	domains map[string]struct{}
	flushed bool
}

// NewRecorder starts the clock for one turn using the model's rates.
func NewRecorder(rate config.ModelRate) *Recorder {
	return &Recorder{
		rate:    rate,
		start:   time.Now(),
		domains: make(map[string]struct{}),
	}
}

// Add accumulates usage from one round-trip.
func (r *Recorder) Add(u llm.Usage) {
	r.usage.PromptTokens += u.PromptTokens
	r.usage.CompletionTokens += u.CompletionTokens
}

// Touch notes that a growth domain was involved in the turn.
func (r *Recorder) Touch(domain string) {
	if domain != "" {
		r.domains[domain] = struct{}{}
	}
}

// Snapshot derives the turn telemetry without finalizing the recorder.
func (r *Recorder) Snapshot() session.Telemetry {
	domains := make([]string, 0, len(r.domains))
	for d := range r.domains {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return session.Telemetry{
		PromptTokens:     r.usage.PromptTokens,
		CompletionTokens: r.usage.CompletionTokens,
		CostUSD:          r.cost(),
		Elapsed:          time.Since(r.start),
		Domains:          domains,
	}
}

// Flush finalizes the turn and hands its telemetry to sink. Only the first
// call has effect; a recorder flushed on the success path will not flush
// again from a deferred abort handler, and vice versa.
func (r *Recorder) Flush(sink func(session.Telemetry)) {
	if r.flushed {
		return
	}
	r.flushed = true
	tel := r.Snapshot()
	logging.For("telemetry").Infow("turn finished",
		"prompt_tokens", tel.PromptTokens,
		"completion_tokens", tel.CompletionTokens,
		"cost_usd", tel.CostUSD,
		"elapsed", tel.Elapsed,
		"domains", tel.Domains,
	)
	if sink != nil {
		sink(tel)
	}
}

func (r *Recorder) cost() float64 {
	const million = 1_000_000
	in := float64(r.usage.PromptTokens) / million * r.rate.InputUSD
	out := float64(r.usage.CompletionTokens) / million * r.rate.OutputUSD
	return in + out
}

// ReviewSink persists a finished review.
type ReviewSink interface {
	InsertReview(sessionID, summary string) error
}

// Reviewer runs session reviews off the turn's critical path. Requests are
// queued on a buffered channel and handled by a single worker; when the
// queue is full the request is dropped with a warning rather than blocking
// the turn.
type Reviewer struct {
	sink    ReviewSink
	queue   chan reviewRequest
	done    chan struct{}
	closing sync.Once
}

type reviewRequest struct {
	sessionID string
	summary   string
}

// NewReviewer starts the worker goroutine.
func NewReviewer(sink ReviewSink, depth int) *Reviewer {
	if depth <= 0 {
		depth = 8
	}
	r := &Reviewer{
		sink:  sink,
		queue: make(chan reviewRequest, depth),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Enqueue schedules a review without blocking. Returns false if the queue
// is full and the request was dropped.
func (r *Reviewer) Enqueue(sessionID, summary string) bool {
	select {
	case r.queue <- reviewRequest{sessionID: sessionID, summary: summary}:
		return true
	default:
		logging.For("telemetry").Warnw("review queue full, dropping request", "session", sessionID)
		return false
	}
}

// Close drains pending reviews and stops the worker.
func (r *Reviewer) Close() {
	r.closing.Do(func() {
		close(r.queue)
		<-r.done
	})
}

func (r *Reviewer) run() {
	defer close(r.done)
	log := logging.For("telemetry")
	for req := range r.queue {
		if err := r.sink.InsertReview(req.sessionID, req.summary); err != nil {
			log.Errorw("failed to persist review", "session", req.sessionID, "error", err)
			continue
		}
		log.Debugw("review persisted", "session", req.sessionID)
	}
}
