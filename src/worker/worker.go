package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"select-explain-llm/src/llm"
	"select-explain-llm/src/messages"
)

const (
	// hardDeadline bounds one explanation end to end, including follow-up
	// generation. The per-call HTTP timeout is shorter; this is the backstop.
	hardDeadline = 60 * time.Second
	// graceWait is how long a superseded request gets to notice cancellation
	// before the new one starts.
	graceWait = 5 * time.Second
)

// Runner executes at most one explanation at a time. Starting a new request
// cancels the previous one and waits briefly for it to exit. Results are
// posted to the events channel as messages tagged with the request ID; the
// event loop drops messages whose ID is no longer current.
type Runner struct {
	client          llm.Client
	events          chan<- messages.Message
	followUpsEnable bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(client llm.Client, events chan<- messages.Message, followUps bool) *Runner {
	return &Runner{client: client, events: events, followUpsEnable: followUps}
}

// Explain starts an asynchronous explanation of text and returns its request
// ID. Any in-flight request is cancelled first.
func (r *Runner) Explain(text string) string {
	r.mu.Lock()
	r.stopLocked()

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), hardDeadline)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		r.run(ctx, id, text)
	}()

	log.Printf("Worker: explanation request %s started, input %d chars", id, len(text))
	return id
}

func (r *Runner) run(ctx context.Context, id, text string) {
	var full []byte
	emit := func(chunk string) {
		full = append(full, chunk...)
		r.post(ctx, messages.StreamChunk{RequestID: id, Chunk: chunk})
	}

	err := r.client.StreamExplanation(ctx, text, emit)
	if err != nil {
		var se *llm.StreamError
		if errors.As(err, &se) && se.Kind == llm.KindCanceled {
			log.Printf("Worker: request %s superseded", id)
			return
		}
		kind := llm.KindUnknown
		if errors.As(err, &se) {
			kind = se.Kind
		}
		log.Printf("Worker: request %s failed: %v", id, err)
		r.post(ctx, messages.StreamFailed{RequestID: id, Kind: kind.String(), Err: err})
		return
	}

	r.post(ctx, messages.StreamCompleted{RequestID: id, FullText: string(full)})

	if !r.followUpsEnable {
		return
	}
	questions := r.client.GenerateFollowUpQuestions(ctx, text, string(full))
	if len(questions) == 0 {
		return
	}
	r.post(ctx, messages.FollowUpsReady{RequestID: id, Questions: questions})
}

// post delivers a message unless the request was cancelled while the channel
// was full. The fast path matters: after the hard deadline fires ctx.Done is
// ready, and the terminal Timeout message must still go out when the channel
// has room.
func (r *Runner) post(ctx context.Context, msg messages.Message) {
	select {
	case r.events <- msg:
		return
	default:
	}
	select {
	case r.events <- msg:
	case <-ctx.Done():
	}
}

// CancelActive cancels the in-flight request, if any.
func (r *Runner) CancelActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Close cancels the in-flight request and waits for it to exit.
func (r *Runner) Close() {
	r.CancelActive()
}

// stopLocked cancels and waits up to graceWait. Caller holds mu.
func (r *Runner) stopLocked() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(graceWait):
		log.Printf("Worker: previous request did not exit within %s, proceeding", graceWait)
	}
	r.cancel = nil
	r.done = nil
}
