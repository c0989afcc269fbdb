// Package eventloop is the single-threaded coordinator of the resident
// process. Mouse events, worker results and run-once client requests all
// arrive on channels and are handled from one goroutine, so overlay state
// needs no locking.
package eventloop

import (
	"context"
	"errors"
	"log"
	"time"

	"select-explain-llm/src/llm"
	"select-explain-llm/src/messages"
	"select-explain-llm/src/overlay"
	"select-explain-llm/src/session"
	"select-explain-llm/src/singleinstance"
	"select-explain-llm/src/worker"
)

type Loop struct {
	client  llm.Client
	sink    overlay.Sink
	extract session.ExtractFunc
	runner  *worker.Runner
	srv     singleinstance.Server

	events   chan messages.Message
	deadline time.Duration

	// Loop-goroutine state.
	busy           bool
	delegated      singleinstance.Conn
	activeID       string
	overlayVisible bool
}

// New wires a loop. followUps controls whether completed explanations are
// followed by suggested questions.
func New(client llm.Client, sink overlay.Sink, extract session.ExtractFunc, deadline time.Duration, followUps bool) *Loop {
	l := &Loop{
		client:   client,
		sink:     sink,
		extract:  extract,
		events:   make(chan messages.Message, 64),
		deadline: deadline,
	}
	l.runner = worker.NewRunner(client, l.events, followUps)
	return l
}

// Post delivers an input event to the loop without blocking. Mouse events
// are droppable; losing one under load is harmless.
func (l *Loop) Post(msg messages.Message) {
	select {
	case l.events <- msg:
	default:
		log.Printf("Event loop: queue full, dropping %s", msg.Type())
	}
}

// Run starts the singleinstance server and processes events until ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.srv = singleinstance.NewServer()
	if err := l.srv.Start(ctx); err != nil {
		return err
	}
	if p := l.srv.Port(); p > 0 {
		log.Printf("Resident listening on 127.0.0.1:%d", p)
	}
	defer l.srv.Close()
	defer l.runner.Close()

	// Accept loop in background so result handling never blocks on Accept.
	reqCh := make(chan singleinstance.Conn, 4)
	go func() {
		for {
			conn, err := l.srv.Next(ctx)
			if err != nil {
				close(reqCh)
				return
			}
			reqCh <- conn
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			l.handleConn(ctx, conn)
		case msg := <-l.events:
			if done := l.handleMessage(msg); done {
				return nil
			}
		}
	}
}

func (l *Loop) handleMessage(msg messages.Message) bool {
	switch m := msg.(type) {
	case messages.SelectionDetected:
		l.handleSelection(m.X, m.Y)
	case messages.ClickDetected:
		if l.overlayVisible && !l.busy {
			l.sink.Hide()
			l.overlayVisible = false
		}
	case messages.StreamChunk:
		if m.RequestID == l.activeID {
			l.sink.AppendChunk(m.Chunk)
		}
	case messages.StreamCompleted:
		if m.RequestID == l.activeID {
			l.sink.Completed(m.FullText)
			l.busy = false
		}
	case messages.StreamFailed:
		if m.RequestID == l.activeID {
			l.sink.Failed(m.Kind)
			l.busy = false
		}
	case messages.FollowUpsReady:
		if m.RequestID == l.activeID {
			l.sink.SetFollowUps(m.Questions)
		}
	case messages.ExplainOnceComplete:
		l.finishDelegated(m)
	case messages.Shutdown:
		return true
	default:
		log.Printf("Event loop: unhandled message %s", msg.Type())
	}
	return false
}

func (l *Loop) handleSelection(x, y int) {
	if l.delegated != nil {
		log.Printf("Event loop: delegated request in flight, ignoring selection")
		return
	}

	text, err := l.extract()
	if err != nil {
		log.Printf("Event loop: extraction failed: %v", err)
		return
	}
	if text == "" {
		log.Printf("Event loop: empty selection, ignoring")
		return
	}

	l.sink.ShowAt(x, y)
	l.overlayVisible = true
	// A new selection supersedes any in-flight explanation.
	l.activeID = l.runner.Explain(text)
	l.busy = true
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	if l.busy || l.delegated != nil {
		log.Printf("Event loop: busy, rejecting run-once request")
		_ = conn.RespondError("Busy, please retry")
		_ = conn.Close()
		return
	}

	outputToStdout := conn.Request().OutputToStdout
	l.delegated = conn
	l.busy = true

	opts := session.Options{
		Deadline:  l.deadline,
		Extract:   l.extract,
		Client:    l.client,
		Target:    session.DelegatedTarget{Conn: conn, OutputToStdout: outputToStdout},
		FollowUps: false,
	}
	if !outputToStdout {
		opts.Sink = l.sink
		l.sink.ShowAt(0, 0)
		l.overlayVisible = true
	}

	go func() {
		res, err := session.Execute(ctx, opts)
		select {
		case l.events <- messages.ExplainOnceComplete{Text: res.Text, Err: err}:
		case <-ctx.Done():
			_ = conn.Close()
		}
	}()
}

func (l *Loop) finishDelegated(m messages.ExplainOnceComplete) {
	if l.delegated == nil {
		return
	}
	if m.Err != nil && !errors.Is(m.Err, session.ErrEmptySelection) {
		log.Printf("Event loop: delegated request failed: %v", m.Err)
	}
	_ = l.delegated.Close()
	l.delegated = nil
	l.busy = false
}
