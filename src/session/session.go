package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"select-explain-llm/src/llm"
	"select-explain-llm/src/overlay"
	"select-explain-llm/src/singleinstance"
)

// ErrEmptySelection means the clipboard round-trip found no selected text.
var ErrEmptySelection = errors.New("no text selected")

// ExtractFunc obtains the currently selected text. Empty string means no
// selection.
type ExtractFunc func() (string, error)

// ResultTarget receives the terminal outcome of one explain session.
type ResultTarget interface {
	OnSuccess(text string) error
	OnFailure(err error) error
}

type Options struct {
	// Deadline bounds the whole session, extraction through follow-ups.
	// Defaults to 60 seconds.
	Deadline time.Duration
	// Extract is required.
	Extract ExtractFunc
	// Client is required.
	Client llm.Client
	// Target is required.
	Target ResultTarget
	// Sink, when set, receives chunks and follow-ups as they arrive.
	Sink overlay.Sink
	// FollowUps enables follow-up question generation after completion.
	FollowUps bool
}

type Result struct {
	Text      string
	Questions []string
}

// Execute runs one synchronous explain session: extract the selection,
// stream the explanation, then optionally fetch follow-up questions. The
// accumulated text is delivered to the target; a follow-up failure never
// fails the session.
func Execute(ctx context.Context, opts Options) (Result, error) {
	if opts.Extract == nil {
		return Result{}, errors.New("Extract is required")
	}
	if opts.Client == nil {
		return Result{}, errors.New("Client is required")
	}
	if opts.Target == nil {
		return Result{}, errors.New("Target is required")
	}

	text, err := opts.Extract()
	if err != nil {
		_ = opts.Target.OnFailure(err)
		return Result{}, err
	}
	if text == "" {
		_ = opts.Target.OnFailure(ErrEmptySelection)
		return Result{}, ErrEmptySelection
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var sb strings.Builder
	emit := func(chunk string) {
		sb.WriteString(chunk)
		if opts.Sink != nil {
			opts.Sink.AppendChunk(chunk)
		}
	}

	if err := opts.Client.StreamExplanation(jobCtx, text, emit); err != nil {
		var se *llm.StreamError
		if errors.As(err, &se) && opts.Sink != nil {
			opts.Sink.Failed(se.Kind.String())
		}
		_ = opts.Target.OnFailure(err)
		return Result{Text: sb.String()}, err
	}

	result := Result{Text: sb.String()}
	if opts.Sink != nil {
		opts.Sink.Completed(result.Text)
	}

	if err := opts.Target.OnSuccess(result.Text); err != nil {
		_ = opts.Target.OnFailure(err)
		return result, err
	}

	if opts.FollowUps {
		result.Questions = opts.Client.GenerateFollowUpQuestions(jobCtx, text, result.Text)
		if len(result.Questions) > 0 && opts.Sink != nil {
			opts.Sink.SetFollowUps(result.Questions)
		}
	}

	return result, nil
}

// StdoutTarget prints the explanation to a writer.
type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(text string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprint(w, text)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// DelegatedTarget answers a run-once client over its connection. In stdout
// mode the explanation travels back over the wire; in overlay mode the
// resident has already rendered it and only an acknowledgement is sent.
type DelegatedTarget struct {
	Conn           singleinstance.Conn
	OutputToStdout bool
}

func (t DelegatedTarget) OnSuccess(text string) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	if t.OutputToStdout {
		return t.Conn.RespondSuccess(text)
	}
	return t.Conn.RespondSuccess("")
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	return t.Conn.RespondError(err.Error())
}
