package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"select-explain-llm/src/llm"
)

type fakeClient struct {
	chunks    []string
	streamErr error
	questions []string
}

func (f *fakeClient) StreamExplanation(ctx context.Context, text string, emit llm.EmitFunc) error {
	for _, c := range f.chunks {
		emit(c)
	}
	return f.streamErr
}

func (f *fakeClient) GenerateFollowUpQuestions(ctx context.Context, original, explanation string) []string {
	return f.questions
}

type captureTarget struct {
	success []string
	failure []error
}

func (t *captureTarget) OnSuccess(text string) error {
	t.success = append(t.success, text)
	return nil
}

func (t *captureTarget) OnFailure(err error) error {
	t.failure = append(t.failure, err)
	return nil
}

func extractOf(text string) ExtractFunc {
	return func() (string, error) { return text, nil }
}

func TestExecuteDeliversAccumulatedText(t *testing.T) {
	target := &captureTarget{}
	res, err := Execute(context.Background(), Options{
		Extract: extractOf("所选文本"),
		Client:  &fakeClient{chunks: []string{"解", "释"}},
		Target:  target,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Text != "解释" {
		t.Errorf("text = %q", res.Text)
	}
	if len(target.success) != 1 || target.success[0] != "解释" {
		t.Errorf("target.success = %v", target.success)
	}
}

func TestExecuteEmptySelection(t *testing.T) {
	target := &captureTarget{}
	_, err := Execute(context.Background(), Options{
		Extract: extractOf(""),
		Client:  &fakeClient{},
		Target:  target,
	})
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("err = %v, want ErrEmptySelection", err)
	}
	if len(target.failure) != 1 {
		t.Errorf("failure not delivered to target")
	}
}

func TestExecuteExtractError(t *testing.T) {
	boom := errors.New("clipboard unavailable")
	target := &captureTarget{}
	_, err := Execute(context.Background(), Options{
		Extract: func() (string, error) { return "", boom },
		Client:  &fakeClient{},
		Target:  target,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestExecuteStreamFailureKeepsPartialText(t *testing.T) {
	target := &captureTarget{}
	res, err := Execute(context.Background(), Options{
		Extract: extractOf("text"),
		Client: &fakeClient{
			chunks:    []string{"部分"},
			streamErr: &llm.StreamError{Kind: llm.KindTimeout},
		},
		Target: target,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.Text != "部分" {
		t.Errorf("partial text = %q", res.Text)
	}
	if len(target.success) != 0 || len(target.failure) != 1 {
		t.Errorf("target calls: success=%d failure=%d", len(target.success), len(target.failure))
	}
}

func TestExecuteFollowUps(t *testing.T) {
	target := &captureTarget{}
	res, err := Execute(context.Background(), Options{
		Extract:   extractOf("text"),
		Client:    &fakeClient{chunks: []string{"ok"}, questions: []string{"问题A"}},
		Target:    target,
		FollowUps: true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Questions) != 1 || res.Questions[0] != "问题A" {
		t.Errorf("questions = %v", res.Questions)
	}
}

func TestStdoutTarget(t *testing.T) {
	var sb strings.Builder
	if err := (StdoutTarget{Writer: &sb}).OnSuccess("输出"); err != nil {
		t.Fatalf("OnSuccess: %v", err)
	}
	if sb.String() != "输出" {
		t.Errorf("wrote %q", sb.String())
	}
}
