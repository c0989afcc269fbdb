package messages

// Message is the base interface for events flowing between the selection
// pipeline and the UI-owning goroutine.
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeSelectionDetected   = "SelectionDetected"
	TypeClickDetected       = "ClickDetected"
	TypeStreamChunk         = "StreamChunk"
	TypeStreamCompleted     = "StreamCompleted"
	TypeStreamFailed        = "StreamFailed"
	TypeFollowUpsReady      = "FollowUpsReady"
	TypeExplainOnceRequest  = "ExplainOnceRequest"
	TypeExplainOnceComplete = "ExplainOnceComplete"
	TypeShutdown            = "Shutdown"
)

// SelectionDetected - a drag-release gesture was interpreted as a text
// selection; X,Y is the release position in screen coordinates.
type SelectionDetected struct {
	X int
	Y int
}

func (m SelectionDetected) Type() string { return TypeSelectionDetected }

// ClickDetected - any mouse click; the UI uses it to close the overlay when
// the click lands outside it.
type ClickDetected struct {
	X int
	Y int
}

func (m ClickDetected) Type() string { return TypeClickDetected }

// StreamChunk - one explanation fragment, delivered in arrival order.
type StreamChunk struct {
	RequestID string
	Chunk     string
}

func (m StreamChunk) Type() string { return TypeStreamChunk }

// StreamCompleted - the explanation stream finished; FullText is the
// concatenation of every chunk delivered for RequestID.
type StreamCompleted struct {
	RequestID string
	FullText  string
}

func (m StreamCompleted) Type() string { return TypeStreamCompleted }

// StreamFailed - the explanation stream terminated with a classified
// failure. The human-readable message has already been delivered as chunks.
type StreamFailed struct {
	RequestID string
	Kind      string
	Err       error
}

func (m StreamFailed) Type() string { return TypeStreamFailed }

// FollowUpsReady - follow-up question generation finished. Questions may be
// empty; follow-ups are an enhancement and their failure is silent.
type FollowUpsReady struct {
	RequestID string
	Questions []string
}

func (m FollowUpsReady) Type() string { return TypeFollowUpsReady }

// ExplainOnceRequest - a delegating process asked the resident to run one
// extract-and-explain pass.
type ExplainOnceRequest struct {
	OutputToStdout bool
}

func (m ExplainOnceRequest) Type() string { return TypeExplainOnceRequest }

// ExplainOnceComplete - result of a delegated explain-once pass.
type ExplainOnceComplete struct {
	Text string
	Err  error
}

func (m ExplainOnceComplete) Type() string { return TypeExplainOnceComplete }

// Shutdown - stop the event loop and all workers.
type Shutdown struct{}

func (m Shutdown) Type() string { return TypeShutdown }
