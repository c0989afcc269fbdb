package overlay

// Sink receives the lifecycle of one explanation as it renders. All methods
// are invoked from the worker goroutine that owns the request; implementations
// must be safe to call in sequence but need not be safe for concurrent use.
// A GUI front-end plugs in here; this project ships a console renderer.
type Sink interface {
	// ShowAt prepares the surface near the given screen position.
	ShowAt(x, y int)
	// AppendChunk appends one streamed fragment.
	AppendChunk(chunk string)
	// Completed marks the stream finished; fullText is the accumulated result.
	Completed(fullText string)
	// Failed marks the stream terminated. Any user-facing message has already
	// been delivered through AppendChunk.
	Failed(kind string)
	// SetFollowUps delivers suggested follow-up questions, possibly after
	// Completed. Never called with an empty slice.
	SetFollowUps(questions []string)
	// Hide dismisses the surface.
	Hide()
}
