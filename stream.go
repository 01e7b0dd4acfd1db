package agent

// AgentStream is an iterator over events emitted during an agent run.
// Usage:
//
//	stream := a.Run(ctx, "task")
//	for stream.Next() {
//	    event := stream.Current()
//	    // handle event
//	}
//	if res := stream.Result(); res != nil && res.IsError() {
//	    // handle res.Err
//	}
//
// The stream must be drained; the run blocks while the buffer is full.
type AgentStream struct {
	events  chan Event
	current Event
	result  *ResultEvent
	done    bool
	session *Session
}

// newStream creates a new AgentStream with the given event channel and session.
func newStream(events chan Event, session *Session) *AgentStream {
	return &AgentStream{
		events:  events,
		session: session,
	}
}

// Next advances to the next event. Returns false when the stream is exhausted.
func (s *AgentStream) Next() bool {
	if s.done {
		return false
	}
	event, ok := <-s.events
	if !ok {
		s.done = true
		return false
	}
	s.current = event
	if r, ok := event.(*ResultEvent); ok {
		s.result = r
	}
	return true
}

// Current returns the most recent event returned by Next.
func (s *AgentStream) Current() Event {
	return s.current
}

// Result returns the ResultEvent once it has been read, or nil.
func (s *AgentStream) Result() *ResultEvent {
	return s.result
}

// Err returns the fatal error of the run, if the ResultEvent has been read
// and reports one.
func (s *AgentStream) Err() error {
	if s.result == nil {
		return nil
	}
	return s.result.Err
}

// Wait drains the stream and returns the ResultEvent.
func (s *AgentStream) Wait() *ResultEvent {
	for s.Next() {
	}
	return s.result
}

// Session returns the session associated with this stream.
// The conversation is complete once the stream is exhausted.
func (s *AgentStream) Session() *Session {
	return s.session
}
