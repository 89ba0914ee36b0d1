package pipeline

import "fmt"

// State is a step of the generation session state machine.
type State string

// Session states
const (
	StateInit          State = "INIT"
	StateScraping      State = "SCRAPING"
	StateLinkSelection State = "LINK_SELECTION"
	StateAggregating   State = "AGGREGATING"
	StateGenerating    State = "GENERATING"
	StateStreaming     State = "STREAMING"
	StateComplete      State = "COMPLETE"
	StateFailed        State = "FAILED"
	StateCancelled     State = "CANCELLED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Signal drives a state transition.
type Signal string

// Session signals
const (
	SignalStart             Signal = "start"
	SignalHomepageFetched   Signal = "homepage_fetched"
	SignalLinksResolved     Signal = "links_resolved"
	SignalContentAggregated Signal = "content_aggregated"
	SignalFirstChunk        Signal = "first_chunk"
	SignalStreamEnded       Signal = "stream_ended"
	SignalFail              Signal = "fail"
	SignalCancel            Signal = "cancel"
)

var forward = map[State]map[Signal]State{
	StateInit:          {SignalStart: StateScraping},
	StateScraping:      {SignalHomepageFetched: StateLinkSelection},
	StateLinkSelection: {SignalLinksResolved: StateAggregating},
	StateAggregating:   {SignalContentAggregated: StateGenerating},
	StateGenerating:    {SignalFirstChunk: StateStreaming},
	StateStreaming:     {SignalStreamEnded: StateComplete},
}

// InvalidTransitionError is returned for a signal the state does not accept.
type InvalidTransitionError struct {
	From   State
	Signal Signal
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s --%s-->", e.From, e.Signal)
}

// Transition returns the state reached from s on sig. Terminal states
// accept nothing; fail and cancel are accepted by every other state.
func Transition(s State, sig Signal) (State, error) {
	if s.Terminal() {
		return s, &InvalidTransitionError{From: s, Signal: sig}
	}
	switch sig {
	case SignalFail:
		return StateFailed, nil
	case SignalCancel:
		return StateCancelled, nil
	}
	if next, ok := forward[s][sig]; ok {
		return next, nil
	}
	return s, &InvalidTransitionError{From: s, Signal: sig}
}
