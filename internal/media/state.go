package media

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of one asset group (the image set or the
// brand logo) within a single mutation.
type State int

const (
	Pending State = iota
	Uploading
	Committed
	RollingBack
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Uploading:
		return "uploading"
	case Committed:
		return "committed"
	case RollingBack:
		return "rolling_back"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Committed || s == Failed
}

// ErrInvalidTransition is returned by State.To for a transition the
// lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid asset state transition")

var transitions = map[State][]State{
	Pending:     {Uploading},
	Uploading:   {Committed, RollingBack},
	RollingBack: {Failed},
}

// To returns next when the lifecycle allows moving from s to next.
func (s State) To(next State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
}
