package frequency

import "fmt"

// State is the sequencing state of a [Detector]: either waiting for the
// target at Index, or completed. The zero value is Waiting(0).
type State struct {
	index     int
	completed bool
}

// Waiting returns the state that expects the target at index i next.
func Waiting(i int) State { return State{index: i} }

// Completed is the state reached once every target has been observed.
var Completed = State{completed: true}

// Index returns the index of the next expected target. For Completed it is
// meaningless and returns -1.
func (s State) Index() int {
	if s.completed {
		return -1
	}
	return s.index
}

// IsCompleted reports whether s is Completed.
func (s State) IsCompleted() bool { return s.completed }

func (s State) String() string {
	if s.completed {
		return "completed"
	}
	return fmt.Sprintf("waiting(%d)", s.index)
}

// advance moves past the expected target. Reaching n completes the sequence.
func (s State) advance(n int) State {
	if s.completed {
		return s
	}
	if s.index+1 >= n {
		return Completed
	}
	return Waiting(s.index + 1)
}

// timeout abandons a partial sequence.
func (s State) timeout() State {
	if s.completed || s.index == 0 {
		return s
	}
	return Waiting(0)
}

// reset returns to the initial state.
func (State) reset() State { return Waiting(0) }
