package filewatch

import "time"

// Event is the immutable payload delivered to observers. Two events are
// equal if their Path, Time, and Diff all match.
type Event struct {
	Path string
	Time time.Time
	Diff []string
}

// Equal reports whether e and other carry the same path, timestamp, and
// diff content.
func (e Event) Equal(other Event) bool {
	if e.Path != other.Path || !e.Time.Equal(other.Time) {
		return false
	}
	if len(e.Diff) != len(other.Diff) {
		return false
	}
	for i := range e.Diff {
		if e.Diff[i] != other.Diff[i] {
			return false
		}
	}
	return true
}
