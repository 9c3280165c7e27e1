package filewatch

// Observer accepts events for a single registered file. OnEvent is
// called synchronously from the notification loop and is expected to
// return promptly; anything it panics with is caught, logged, and
// swallowed so a misbehaving observer cannot take down drain processing
// for other files.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }
