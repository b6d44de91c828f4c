package producers

// DefaultInboxSize is the number of pending verbs a producer can queue before
// further commands are dropped.
const DefaultInboxSize = 16

// Inbox is a bounded, many-writer/one-reader queue of command verbs for one
// producer. Sends never block.
type Inbox struct {
	ch chan string
}

// NewInbox returns an inbox holding up to size pending verbs. A non-positive
// size selects DefaultInboxSize.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{ch: make(chan string, size)}
}

// Offer enqueues verb and reports whether it was accepted. A full inbox
// rejects the verb rather than blocking the caller.
func (in *Inbox) Offer(verb string) bool {
	select {
	case in.ch <- verb:
		return true
	default:
		return false
	}
}

// C returns the receive side of the inbox.
func (in *Inbox) C() <-chan string { return in.ch }

// Len returns the number of queued verbs.
func (in *Inbox) Len() int { return len(in.ch) }
