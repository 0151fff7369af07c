// Package monitor turns filesystem notifications for one directory into
// line-level change reports.
//
// A Source delivers WatchEvents; the Monitor drains them one at a time on a
// single goroutine and hands each to the Processor, which owns the snapshot
// cache and writes report lines through a Reporter.
package monitor

// Kind classifies a WatchEvent.
type Kind int

const (
	Create Kind = iota + 1
	Modify
	Delete
	// Overflow means the notification source dropped events.
	Overflow
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "CREATE"
	case Modify:
		return "MODIFY"
	case Delete:
		return "DELETE"
	case Overflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// WatchEvent is a single notification for an entry of the watched directory.
// Path is absolute; it is the watched directory itself for Overflow.
type WatchEvent struct {
	Kind Kind
	Path string
}
