// Package progress carries write notifications from segment workers to a single
// consumer that renders them.
package progress

// Event reports that Length bytes were written, the write ending at Offset.
type Event struct {
	Offset int64
	Length int64
	// Checksum is reserved for a per-segment digest. It is never populated and must
	// not be treated as validated data.
	Checksum string
}

// Reporter consumes the events of one download. Listen blocks until events is closed,
// which happens once every worker has returned.
type Reporter interface {
	Listen(total int64, events <-chan Event)
}

var (
	_ Reporter = &Bar{}
	_ Reporter = Discard{}
	_ Reporter = &Recorder{}
)

// Discard drains events without rendering anything.
type Discard struct{}

func (Discard) Listen(_ int64, events <-chan Event) {
	for range events {
	}
}
