package relay

// Event is one upstream message: an opaque payload tagged with the pub/sub
// channel it arrived on. The payload is forwarded byte-for-byte and is never
// parsed, mutated, or retained past the dispatch pass.
type Event struct {
	Channel string
	Payload []byte
}
