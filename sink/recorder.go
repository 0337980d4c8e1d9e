// Package sink provides concrete cobs.Sink implementations: a plain
// recorder for tests and CLI packet dumps, and an IP/UDP/RTP demux
// that routes decoded OPV packets to the right place.
package sink

import "github.com/openresearch/opv-cobs-deframer/cobs"

// Recorder is a cobs.Sink that copies every accepted packet into an
// in-memory slice. It is the test-harness sink named in spec.md's
// component table, and doubles as the backing store for the CLI's
// --debug hex dump.
type Recorder struct {
	Packets [][]byte
}

var _ cobs.Sink = (*Recorder)(nil)

// Accept implements cobs.Sink.
func (r *Recorder) Accept(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	r.Packets = append(r.Packets, cp)
}

// Last returns the most recently accepted packet, or nil if none has
// been accepted yet.
func (r *Recorder) Last() []byte {
	if len(r.Packets) == 0 {
		return nil
	}
	return r.Packets[len(r.Packets)-1]
}

// Reset discards all recorded packets.
func (r *Recorder) Reset() {
	r.Packets = nil
}
