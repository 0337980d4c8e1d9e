// Package cobs implements the OPV byte-stream deframer: it recovers
// length-delimited IP packets from a Consistent Overhead Byte Stuffing
// (COBS) encoded stream arriving one radio frame at a time.
//
// Packet boundaries are independent of frame boundaries - a packet may
// begin and end within one frame, span several frames, or (for
// MTU-sized packets) span eight or nine. Deframer carries all of its
// decoding state between Push calls so the caller never has to worry
// about where a frame cuts a packet.
package cobs

import (
	"io"

	"github.com/charmbracelet/log"
)

// Numerology. These must match the OPV wire format; see Numerology.h
// in the original C++ receiver for the derivation of FramePayloadBytes.
const (
	IPMTU        = 1500 // largest accepted decoded packet, in bytes
	MinPacketLen = 20   // smallest accepted decoded packet (minimal IPv4 header)

	// FramePayloadBytes is the number of COBS stream bytes carried by one
	// radio frame. One voice packet - IP(20) + UDP(8) + RTP(12) + COBS
	// overhead(1) = 41, plus an Opus packet of 1 + 2*40 = 81 - takes 122
	// of them. The deframer treats this purely as an opaque per-call
	// length and makes no assumption about where in a frame a packet
	// boundary falls.
	FramePayloadBytes = 213

	cobsRunMax      = 254 // longest non-terminator run between code bytes
	cobsRunSentinel = 0xFF
)

// phase names the COBS parser's position within the byte stream.
type phase int

const (
	phaseAwaitingCode phase = iota // next byte is a code byte, or inter-packet filler zero
	phaseInRun                     // collecting a run whose code byte was < 0xFF
	phaseInLongRun                 // collecting a 254-byte run whose code byte was 0xFF
	phaseDiscarding                // packet exceeded IPMTU; dropping bytes until the next 0x00
)

// Sink is the destination for decoded packets. Accept is called
// synchronously from within Push, at most once per recovered packet.
// Implementations must copy p before returning if they need it beyond
// the call, and must not mutate it - the byte slice is on loan from
// the deframer's internal buffer and is reused as soon as Accept
// returns.
type Sink interface {
	Accept(p []byte)
}

// Stats counts how Push's silent-recovery paths fired. It exists for
// observability only - nothing in Deframer branches on these values.
type Stats struct {
	Delivered      uint64 // packets handed to the sink
	UnexpectedZero uint64 // 0x00 seen mid-run; partial packet discarded
	Oversize       uint64 // buffered length exceeded IPMTU; packet discarded
	Undersize      uint64 // finalized packet shorter than MinPacketLen
	NoSink         uint64 // packet completed with no sink registered
}

// Deframer is a stateful COBS decoder. The zero value is not usable;
// construct one with NewDeframer. A Deframer is not safe for
// concurrent use - Push is meant to be driven by a single reader
// goroutine pulling frames off the radio.
type Deframer struct {
	phase          phase
	buffer         [IPMTU + 3]byte // +3: headroom for an implicit zero plus a final literal byte before the MTU check fires
	filled         int
	remainingInRun int
	sink           Sink
	stats          Stats
	logger         *log.Logger
}

// NewDeframer returns a Deframer in freshly-reset state with no sink
// registered.
func NewDeframer() *Deframer {
	d := &Deframer{
		logger: log.NewWithOptions(io.Discard, log.Options{}),
	}
	d.Reset()
	return d
}

// SetLogger points diagnostic output (the UnexpectedZero / Oversize /
// NoSink log lines) at logger; nil discards them. The default Deframer discards them.
func (d *Deframer) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	d.logger = logger
}

// SetSink registers (or replaces) the packet destination. It does not
// otherwise touch decoder state.
func (d *Deframer) SetSink(sink Sink) {
	d.sink = sink
}

// Stats returns a snapshot of the recovery-path counters.
func (d *Deframer) Stats() Stats {
	return d.stats
}

// Reset returns all decoding state to its initial values. It does not
// touch the registered sink. Reset is idempotent: calling it twice in
// a row leaves the same state as calling it once.
func (d *Deframer) Reset() {
	d.phase = phaseAwaitingCode
	d.filled = 0
	d.remainingInRun = 0
}

// Push consumes frame in order as COBS-encoded stream bytes. It is
// synchronous: any Sink.Accept calls triggered by completed packets
// happen before Push returns. Push never fails - malformed input
// produces silent discards (see Stats), never an error return.
func (d *Deframer) Push(frame []byte) {
	for _, b := range frame {
		d.pushByte(b)
	}
}

func (d *Deframer) pushByte(b byte) {
	switch d.phase {
	case phaseAwaitingCode:
		d.awaitingCode(b)
	case phaseInRun:
		d.inRun(b, true)
	case phaseInLongRun:
		d.inRun(b, false)
	case phaseDiscarding:
		if b == 0x00 {
			d.Reset()
		}
	}
}

func (d *Deframer) awaitingCode(b byte) {
	switch {
	case b == 0x00:
		if d.filled > 0 {
			d.finalize()
		}
		// Otherwise this is inter-packet filler between packets; ignore.
	case b == 0x01:
		// Empty run: the code byte itself represents a zero, with no
		// literal bytes following, and the next byte is again a code byte.
		d.appendByte(0)
	case b == cobsRunSentinel:
		d.remainingInRun = cobsRunMax
		d.phase = phaseInLongRun
	default: // 0x02 ..= 0xFE
		d.remainingInRun = int(b) - 1
		d.phase = phaseInRun
	}
}

// inRun handles one byte while collecting a run of literal data bytes.
// impliesZero is true for runs started by a code byte < 0xFF: on
// exhaustion they emit an implicit zero before returning to
// phaseAwaitingCode. Runs started by the 0xFF sentinel do not.
func (d *Deframer) inRun(b byte, impliesZero bool) {
	if b == 0x00 {
		d.unexpectedZero()
		return
	}

	d.appendByte(b)
	if d.phase == phaseDiscarding {
		// appendByte just tipped us over IPMTU; the rest of this run
		// (and anything after it) is dropped until the next 0x00.
		return
	}

	d.remainingInRun--
	if d.remainingInRun != 0 {
		return
	}

	if impliesZero {
		d.appendByte(0)
		if d.phase == phaseDiscarding {
			return
		}
	}
	d.phase = phaseAwaitingCode
}

// appendByte writes b into the decode buffer and, if that pushed
// filled past IPMTU+1, transitions to Discarding. The +1 slack (rather
// than IPMTU) lets a packet exactly at the MTU survive the implicit
// zero that gets appended-then-stripped at finalize.
func (d *Deframer) appendByte(b byte) {
	d.buffer[d.filled] = b
	d.filled++

	if d.filled > IPMTU+1 && d.phase != phaseDiscarding {
		d.phase = phaseDiscarding
		d.stats.Oversize++
		d.logger.Warn("oversize packet, discarding until next delimiter", "filled", d.filled)
	}
}

// unexpectedZero handles a 0x00 arriving mid-run: the in-progress
// packet is corrupt. No frame re-sync is required because 0x00 is
// itself the packet delimiter - the next byte is decoded afresh.
func (d *Deframer) unexpectedZero() {
	d.stats.UnexpectedZero++
	d.logger.Warn("unexpected delimiter mid-run, discarding partial packet", "filled", d.filled)
	d.Reset()
}

// finalize runs when a 0x00 arrives in phaseAwaitingCode with
// filled > 0: it strips the virtual trailing zero, checks the length
// bound, and (if a sink is registered) delivers the packet.
func (d *Deframer) finalize() {
	if d.filled > 0 && d.buffer[d.filled-1] == 0 {
		d.filled--
	}

	switch {
	case d.filled < MinPacketLen:
		d.stats.Undersize++
		d.logger.Debug("undersize packet dropped", "filled", d.filled)
	case d.filled > IPMTU:
		d.stats.Oversize++
		d.logger.Warn("oversize packet dropped at finalize", "filled", d.filled)
	case d.sink == nil:
		d.stats.NoSink++
		d.logger.Warn("packet complete but no sink registered, dropping", "filled", d.filled)
	default:
		d.sink.Accept(d.buffer[:d.filled])
		d.stats.Delivered++
	}

	d.Reset()
}
