package sink

import (
	"encoding/binary"

	"github.com/charmbracelet/log"

	"github.com/openresearch/opv-cobs-deframer/cobs"
)

// OpusPayloadType is the dynamic RTP payload type OPV uses for Opus
// voice frames. It is negotiated out of band in the real protocol;
// here it is a fixed constant since SDP negotiation is out of scope.
const OpusPayloadType = 96

const (
	protocolUDP = 17
	rtpVersion2 = 2
	minIPv4Len  = 20
	minUDPLen   = 8
	minRTPLen   = 12
)

// Demux is a cobs.Sink that interprets each decoded packet as an IPv4
// datagram carrying a UDP/RTP payload, and routes it to the callback
// appropriate for its content. It performs no IP fragment reassembly
// and no checksum validation - those remain explicit Non-goals of the
// surrounding receiver, not just the core deframer.
//
// Malformed headers are logged and the packet is dropped, matching
// the deframer's own silent-recovery philosophy: a packet is never
// allowed to crash the pipeline.
type Demux struct {
	// OpusSink receives the Opus payload of any RTP packet whose
	// payload type is OpusPayloadType.
	OpusSink func(payload []byte, seq uint16, timestamp, ssrc uint32)

	// UDPSink receives the raw UDP payload of anything that is not
	// recognized as an Opus RTP packet - a non-RTP UDP datagram, or an
	// RTP packet with a different payload type.
	UDPSink func(dstPort uint16, payload []byte)

	logger *log.Logger
}

var _ cobs.Sink = (*Demux)(nil)

// NewDemux returns a Demux that logs to logger (nil discards).
func NewDemux(logger *log.Logger) *Demux {
	return &Demux{logger: discardIfNil(logger)}
}

// Accept implements cobs.Sink.
func (d *Demux) Accept(p []byte) {
	if len(p) < minIPv4Len {
		d.logger.Warn("packet shorter than an IPv4 header, dropping", "len", len(p))
		return
	}

	ihl := int(p[0]&0x0F) * 4
	if ihl < minIPv4Len || len(p) < ihl+minUDPLen {
		d.logger.Warn("malformed IPv4 header length, dropping", "ihl", ihl, "len", len(p))
		return
	}
	if protocol := p[9]; protocol != protocolUDP {
		d.logger.Debug("non-UDP IP payload, dropping", "protocol", protocol)
		return
	}

	udpHeader := p[ihl : ihl+minUDPLen]
	dstPort := binary.BigEndian.Uint16(udpHeader[2:4])
	payload := p[ihl+minUDPLen:]

	if len(payload) >= minRTPLen && payload[0]>>6 == rtpVersion2 {
		d.dispatchRTP(dstPort, payload)
		return
	}

	if d.UDPSink != nil {
		d.UDPSink(dstPort, payload)
	}
}

func (d *Demux) dispatchRTP(dstPort uint16, payload []byte) {
	payloadType := payload[1] & 0x7F
	seq := binary.BigEndian.Uint16(payload[2:4])
	timestamp := binary.BigEndian.Uint32(payload[4:8])
	ssrc := binary.BigEndian.Uint32(payload[8:12])
	rtpPayload := payload[minRTPLen:]

	if payloadType == OpusPayloadType {
		if d.OpusSink != nil {
			d.OpusSink(rtpPayload, seq, timestamp, ssrc)
		}
		return
	}

	if d.UDPSink != nil {
		d.UDPSink(dstPort, payload)
	}
}
