package sink_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openresearch/opv-cobs-deframer/sink"
)

func buildIPv4UDP(t *testing.T, dstPort uint16, udpPayload []byte) []byte {
	t.Helper()

	ipHeader := make([]byte, 20)
	ipHeader[0] = 0x45 // version 4, IHL 5 (20 bytes)
	ipHeader[9] = 17   // protocol UDP

	udpHeader := make([]byte, 8)
	binary.BigEndian.PutUint16(udpHeader[0:2], 40000)
	binary.BigEndian.PutUint16(udpHeader[2:4], dstPort)
	binary.BigEndian.PutUint16(udpHeader[4:6], uint16(8+len(udpPayload)))

	out := append(append(ipHeader, udpHeader...), udpPayload...)
	return out
}

func buildRTP(t *testing.T, payloadType byte, seq uint16, timestamp, ssrc uint32, payload []byte) []byte {
	t.Helper()

	header := make([]byte, 12)
	header[0] = 0x80 // version 2, no padding/extension/CSRC
	header[1] = payloadType & 0x7F
	binary.BigEndian.PutUint16(header[2:4], seq)
	binary.BigEndian.PutUint32(header[4:8], timestamp)
	binary.BigEndian.PutUint32(header[8:12], ssrc)

	return append(header, payload...)
}

func Test_Demux_RoutesOpusRTP(t *testing.T) {
	d := sink.NewDemux(nil)

	var gotOpus []byte
	var gotSeq uint16
	d.OpusSink = func(payload []byte, seq uint16, timestamp, ssrc uint32) {
		gotOpus = payload
		gotSeq = seq
	}
	d.UDPSink = func(dstPort uint16, payload []byte) {
		t.Fatalf("UDPSink should not fire for an Opus RTP packet")
	}

	opusPayload := []byte{0x01, 0x02, 0x03, 0x04}
	rtp := buildRTP(t, sink.OpusPayloadType, 7, 1000, 0xdeadbeef, opusPayload)
	packet := buildIPv4UDP(t, 5004, rtp)

	d.Accept(packet)

	require.NotNil(t, gotOpus)
	assert.Equal(t, opusPayload, gotOpus)
	assert.Equal(t, uint16(7), gotSeq)
}

func Test_Demux_RoutesNonOpusToUDPSink(t *testing.T) {
	d := sink.NewDemux(nil)

	var gotPort uint16
	var gotPayload []byte
	d.UDPSink = func(dstPort uint16, payload []byte) {
		gotPort = dstPort
		gotPayload = payload
	}

	controlPayload := []byte("hello control channel")
	packet := buildIPv4UDP(t, 9000, controlPayload)

	d.Accept(packet)

	assert.Equal(t, uint16(9000), gotPort)
	assert.Equal(t, controlPayload, gotPayload)
}

func Test_Demux_DropsShortPacket(t *testing.T) {
	d := sink.NewDemux(nil)
	called := false
	d.UDPSink = func(uint16, []byte) { called = true }

	d.Accept([]byte{0x01, 0x02, 0x03})

	assert.False(t, called)
}
