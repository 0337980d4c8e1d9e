package sink_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openresearch/opv-cobs-deframer/sink"
)

func Test_UDPEgress_WritesDatagramToLoopback(t *testing.T) {
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer listener.Close()

	egress, err := sink.NewUDPEgress(listener.LocalAddr().String(), nil)
	require.NoError(t, err)
	defer egress.Close()

	payload := []byte("hello from the deframer")
	egress.Accept(payload)

	buf := make([]byte, 256)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf[:n])
}

func Test_UDPEgress_DialErrorOnUnresolvableAddress(t *testing.T) {
	_, err := sink.NewUDPEgress("not a valid address::::", nil)
	require.Error(t, err)
}
