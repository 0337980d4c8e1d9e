package sink

import (
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/openresearch/opv-cobs-deframer/cobs"
)

// UDPEgress is a cobs.Sink (or a Demux callback target) that forwards
// whatever bytes it is handed as one UDP datagram per call - the "UDP
// egress helper" spec.md names as an external collaborator. Like the
// original C++ receiver's UDPNetwork, it is a thin wrapper around a
// single connected socket; unlike it, socket setup goes through Go's
// net package, with SO_REUSEADDR set directly via golang.org/x/sys/unix
// in the style of the teacher's cm108.go/ptt.go device control.
type UDPEgress struct {
	conn   *net.UDPConn
	logger *log.Logger
}

var _ cobs.Sink = (*UDPEgress)(nil)

// NewUDPEgress dials addr (host:port) over UDP and returns a sink that
// writes one datagram per Accept call. logger may be nil to discard
// diagnostics.
func NewUDPEgress(addr string, logger *log.Logger) (*UDPEgress, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving egress address %q: %w", addr, err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing egress address %q: %w", addr, err)
	}

	egress := &UDPEgress{conn: conn, logger: discardIfNil(logger)}
	egress.setReuseAddr()
	return egress, nil
}

func (u *UDPEgress) setReuseAddr() {
	raw, err := u.conn.SyscallConn()
	if err != nil {
		u.logger.Warn("could not get raw socket to set SO_REUSEADDR", "err", err)
		return
	}

	controlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			u.logger.Warn("SO_REUSEADDR failed", "err", err)
		}
	})
	if controlErr != nil {
		u.logger.Warn("raw socket control failed", "err", controlErr)
	}
}

// Accept implements cobs.Sink. It writes p as one UDP datagram and
// never blocks the caller on a slow or unreachable destination beyond
// the OS write call; write failures are logged, not propagated.
func (u *UDPEgress) Accept(p []byte) {
	if _, err := u.conn.Write(p); err != nil {
		u.logger.Warn("udp egress write failed", "err", err)
	}
}

// Close releases the underlying socket.
func (u *UDPEgress) Close() error {
	return u.conn.Close()
}
