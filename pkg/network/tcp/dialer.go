package tcp

import (
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/dagrider/bft-consensus/pkg/logging"
	"github.com/dagrider/bft-consensus/pkg/network"
)

type dialer struct {
	self        uint16
	remoteAddrs []string
	timeout     time.Duration
	log         zerolog.Logger
}

// NewDialer creates a dialer that announces self via the greeting handshake
// and reaches every other committee member at remoteAddrs[pid].
func NewDialer(self uint16, remoteAddrs []string, timeout time.Duration, log zerolog.Logger) network.Dialer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &dialer{
		self:        self,
		remoteAddrs: remoteAddrs,
		timeout:     timeout,
		log:         log,
	}
}

func (d *dialer) Dial(pid uint16) (network.Connection, error) {
	link, err := net.DialTimeout("tcp", d.remoteAddrs[pid], d.timeout)
	if err != nil {
		return nil, err
	}
	if err := sendGreeting(link, d.self); err != nil {
		link.Close()
		return nil, err
	}
	d.log.Info().Uint16(logging.PID, pid).Msg(logging.ConnectionEstablished)
	return newConn(link, d.log), nil
}

func (d *dialer) Length() int {
	return len(d.remoteAddrs)
}
