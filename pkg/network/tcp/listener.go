package tcp

import (
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/dagrider/bft-consensus/pkg/logging"
	"github.com/dagrider/bft-consensus/pkg/network"
)

type listener struct {
	ln  *net.TCPListener
	log zerolog.Logger
}

// NewListener binds localAddr and returns a network.Listener that reports
// the pid each incoming connection greets with.
func NewListener(localAddr string, log zerolog.Logger) (network.Listener, error) {
	localTCP, err := net.ResolveTCPAddr("tcp", localAddr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", localTCP)
	if err != nil {
		return nil, err
	}
	return &listener{
		ln:  ln,
		log: log,
	}, nil
}

func (l *listener) Listen(timeout time.Duration) (uint16, network.Connection, error) {
	if timeout > 0 {
		l.ln.SetDeadline(time.Now().Add(timeout))
	}
	link, err := l.ln.AcceptTCP()
	if err != nil {
		return 0, nil, err
	}
	pid, err := readGreeting(link)
	if err != nil {
		link.Close()
		return 0, nil, err
	}
	l.log.Info().Uint16(logging.PID, pid).Msg(logging.ConnectionReceived)
	return pid, newConn(link, l.log), nil
}

func (l *listener) Close() error {
	return l.ln.Close()
}
