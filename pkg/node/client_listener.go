package node

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dagrider/bft-consensus/pkg/logging"
	"github.com/dagrider/bft-consensus/pkg/mempool"
)

// maxClientTxBytes bounds a single submitted transaction's frame, well
// above any realistic payload, so a misbehaving client cannot force an
// unbounded allocation.
const maxClientTxBytes = 16 * 1024 * 1024

// clientListener accepts plain TCP connections from transaction-submitting
// clients (cmd/dagclient), separate from the committee's peer-to-peer
// Hub so a client never needs committee network credentials. Each frame
// is [4-byte little-endian length][payload], the same length-prefix
// idiom pkg/wire uses for committee traffic, without a tag byte since a
// client only ever sends one kind of thing.
type clientListener struct {
	ln   net.Listener
	pool *mempool.Mempool
	log  zerolog.Logger

	quit chan struct{}
	wg   sync.WaitGroup
}

func newClientListener(addr string, pool *mempool.Mempool, log zerolog.Logger) (*clientListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &clientListener{
		ln:   ln,
		pool: pool,
		log:  log.With().Int(logging.Service, logging.MempoolService).Logger(),
		quit: make(chan struct{}),
	}, nil
}

func (cl *clientListener) start() {
	cl.wg.Add(1)
	go cl.acceptLoop()
}

func (cl *clientListener) stop() {
	close(cl.quit)
	cl.ln.Close()
	cl.wg.Wait()
}

func (cl *clientListener) acceptLoop() {
	defer cl.wg.Done()
	for {
		conn, err := cl.ln.Accept()
		if err != nil {
			select {
			case <-cl.quit:
				return
			default:
				continue
			}
		}
		cl.wg.Add(1)
		go func() {
			defer cl.wg.Done()
			cl.serve(conn)
		}()
	}
}

func (cl *clientListener) serve(conn net.Conn) {
	defer conn.Close()
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n == 0 || n > maxClientTxBytes {
			return
		}
		tx := make([]byte, n)
		if _, err := io.ReadFull(conn, tx); err != nil {
			return
		}
		if err := cl.pool.Submit(tx); err != nil {
			cl.log.Warn().Err(err).Msg("rejecting client submission")
			return
		}
	}
}
