package tcp

import (
	"encoding/binary"
	"errors"
	"io"
)

// greeting is sent once, immediately after a dial, so the listener on the
// other end learns which committee member just connected: a bare accepted
// socket carries no identity of its own, and §5's network task needs one
// to tag every inbound frame by sender before handing it to RB.
type greeting struct {
	pid uint16
}

// MarshalBinary encodes the greeting as a slice of bytes.
func (g *greeting) MarshalBinary() ([]byte, error) {
	var result [2]byte
	binary.LittleEndian.PutUint16(result[:], g.pid)
	return result[:], nil
}

// UnmarshalBinary decodes the greeting encoded as a slice of bytes.
func (g *greeting) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.New("tcp: bad greeting data")
	}
	g.pid = binary.LittleEndian.Uint16(data)
	return nil
}

// sendGreeting writes pid's greeting to w.
func sendGreeting(w io.Writer, pid uint16) error {
	g := greeting{pid: pid}
	data, err := g.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readGreeting reads a greeting from r and returns the pid it announces.
func readGreeting(r io.Reader) (uint16, error) {
	var data [2]byte
	if _, err := io.ReadFull(r, data[:]); err != nil {
		return 0, err
	}
	var g greeting
	if err := g.UnmarshalBinary(data[:]); err != nil {
		return 0, err
	}
	return g.pid, nil
}
