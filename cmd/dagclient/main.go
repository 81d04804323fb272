// Command dagclient generates random transactions and submits them to a
// running node's client listener (pkg/node's clientListener).
//
// Grounded on pkg/tests/data_source.go's random-data generator, adapted
// from a gomel.DataSource channel producer to a TCP submission loop.
package main

import (
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"
	"time"
)

type cliOptions struct {
	addr    string
	size    int
	rate    int
	count   int
	timeout time.Duration
}

func getOptions() cliOptions {
	var result cliOptions
	flag.IntVar(&result.size, "size", 256, "size in bytes of each generated transaction")
	flag.IntVar(&result.rate, "rate", 100, "transactions submitted per second (0 for as fast as possible)")
	flag.IntVar(&result.count, "count", 0, "total number of transactions to submit (0 for unbounded)")
	flag.DurationVar(&result.timeout, "timeout", 5*time.Second, "dial timeout")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: dagclient [flags] <host:port>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	result.addr = flag.Arg(0)
	return result
}

// submitTransaction frames tx the way pkg/node's clientListener expects:
// a 4-byte little-endian length prefix followed by the raw bytes.
func submitTransaction(conn net.Conn, tx []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(tx)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(tx)
	return err
}

func main() {
	options := getOptions()

	conn, err := net.DialTimeout("tcp", options.addr, options.timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dialing %s: %s\n", options.addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	var ticker *time.Ticker
	if options.rate > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(options.rate))
		defer ticker.Stop()
	}

	sent := 0
	for options.count == 0 || sent < options.count {
		tx := make([]byte, options.size)
		if _, err := rand.Read(tx); err != nil {
			fmt.Fprintf(os.Stderr, "generating transaction: %s\n", err)
			os.Exit(1)
		}
		if err := submitTransaction(conn, tx); err != nil {
			fmt.Fprintf(os.Stderr, "submitting transaction %d: %s\n", sent, err)
			os.Exit(1)
		}
		sent++
		if ticker != nil {
			<-ticker.C
		}
	}

	fmt.Fprintf(os.Stdout, "submitted %d transactions\n", sent)
}
