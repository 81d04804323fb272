// Command dagrider runs one committee member's DAG-Rider node.
//
// Grounded on cmd/gomel/main.go's flag-based option parsing and
// getMember/getCommittee file loaders, generalized from Aleph's process
// setup to a single node.Runtime.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dagrider/bft-consensus/pkg/config"
	"github.com/dagrider/bft-consensus/pkg/consensus"
	"github.com/dagrider/bft-consensus/pkg/logging"
	"github.com/dagrider/bft-consensus/pkg/node"
)

type cliOptions struct {
	id                int
	privFilename      string
	keysAddrsFilename string
	coinFilename      string
	configFilename    string
	listenAddr        string
}

func getOptions() cliOptions {
	var result cliOptions
	flag.IntVar(&result.id, "id", -1, "this node's pid within the committee")
	flag.StringVar(&result.privFilename, "priv", "", "a file with this node's private key, coin share and pid")
	flag.StringVar(&result.keysAddrsFilename, "keys_addrs", "", "a file with the committee's public keys and addresses")
	flag.StringVar(&result.coinFilename, "coin", "", "a file with the committee's threshold coin public key")
	flag.StringVar(&result.configFilename, "config", "", "a JSON file with runtime parameters (defaults used if empty)")
	flag.StringVar(&result.listenAddr, "listen", "", "the address to listen for committee traffic on (defaults to keys_addrs entry for -id)")
	flag.Parse()
	return result
}

func getMember(filename string) (*config.Member, error) {
	if filename == "" {
		return nil, errors.New("please provide a file with a private key, coin share and pid")
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return config.LoadMember(file)
}

func getCommittee(filename, coinFilename string) (*config.Committee, error) {
	if filename == "" {
		return nil, errors.New("please provide a file with keys and addresses of the committee")
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	committee, err := config.LoadCommittee(file)
	if err != nil {
		return nil, err
	}
	if coinFilename != "" {
		coinFile, err := os.Open(coinFilename)
		if err != nil {
			return nil, err
		}
		defer coinFile.Close()
		pub, err := config.LoadCoinPublicKey(coinFile)
		if err != nil {
			return nil, err
		}
		committee.CoinPublicKey = pub
	}
	return committee, nil
}

func getRuntimeConfig(filename string) (config.Config, error) {
	cfg := config.NewDefaultConfig()
	if filename == "" {
		return cfg, nil
	}
	file, err := os.Open(filename)
	if err != nil {
		return cfg, err
	}
	defer file.Close()
	if err := config.NewJSONConfigLoader().LoadConfig(file, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// commitLogSink logs every committed vertex, standing in for the
// out-of-scope external executor (§6 Non-goals).
type commitLogSink struct {
	log zerolog.Logger
}

func (s commitLogSink) Commit(e consensus.CommitEntry) {
	s.log.Info().
		Uint64(logging.Round, uint64(e.Vertex.Vertex.Round)).
		Uint16(logging.Author, uint16(e.Vertex.Vertex.Author)).
		Str(logging.Digest, e.Vertex.Vertex.Digest().String()).
		Msg(logging.WaveCommitted)
}

func main() {
	options := getOptions()
	if options.id < 0 {
		fmt.Fprintln(os.Stderr, "please provide -id")
		os.Exit(1)
	}

	cfg, err := getRuntimeConfig(options.configFilename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config file %q: %s\n", options.configFilename, err)
		os.Exit(1)
	}
	if err := logging.InitLogger(logging.LogConfig{
		Level:    cfg.LogLevel,
		Path:     "stdout",
		DiodeBuf: cfg.LogBuffer,
		TimeUnit: time.Millisecond,
		Human:    cfg.LogHuman,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %s\n", err)
		os.Exit(1)
	}

	member, err := getMember(options.privFilename)
	if err != nil {
		log.Error().Err(err).Msg("loading member file")
		os.Exit(1)
	}
	if int(member.Pid) != options.id {
		log.Error().Msg("-id does not match the pid in the member file")
		os.Exit(1)
	}

	committee, err := getCommittee(options.keysAddrsFilename, options.coinFilename)
	if err != nil {
		log.Error().Err(err).Msg("loading committee file")
		os.Exit(1)
	}
	if err := config.Validate(cfg, committee); err != nil {
		log.Error().Err(err).Msg("invalid runtime configuration")
		os.Exit(1)
	}

	listenAddr := options.listenAddr
	if listenAddr == "" {
		if int(member.Pid) >= len(committee.Addresses) {
			log.Error().Msg("pid out of range of the committee address list")
			os.Exit(1)
		}
		listenAddr = committee.Addresses[member.Pid]
	}

	rt, err := node.New(cfg, committee, member, listenAddr, commitLogSink{log: log.Logger}, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("assembling runtime")
		os.Exit(1)
	}

	if err := rt.Start(); err != nil {
		log.Error().Err(err).Msg("starting runtime")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	rt.Stop()
}
