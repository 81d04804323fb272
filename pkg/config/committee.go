package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dagrider/bft-consensus/pkg/crypto/coin"
	"github.com/dagrider/bft-consensus/pkg/crypto/signing"
)

// Member is the private data one committee member holds about itself: its
// signing key for vertices and votes, and its share of the committee's
// threshold coin key.
type Member struct {
	// Pid is this member's process id, equal to its types.NodeID.
	Pid uint16

	// PrivateKey signs this node's own vertices and RB votes (§4.B, §4.A).
	PrivateKey signing.PrivateKey

	// CoinShare is this node's share of the shared random coin used for
	// leader election (§4.D.2 step 1).
	CoinShare coin.SecretKeyShare
}

// Committee is the public data about the committee known before the node
// starts: every member's verification key, the committee-wide threshold
// coin public key, and the network address to reach each member at.
type Committee struct {
	// PublicKeys verify vertex signatures and RB votes, ordered by pid.
	PublicKeys []signing.PublicKey

	// CoinPublicKey verifies coin shares and combines them (§4.D.2 step 1).
	CoinPublicKey *coin.ThresholdPublicKey

	// Addresses is the TCP address to dial each member at, ordered by pid.
	Addresses []string
}

const malformedData = "malformed committee data"

// NProc is the committee size.
func (c *Committee) NProc() int { return len(c.PublicKeys) }

// LoadMember loads the data from the given reader and creates a member.
// Assumes one line of the form "privateKey coinShare pid".
func LoadMember(r io.Reader) (*Member, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	if !scanner.Scan() {
		return nil, errors.New(malformedData)
	}
	privateKey, err := signing.DecodePrivateKey(scanner.Text())
	if err != nil {
		return nil, err
	}

	if !scanner.Scan() {
		return nil, errors.New(malformedData)
	}
	share, err := coin.DecodeSecretKeyShare(scanner.Text())
	if err != nil {
		return nil, err
	}

	if !scanner.Scan() {
		return nil, errors.New(malformedData)
	}
	pid, err := strconv.Atoi(scanner.Text())
	if err != nil {
		return nil, err
	}

	return &Member{
		Pid:        uint16(pid),
		PrivateKey: privateKey,
		CoinShare:  *share,
	}, nil
}

// StoreMember writes the given member to the writer.
func StoreMember(w io.Writer, m *Member) error {
	fields := []string{
		m.PrivateKey.Encode(),
		m.CoinShare.Encode(),
		strconv.Itoa(int(m.Pid)),
	}
	_, err := io.WriteString(w, strings.Join(fields, " ")+"\n")
	return err
}

// parseCommitteeLine splits one committee file line of the form
// "publicKey|address" into its two fields.
func parseCommitteeLine(line string) (string, string, error) {
	s := strings.SplitN(line, "|", 2)
	if len(s) != 2 {
		return "", "", errors.New("committee line should be of the form:\npublicKey|address")
	}
	pk, addr := s[0], s[1]
	if len(pk) == 0 {
		return "", "", errors.New(malformedData)
	}
	if len(addr) == 0 {
		return "", "", fmt.Errorf("address should be non-empty")
	}
	return pk, addr, nil
}

// LoadCommittee loads the data from the given reader and creates a
// committee. The coin public key is loaded separately, from its own file,
// since it is shared data generated once by a dealer rather than assembled
// line by line (see LoadCoinPublicKey).
func LoadCommittee(r io.Reader) (*Committee, error) {
	scanner := bufio.NewScanner(r)

	c := &Committee{}
	for scanner.Scan() {
		line := scanner.Text()
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		pk, addr, err := parseCommitteeLine(line)
		if err != nil {
			return nil, err
		}

		publicKey, err := signing.DecodePublicKey(pk)
		if err != nil {
			return nil, err
		}

		c.PublicKeys = append(c.PublicKeys, publicKey)
		c.Addresses = append(c.Addresses, addr)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(c.PublicKeys) < 4 {
		return nil, errors.New(malformedData)
	}
	return c, nil
}

// StoreCommittee writes the given committee to the writer, one
// "publicKey|address" line per member, ordered by pid.
func StoreCommittee(w io.Writer, c *Committee) error {
	for i := range c.PublicKeys {
		line := fmt.Sprintf("%s|%s\n", c.PublicKeys[i].Encode(), c.Addresses[i])
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// LoadCoinPublicKey reads a threshold coin public key stored by
// StoreCoinPublicKey.
func LoadCoinPublicKey(r io.Reader) (*coin.ThresholdPublicKey, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, errors.New(malformedData)
	}
	return coin.DecodeThresholdPublicKey(scanner.Text())
}

// StoreCoinPublicKey writes a threshold coin public key for later loading
// by LoadCoinPublicKey.
func StoreCoinPublicKey(w io.Writer, pub *coin.ThresholdPublicKey) error {
	_, err := io.WriteString(w, pub.Encode()+"\n")
	return err
}
