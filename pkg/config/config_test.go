package config_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/dagrider/bft-consensus/pkg/config"
	"github.com/dagrider/bft-consensus/pkg/crypto/coin"
	"github.com/dagrider/bft-consensus/pkg/crypto/signing"
)

func TestMemberStoreLoadRoundTrip(t *testing.T) {
	priv, _, err := memberKeys()
	if err != nil {
		t.Fatalf("memberKeys: %v", err)
	}
	shares, _, err := coin.GenerateThresholdKeys(4, 3)
	if err != nil {
		t.Fatalf("GenerateThresholdKeys: %v", err)
	}
	m := &config.Member{Pid: 2, PrivateKey: priv, CoinShare: shares[2]}

	var buf bytes.Buffer
	if err := config.StoreMember(&buf, m); err != nil {
		t.Fatalf("StoreMember: %v", err)
	}

	got, err := config.LoadMember(&buf)
	if err != nil {
		t.Fatalf("LoadMember: %v", err)
	}
	if got.Pid != m.Pid {
		t.Fatalf("Pid = %d, want %d", got.Pid, m.Pid)
	}
	if got.PrivateKey.Encode() != m.PrivateKey.Encode() {
		t.Fatalf("PrivateKey round-trip mismatch")
	}
	if got.CoinShare.Index != m.CoinShare.Index || got.CoinShare.Scalar.Cmp(m.CoinShare.Scalar) != 0 {
		t.Fatalf("CoinShare round-trip mismatch")
	}
}

func TestCommitteeStoreLoadRoundTrip(t *testing.T) {
	const n = 4
	pubs := make([]signing.PublicKey, n)
	addrs := make([]string, n)
	for i := range pubs {
		pub, _, err := signing.GenerateKeys()
		if err != nil {
			t.Fatalf("GenerateKeys: %v", err)
		}
		pubs[i] = pub
		addrs[i] = exampleAddr(i)
	}
	c := &config.Committee{PublicKeys: pubs, Addresses: addrs}

	var buf bytes.Buffer
	if err := config.StoreCommittee(&buf, c); err != nil {
		t.Fatalf("StoreCommittee: %v", err)
	}

	got, err := config.LoadCommittee(&buf)
	if err != nil {
		t.Fatalf("LoadCommittee: %v", err)
	}
	if got.NProc() != n {
		t.Fatalf("NProc() = %d, want %d", got.NProc(), n)
	}
	for i := range pubs {
		if got.PublicKeys[i].Encode() != pubs[i].Encode() {
			t.Fatalf("public key %d mismatch", i)
		}
		if got.Addresses[i] != addrs[i] {
			t.Fatalf("address %d mismatch: got %q want %q", i, got.Addresses[i], addrs[i])
		}
	}
}

func TestLoadCommitteeRejectsFewerThanFourMembers(t *testing.T) {
	pub, _, err := signing.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	line := pub.Encode() + "|127.0.0.1:9000\n"
	if _, err := config.LoadCommittee(strings.NewReader(line)); err == nil {
		t.Fatalf("expected an error for a committee with only one member")
	}
}

func TestCoinPublicKeyStoreLoadRoundTrip(t *testing.T) {
	_, pub, err := coin.GenerateThresholdKeys(4, 3)
	if err != nil {
		t.Fatalf("GenerateThresholdKeys: %v", err)
	}
	var buf bytes.Buffer
	if err := config.StoreCoinPublicKey(&buf, pub); err != nil {
		t.Fatalf("StoreCoinPublicKey: %v", err)
	}
	got, err := config.LoadCoinPublicKey(&buf)
	if err != nil {
		t.Fatalf("LoadCoinPublicKey: %v", err)
	}
	if got.NProc != pub.NProc || got.Threshold != pub.Threshold {
		t.Fatalf("round-tripped coin public key mismatch: %+v", got)
	}
}

func TestJSONConfigRoundTrip(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.StorageDir = "/tmp/example"

	var buf bytes.Buffer
	if err := config.NewJSONConfigWriter().StoreConfig(&buf, &cfg); err != nil {
		t.Fatalf("StoreConfig: %v", err)
	}

	var got config.Config
	if err := config.NewJSONConfigLoader().LoadConfig(&buf, &got); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got != cfg {
		t.Fatalf("round-tripped config mismatch: got %+v, want %+v", got, cfg)
	}
}

func TestJSONConfigRejectsUnknownField(t *testing.T) {
	var got config.Config
	err := config.NewJSONConfigLoader().LoadConfig(strings.NewReader(`{"BlaBla": 1000}`), &got)
	if err == nil {
		t.Fatalf("expected an error for an unknown field")
	}
}

func TestJSONConfigRejectsIncompleteObject(t *testing.T) {
	var got config.Config
	err := config.NewJSONConfigLoader().LoadConfig(strings.NewReader(`{"LogLevel": 2}`), &got)
	if err == nil {
		t.Fatalf("expected an error for a partial configuration")
	}
}

func TestValidateRejectsMismatchedAddressCount(t *testing.T) {
	pubs := make([]signing.PublicKey, 4)
	for i := range pubs {
		pub, _, err := signing.GenerateKeys()
		if err != nil {
			t.Fatalf("GenerateKeys: %v", err)
		}
		pubs[i] = pub
	}
	c := &config.Committee{PublicKeys: pubs, Addresses: []string{exampleAddr(0)}}
	if err := config.Validate(config.NewDefaultConfig(), c); err == nil {
		t.Fatalf("expected Validate to reject a mismatched address count")
	}
}

func TestValidateAcceptsDefaultConfigWithFourMembers(t *testing.T) {
	pubs := make([]signing.PublicKey, 4)
	addrs := make([]string, 4)
	for i := range pubs {
		pub, _, err := signing.GenerateKeys()
		if err != nil {
			t.Fatalf("GenerateKeys: %v", err)
		}
		pubs[i] = pub
		addrs[i] = exampleAddr(i)
	}
	c := &config.Committee{PublicKeys: pubs, Addresses: addrs}
	if err := config.Validate(config.NewDefaultConfig(), c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func memberKeys() (signing.PrivateKey, signing.PublicKey, error) {
	pub, priv, err := signing.GenerateKeys()
	return priv, pub, err
}

func exampleAddr(i int) string {
	return fmt.Sprintf("127.0.0.1:%d", 9000+i)
}
