package config

import "fmt"

// Validate checks that cfg and committee together describe a runnable
// node: committee sizes line up with f = (n-1)/3 is still meaningful
// (n >= 4, so quorum 2f+1 < n), addresses cover every member, and every
// byte budget and timeout is non-negative.
func Validate(cfg Config, committee *Committee) error {
	n := committee.NProc()
	if n < 4 {
		return fmt.Errorf("config: committee has %d members, need at least 4 to tolerate any fault", n)
	}
	if len(committee.Addresses) != n {
		return fmt.Errorf("config: %d addresses for %d public keys", len(committee.Addresses), n)
	}
	if committee.CoinPublicKey != nil && committee.CoinPublicKey.NProc != n {
		return fmt.Errorf("config: coin public key sized for %d members, committee has %d", committee.CoinPublicKey.NProc, n)
	}
	if cfg.WeakParentByteBudget < 0 || cfg.PayloadByteBudget < 0 {
		return fmt.Errorf("config: byte budgets must be non-negative")
	}
	if cfg.MempoolIncomingCap < 0 || cfg.MaxBatchBytes < 0 {
		return fmt.Errorf("config: mempool limits must be non-negative")
	}
	if cfg.RoundTimeout < 0 || cfg.DialTimeout < 0 {
		return fmt.Errorf("config: timeouts must be non-negative")
	}
	return nil
}
