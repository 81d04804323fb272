package coin

import (
	"testing"

	"github.com/dagrider/bft-consensus/pkg/types"
)

func TestShareVerifiesUnderOwnKey(t *testing.T) {
	secrets, pub, err := GenerateThresholdKeys(4, 3)
	if err != nil {
		t.Fatalf("GenerateThresholdKeys: %v", err)
	}
	share := Share(&secrets[0], 7)
	if !VerifyShare(pub, 7, share) {
		t.Fatalf("expected share to verify under its own key")
	}
}

func TestShareRejectsWrongRound(t *testing.T) {
	secrets, pub, _ := GenerateThresholdKeys(4, 3)
	share := Share(&secrets[0], 7)
	if VerifyShare(pub, 8, share) {
		t.Fatalf("expected share over round 7 to fail verification for round 8")
	}
}

func TestCombineBelowThresholdFails(t *testing.T) {
	secrets, pub, _ := GenerateThresholdKeys(4, 3)
	shares := []*PartialSignature{
		Share(&secrets[0], 1),
		Share(&secrets[1], 1),
	}
	if _, err := Combine(pub, 1, shares); err == nil {
		t.Fatalf("expected InsufficientShares with only 2 of 3 required shares")
	}
}

func TestCombineAtExactThresholdSucceeds(t *testing.T) {
	secrets, pub, _ := GenerateThresholdKeys(4, 3)
	shares := []*PartialSignature{
		Share(&secrets[0], 1),
		Share(&secrets[1], 1),
		Share(&secrets[2], 1),
	}
	value, err := Combine(pub, 1, shares)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if value.Point == nil {
		t.Fatalf("expected non-nil combined point")
	}
}

func TestCombineIsConsistentAcrossQuorums(t *testing.T) {
	secrets, pub, _ := GenerateThresholdKeys(4, 3)

	quorumA := []*PartialSignature{
		Share(&secrets[0], 5),
		Share(&secrets[1], 5),
		Share(&secrets[2], 5),
	}
	quorumB := []*PartialSignature{
		Share(&secrets[1], 5),
		Share(&secrets[2], 5),
		Share(&secrets[3], 5),
	}

	valueA, err := Combine(pub, 5, quorumA)
	if err != nil {
		t.Fatalf("Combine quorumA: %v", err)
	}
	valueB, err := Combine(pub, 5, quorumB)
	if err != nil {
		t.Fatalf("Combine quorumB: %v", err)
	}

	if valueA.Point.Marshal() == nil || valueB.Point.Marshal() == nil {
		t.Fatalf("expected marshalable combined points")
	}
	if string(valueA.Point.Marshal()) != string(valueB.Point.Marshal()) {
		t.Fatalf("combining different quorums of the same round should yield the same coin value")
	}
}

func TestLeaderIsWithinCommitteeBounds(t *testing.T) {
	secrets, pub, _ := GenerateThresholdKeys(4, 3)
	shares := []*PartialSignature{
		Share(&secrets[0], 3),
		Share(&secrets[1], 3),
		Share(&secrets[2], 3),
	}
	value, err := Combine(pub, 3, shares)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	leader := value.Leader(pub.NProc)
	if int(leader) < 0 || int(leader) >= pub.NProc {
		t.Fatalf("leader index %d out of bounds for nProc=%d", leader, pub.NProc)
	}
}

func TestVerifyShareRejectsUnknownVoter(t *testing.T) {
	secrets, pub, _ := GenerateThresholdKeys(4, 3)
	share := Share(&secrets[0], 1)
	share.Voter = types.NodeID(99)
	if VerifyShare(pub, 1, share) {
		t.Fatalf("expected verification to fail for an unknown voter index")
	}
}
