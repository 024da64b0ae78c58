package wallet

import (
	"testing"
)

func TestBuildMultisigRedeemScriptStructure(t *testing.T) {
	pubkeys := []string{"aa", "bb", "cc"}
	script, err := BuildMultisigRedeemScript(pubkeys, 2)
	if err != nil {
		t.Fatalf("BuildMultisigRedeemScript: %v", err)
	}
	if script[0] != 0x50+2 {
		t.Fatalf("expected required-signatures push first, got %x", script[0])
	}
	if script[len(script)-1] != opCheckMultisig {
		t.Fatalf("expected script to end with OP_CHECKMULTISIG, got %x", script[len(script)-1])
	}
}

func TestBuildMultisigRedeemScriptRejectsBadThreshold(t *testing.T) {
	if _, err := BuildMultisigRedeemScript([]string{"aa"}, 0); err == nil {
		t.Fatalf("expected error for required=0")
	}
	if _, err := BuildMultisigRedeemScript([]string{"aa"}, 2); err == nil {
		t.Fatalf("expected error when required exceeds cosigner count")
	}
	if _, err := BuildMultisigRedeemScript(nil, 1); err == nil {
		t.Fatalf("expected error for empty cosigner set")
	}
}

func TestDeriveCosignerChildPubKeysSortedAndDeterministic(t *testing.T) {
	var cosigners []*ExtendedKey
	for i := 0; i < 4; i++ {
		m := testMasterKey(t)
		acc, err := DeriveAccount(m, KindThreshold)
		if err != nil {
			t.Fatalf("DeriveAccount: %v", err)
		}
		cosigners = append(cosigners, acc)
	}

	out1, err := DeriveCosignerChildPubKeys(cosigners, 5)
	if err != nil {
		t.Fatalf("DeriveCosignerChildPubKeys: %v", err)
	}
	out2, err := DeriveCosignerChildPubKeys(cosigners, 5)
	if err != nil {
		t.Fatalf("DeriveCosignerChildPubKeys: %v", err)
	}
	if len(out1) != 4 {
		t.Fatalf("expected 4 pubkeys, got %d", len(out1))
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("derivation must be deterministic at position %d: %s != %s", i, out1[i], out2[i])
		}
	}
	for i := 1; i < len(out1); i++ {
		if out1[i-1] > out1[i] {
			t.Fatalf("expected lexicographically sorted pubkeys, got %v", out1)
		}
	}
}
