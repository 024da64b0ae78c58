package wallet

import (
	"bytes"
	"math/big"
	"testing"
)

func fundAccountAddress(t *testing.T, s *MemoryStorage, account *ExtendedKey, index uint32, versionByte byte, values ...int64) string {
	t.Helper()
	child, err := DeriveChildAddress(account, index)
	if err != nil {
		t.Fatalf("DeriveChildAddress: %v", err)
	}
	encoded := EncodeAddress(versionByte, hash160(child.PublicKeyCompressed()))
	saveAddr(t, s, index, encoded)
	fundNative(t, s, encoded, values...)
	return encoded
}

func TestSignerSingleSigRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	master := testMasterKey(t)
	account, err := DeriveAccount(master, KindSingle)
	if err != nil {
		t.Fatalf("DeriveAccount: %v", err)
	}
	encoded := fundAccountAddress(t, s, account, 0, 0x28, 100)

	tx, err := BuildSend(s, testParams(), []OutputSpec{{Address: testAddr("addrDest"), Value: big.NewInt(40), Token: NativeTokenUID}}, encoded)
	if err != nil {
		t.Fatalf("BuildSend: %v", err)
	}

	signer, err := NewSigner(s, account)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sigs, err := signer.SignUnsignedTx(tx)
	if err != nil {
		t.Fatalf("SignUnsignedTx: %v", err)
	}
	if len(sigs) != len(tx.Inputs) {
		t.Fatalf("expected one signature per input, got %d for %d inputs", len(sigs), len(tx.Inputs))
	}

	child, err := DeriveChildAddress(account, 0)
	if err != nil {
		t.Fatalf("DeriveChildAddress: %v", err)
	}
	digest, err := SigHash(tx)
	if err != nil {
		t.Fatalf("SigHash: %v", err)
	}
	ok, err := VerifyECDSA(child.PublicKeyCompressed(), digest[:], sigs[0])
	if err != nil {
		t.Fatalf("VerifyECDSA: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify against the owning child key")
	}

	signed, err := signer.AssembleP2PKH(tx, sigs)
	if err != nil {
		t.Fatalf("AssembleP2PKH: %v", err)
	}
	if len(signed.Inputs) != len(tx.Inputs) {
		t.Fatalf("expected signed tx to carry one input per unsigned input")
	}
	if !bytes.Contains(signed.Inputs[0].Data, child.PublicKeyCompressed()) {
		t.Fatalf("expected unlocking script to embed the signer's public key")
	}
}

func TestNewSignerRejectsWatchOnlyAccount(t *testing.T) {
	s := newTestStorage(t)
	master := testMasterKey(t)
	account, err := DeriveAccount(master, KindSingle)
	if err != nil {
		t.Fatalf("DeriveAccount: %v", err)
	}
	if _, err := NewSigner(s, account.Neuter()); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly for a watch-only account, got %v", err)
	}
}

func TestAssembleThresholdCombinesPartials(t *testing.T) {
	s := newTestStorage(t)
	var cosigners []*ExtendedKey
	for i := 0; i < 3; i++ {
		m := testMasterKey(t)
		acc, err := DeriveAccount(m, KindThreshold)
		if err != nil {
			t.Fatalf("DeriveAccount: %v", err)
		}
		cosigners = append(cosigners, acc)
	}
	sorted, err := DeriveCosignerChildPubKeys(cosigners, 0)
	if err != nil {
		t.Fatalf("DeriveCosignerChildPubKeys: %v", err)
	}
	script, err := BuildMultisigRedeemScript(sorted, 2)
	if err != nil {
		t.Fatalf("BuildMultisigRedeemScript: %v", err)
	}
	encoded := EncodeAddress(0x64, hash160(script))
	saveAddr(t, s, 0, encoded)
	fundNative(t, s, encoded, 10)

	tx, err := BuildConsolidate(s, testParams(), NativeTokenUID, testAddr("addrOut"))
	if err != nil {
		t.Fatalf("BuildConsolidate: %v", err)
	}

	partials := []PartialSignatureSet{
		{PubKeyHex: sorted[0], Sigs: [][]byte{make([]byte, 64)}},
		{PubKeyHex: sorted[1], Sigs: [][]byte{make([]byte, 64)}},
	}
	signed, err := AssembleThreshold(tx, [][]string{sorted}, partials, 2)
	if err != nil {
		t.Fatalf("AssembleThreshold: %v", err)
	}
	if len(signed.Inputs) != 1 {
		t.Fatalf("expected one signed input, got %d", len(signed.Inputs))
	}
	if !bytes.Contains(signed.Inputs[0].Data, script) {
		t.Fatalf("expected unlocking script to embed the redeem script")
	}
}

func TestAssembleThresholdFailsBelowRequired(t *testing.T) {
	tx := &UnsignedTx{Inputs: []TxInput{{SpentTxID: "tx1", OutputIndex: 0}}}
	if _, err := AssembleThreshold(tx, [][]string{{"aa", "bb"}}, nil, 2); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
