package wallet

import (
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStorage(t *testing.T) *MemoryStorage {
	t.Helper()
	s, err := NewMemoryStorage(zap.NewNop(), nil, 0)
	if err != nil {
		t.Fatalf("NewMemoryStorage: %v", err)
	}
	return s
}

func saveAddr(t *testing.T, s *MemoryStorage, index uint32, encoded string) {
	t.Helper()
	if err := s.SaveAddress(&Address{EncodedForm: encoded, DerivationIndex: index}); err != nil {
		t.Fatalf("SaveAddress: %v", err)
	}
}

func addr(s string) *string { return &s }

func TestProcessNewTxMaterializesUtxoAndBalance(t *testing.T) {
	s := newTestStorage(t)
	saveAddr(t, s, 0, "addrA")

	tx := &HistoryTx{
		TxID:      "tx1",
		Timestamp: 1,
		Outputs: []TxOutput{
			{Value: big.NewInt(100), TokenIndex: 0, DecodedAddress: addr("addrA")},
		},
	}
	if err := s.ProcessNewTx(tx); err != nil {
		t.Fatalf("ProcessNewTx: %v", err)
	}

	utxos, err := s.SelectUtxos(UtxoFilter{Token: NativeTokenUID})
	if err != nil {
		t.Fatalf("SelectUtxos: %v", err)
	}
	if len(utxos) != 1 || utxos[0].Value.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected one 100-value utxo, got %+v", utxos)
	}

	token, ok := s.GetToken(NativeTokenUID)
	if !ok {
		t.Fatalf("expected native token to be registered")
	}
	if token.Tokens.Unlocked.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected unlocked balance 100, got %s", token.Tokens.Unlocked)
	}
}

func TestProcessNewTxSpendsPriorOutput(t *testing.T) {
	s := newTestStorage(t)
	saveAddr(t, s, 0, "addrA")
	saveAddr(t, s, 1, "addrB")

	funding := &HistoryTx{
		TxID:      "tx1",
		Timestamp: 1,
		Outputs:   []TxOutput{{Value: big.NewInt(100), DecodedAddress: addr("addrA")}},
	}
	if err := s.ProcessNewTx(funding); err != nil {
		t.Fatalf("ProcessNewTx(funding): %v", err)
	}

	spend := &HistoryTx{
		TxID:      "tx2",
		Timestamp: 2,
		Inputs:    []TxInput{{SpentTxID: "tx1", OutputIndex: 0}},
		Outputs:   []TxOutput{{Value: big.NewInt(100), DecodedAddress: addr("addrB")}},
	}
	if err := s.ProcessNewTx(spend); err != nil {
		t.Fatalf("ProcessNewTx(spend): %v", err)
	}

	utxos, err := s.SelectUtxos(UtxoFilter{Token: NativeTokenUID})
	if err != nil {
		t.Fatalf("SelectUtxos: %v", err)
	}
	if len(utxos) != 1 || utxos[0].Address != "addrB" {
		t.Fatalf("expected exactly one utxo owned by addrB, got %+v", utxos)
	}

	token, _ := s.GetToken(NativeTokenUID)
	if token.Tokens.Unlocked.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance to still be 100 after the internal transfer, got %s", token.Tokens.Unlocked)
	}
}

func TestVoidCascadesToDescendant(t *testing.T) {
	s := newTestStorage(t)
	saveAddr(t, s, 0, "addrA")
	saveAddr(t, s, 1, "addrB")

	funding := &HistoryTx{TxID: "tx1", Timestamp: 1, Outputs: []TxOutput{{Value: big.NewInt(50), DecodedAddress: addr("addrA")}}}
	if err := s.ProcessNewTx(funding); err != nil {
		t.Fatalf("ProcessNewTx(funding): %v", err)
	}
	spend := &HistoryTx{
		TxID:      "tx2",
		Timestamp: 2,
		Inputs:    []TxInput{{SpentTxID: "tx1", OutputIndex: 0}},
		Outputs:   []TxOutput{{Value: big.NewInt(50), DecodedAddress: addr("addrB")}},
	}
	if err := s.ProcessNewTx(spend); err != nil {
		t.Fatalf("ProcessNewTx(spend): %v", err)
	}

	voided := *funding
	voided.IsVoided = true
	if err := s.ProcessNewTx(&voided); err != nil {
		t.Fatalf("ProcessNewTx(void): %v", err)
	}

	spenderAfter, ok := s.GetTx("tx2")
	if !ok {
		t.Fatalf("expected tx2 to still be present")
	}
	if !spenderAfter.IsVoided {
		t.Fatalf("voiding tx1 must cascade to void tx2")
	}

	utxos, err := s.SelectUtxos(UtxoFilter{Token: NativeTokenUID})
	if err != nil {
		t.Fatalf("SelectUtxos: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("expected no live utxos after cascade void, got %+v", utxos)
	}
	token, _ := s.GetToken(NativeTokenUID)
	if token.Tokens.Unlocked.Sign() != 0 {
		t.Fatalf("expected zero balance after cascade void, got %s", token.Tokens.Unlocked)
	}
}

func TestProcessHistoryIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	saveAddr(t, s, 0, "addrA")
	tx := &HistoryTx{TxID: "tx1", Timestamp: 1, Outputs: []TxOutput{{Value: big.NewInt(7), DecodedAddress: addr("addrA")}}}
	if err := s.ProcessNewTx(tx); err != nil {
		t.Fatalf("ProcessNewTx: %v", err)
	}

	if err := s.ProcessHistory(); err != nil {
		t.Fatalf("ProcessHistory: %v", err)
	}
	if err := s.ProcessHistory(); err != nil {
		t.Fatalf("ProcessHistory (second pass): %v", err)
	}

	token, _ := s.GetToken(NativeTokenUID)
	if token.Tokens.Unlocked.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected balance 7 after repeated replay, got %s", token.Tokens.Unlocked)
	}
}

func TestRewardHeightLockHoldsUntilTipAdvances(t *testing.T) {
	s := newTestStorage(t)
	saveAddr(t, s, 0, "addrA")
	s.SetRewardSpendMinBlocks(3)

	height := uint64(10)
	reward := &HistoryTx{
		TxID:      "reward-tx",
		Timestamp: 1,
		Height:    &height,
		Outputs:   []TxOutput{{Value: big.NewInt(50), DecodedAddress: addr("addrA")}},
	}
	if err := s.ProcessNewTx(reward); err != nil {
		t.Fatalf("ProcessNewTx(reward): %v", err)
	}

	token, _ := s.GetToken(NativeTokenUID)
	if token.Tokens.Unlocked.Sign() != 0 {
		t.Fatalf("expected a reward output below the tip+minBlocks window to be locked, got unlocked=%s", token.Tokens.Unlocked)
	}
	if token.Tokens.Locked.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected locked balance 50, got %s", token.Tokens.Locked)
	}

	utxos, err := s.SelectUtxos(UtxoFilter{Token: NativeTokenUID, OnlyAvailable: true})
	if err != nil {
		t.Fatalf("SelectUtxos: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("expected the locked reward utxo to be excluded from selection, got %+v", utxos)
	}

	advanceHeight := height + 3
	advance := &HistoryTx{
		TxID:      "advance-tx",
		Timestamp: 2,
		Height:    &advanceHeight,
		Outputs:   []TxOutput{{Value: big.NewInt(1), DecodedAddress: addr("addrA")}},
	}
	if err := s.ProcessNewTx(advance); err != nil {
		t.Fatalf("ProcessNewTx(advance): %v", err)
	}

	// The reward utxo (height 10) is now 3 blocks behind the new tip (13)
	// and unlocks; the advance tx's own output (height 13) is freshly
	// mined and is itself locked for the next 3 blocks.
	token, _ = s.GetToken(NativeTokenUID)
	if token.Tokens.Unlocked.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected the reward to unlock once the tip advances past height+minBlocks, got unlocked=%s", token.Tokens.Unlocked)
	}
	if token.Tokens.Locked.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected the freshly mined output to still be locked, got %s", token.Tokens.Locked)
	}
}

func TestMarkSelectedExcludesFromSelection(t *testing.T) {
	s := newTestStorage(t)
	saveAddr(t, s, 0, "addrA")
	tx := &HistoryTx{TxID: "tx1", Timestamp: 1, Outputs: []TxOutput{{Value: big.NewInt(10), DecodedAddress: addr("addrA")}}}
	if err := s.ProcessNewTx(tx); err != nil {
		t.Fatalf("ProcessNewTx: %v", err)
	}

	if err := s.MarkSelected("tx1", 0, true, time.Minute); err != nil {
		t.Fatalf("MarkSelected: %v", err)
	}
	utxos, err := s.SelectUtxos(UtxoFilter{Token: NativeTokenUID, OnlyAvailable: true})
	if err != nil {
		t.Fatalf("SelectUtxos: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("expected marked-selected utxo to be excluded, got %+v", utxos)
	}
}
