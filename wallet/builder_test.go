package wallet

import (
	"math/big"
	"testing"
)

func fundNative(t *testing.T, s *MemoryStorage, addrEncoded string, values ...int64) {
	t.Helper()
	var outputs []TxOutput
	for _, v := range values {
		outputs = append(outputs, TxOutput{Value: big.NewInt(v), DecodedAddress: &addrEncoded})
	}
	tx := &HistoryTx{TxID: "fund-" + addrEncoded, Timestamp: 1, Outputs: outputs}
	if err := s.ProcessNewTx(tx); err != nil {
		t.Fatalf("ProcessNewTx(fund): %v", err)
	}
}

func TestSelectForValueGreedyLargestFirst(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	saveAddr(t, s, 0, addrA)
	fundNative(t, s, addrA, 10, 50, 5, 100)

	sel, err := SelectForValue(s, NativeTokenUID, big.NewInt(60), 0)
	if err != nil {
		t.Fatalf("SelectForValue: %v", err)
	}
	if len(sel.Chosen) != 1 || sel.Chosen[0].Value.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected the single largest utxo to cover target 60, got %+v", sel.Chosen)
	}
	if sel.Change.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected change of 40, got %s", sel.Change)
	}
}

func TestSelectForValueInsufficientFunds(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	saveAddr(t, s, 0, addrA)
	fundNative(t, s, addrA, 10, 20)

	if _, err := SelectForValue(s, NativeTokenUID, big.NewInt(1000), 0); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSelectForValueRespectsMaxNumberInputs(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	saveAddr(t, s, 0, addrA)
	fundNative(t, s, addrA, 10, 10, 10, 10)

	if _, err := SelectForValue(s, NativeTokenUID, big.NewInt(40), 2); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds when the value needs more utxos than the cap allows, got %v", err)
	}

	sel, err := SelectForValue(s, NativeTokenUID, big.NewInt(15), 2)
	if err != nil {
		t.Fatalf("SelectForValue: %v", err)
	}
	if len(sel.Chosen) != 2 {
		t.Fatalf("expected exactly 2 inputs selected under the cap, got %d", len(sel.Chosen))
	}
}

func TestSelectAuthorityNoneAvailable(t *testing.T) {
	s := newTestStorage(t)
	if _, err := SelectAuthority(s, "some-token", AuthorityMint); err != ErrNoAuthorityAvailable {
		t.Fatalf("expected ErrNoAuthorityAvailable, got %v", err)
	}
}

func TestBuildSendProducesChangeOutput(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	addrB := testAddr("addrB")
	addrChange := testAddr("addrChange")
	saveAddr(t, s, 0, addrA)
	fundNative(t, s, addrA, 100)

	tx, err := BuildSend(s, testParams(), []OutputSpec{{Address: addrB, Value: big.NewInt(30), Token: NativeTokenUID}}, addrChange)
	if err != nil {
		t.Fatalf("BuildSend: %v", err)
	}
	if len(tx.Inputs) != 1 {
		t.Fatalf("expected exactly one input, got %d", len(tx.Inputs))
	}
	if len(tx.Outputs) != 2 {
		t.Fatalf("expected a change output plus the requested output, got %d", len(tx.Outputs))
	}
	var sawChange, sawPayment bool
	for _, o := range tx.Outputs {
		if len(o.ScriptBytes) == 0 {
			t.Fatalf("expected every output to carry script bytes, got %+v", o)
		}
		switch {
		case o.DecodedAddress != nil && *o.DecodedAddress == addrChange && o.Value.Cmp(big.NewInt(70)) == 0:
			sawChange = true
		case o.DecodedAddress != nil && *o.DecodedAddress == addrB && o.Value.Cmp(big.NewInt(30)) == 0:
			sawPayment = true
		}
	}
	if !sawChange || !sawPayment {
		t.Fatalf("expected both change and payment outputs, got %+v", tx.Outputs)
	}
}

func TestBuildSendRejectsEmptyOutputs(t *testing.T) {
	s := newTestStorage(t)
	if _, err := BuildSend(s, testParams(), nil, testAddr("addrChange")); err != ErrInvalidTransaction {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestBuildCreateTokenFundsDepositAndMintsAuthorities(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	saveAddr(t, s, 0, addrA)
	fundNative(t, s, addrA, 1000)

	params := testParams()
	tx, err := BuildCreateToken(s, params, "new-token-uid", addrA, big.NewInt(500))
	if err != nil {
		t.Fatalf("BuildCreateToken: %v", err)
	}
	if len(tx.TokenTable) != 1 || tx.TokenTable[0] != "new-token-uid" {
		t.Fatalf("unexpected token table: %+v", tx.TokenTable)
	}

	var mintAuth, meltAuth, supply bool
	for _, o := range tx.Outputs {
		if len(o.ScriptBytes) == 0 {
			t.Fatalf("expected every output to carry script bytes, got %+v", o)
		}
		if o.TokenIndex != 1 {
			continue
		}
		switch {
		case o.IsAuthority && o.AuthorityBits == AuthorityMint:
			mintAuth = true
		case o.IsAuthority && o.AuthorityBits == AuthorityMelt:
			meltAuth = true
		case !o.IsAuthority && o.Value.Cmp(big.NewInt(500)) == 0:
			supply = true
		}
	}
	if !mintAuth || !meltAuth || !supply {
		t.Fatalf("expected mint authority, melt authority, and initial supply outputs, got %+v", tx.Outputs)
	}
	if len(tx.Inputs) == 0 {
		t.Fatalf("expected at least one native input funding the deposit")
	}
}

func TestBuildDestroyAuthorityRequiresCount(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	saveAddr(t, s, 0, addrA)

	authTx := &HistoryTx{TxID: "auth-tx", Timestamp: 1, Outputs: []TxOutput{
		{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: AuthorityMint, DecodedAddress: &addrA},
		{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: AuthorityMint, DecodedAddress: &addrA},
	}, TokenTable: []string{"tok"}}
	if err := s.ProcessNewTx(authTx); err != nil {
		t.Fatalf("ProcessNewTx: %v", err)
	}

	if _, err := BuildDestroyAuthority(s, "tok", AuthorityMint, 3); err != ErrNoAuthorityAvailable {
		t.Fatalf("expected ErrNoAuthorityAvailable when asking for more than available, got %v", err)
	}

	tx, err := BuildDestroyAuthority(s, "tok", AuthorityMint, 2)
	if err != nil {
		t.Fatalf("BuildDestroyAuthority: %v", err)
	}
	if len(tx.Inputs) != 2 {
		t.Fatalf("expected both authority utxos spent, got %d inputs", len(tx.Inputs))
	}
	if len(tx.Outputs) != 0 {
		t.Fatalf("expected no replacement output, got %+v", tx.Outputs)
	}
}

func TestBuildConsolidateSweepsAllUtxos(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	addrSweep := testAddr("addrSweep")
	saveAddr(t, s, 0, addrA)
	fundNative(t, s, addrA, 10, 20, 30)

	tx, err := BuildConsolidate(s, testParams(), NativeTokenUID, addrSweep)
	if err != nil {
		t.Fatalf("BuildConsolidate: %v", err)
	}
	if len(tx.Inputs) != 3 {
		t.Fatalf("expected all 3 utxos consumed, got %d inputs", len(tx.Inputs))
	}
	if len(tx.Outputs) != 1 || tx.Outputs[0].Value.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected a single swept output of 60, got %+v", tx.Outputs)
	}
	if len(tx.Outputs[0].ScriptBytes) == 0 {
		t.Fatalf("expected the swept output to carry script bytes")
	}
}

func TestBuildConsolidateRespectsMaxNumberInputs(t *testing.T) {
	s := newTestStorage(t)
	addrA := testAddr("addrA")
	addrSweep := testAddr("addrSweep")
	saveAddr(t, s, 0, addrA)
	fundNative(t, s, addrA, 10, 20, 30)

	params := testParams()
	params.MaxNumberInputs = 2
	tx, err := BuildConsolidate(s, params, NativeTokenUID, addrSweep)
	if err != nil {
		t.Fatalf("BuildConsolidate: %v", err)
	}
	if len(tx.Inputs) != 2 {
		t.Fatalf("expected consolidation capped at 2 inputs, got %d", len(tx.Inputs))
	}
}

func TestBuildConsolidateRejectsEmptyBalance(t *testing.T) {
	s := newTestStorage(t)
	if _, err := BuildConsolidate(s, testParams(), NativeTokenUID, testAddr("addrSweep")); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestDepositForRoundsUp(t *testing.T) {
	params := NetworkParams{TokenDepositPct: 1}
	d := depositFor(params, big.NewInt(150))
	if d.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected deposit of 2 (1%% of 150 rounded up), got %s", d)
	}
	d2 := depositFor(params, big.NewInt(100))
	if d2.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected deposit of 1 (1%% of 100 exactly), got %s", d2)
	}
}
