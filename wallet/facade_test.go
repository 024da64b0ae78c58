package wallet

import (
	"context"
	"math/big"
	"testing"
)

func newTestWallet(t *testing.T) (*Wallet, <-chan RawTxEvent) {
	t.Helper()
	s := newTestStorage(t)
	s.SetScanPolicy(ScanPolicy{Kind: PolicyGapLimit, GapLimit: 2})
	master := testMasterKey(t)
	account, err := DeriveAccount(master, KindSingle)
	if err != nil {
		t.Fatalf("DeriveAccount: %v", err)
	}
	scanner := NewScanner(s, account, testParams())
	stream := &fakeStream{ch: make(chan RawTxEvent)}
	orch := NewOrchestrator(s, scanner, stream, nil, 0, nil, nil)
	w := NewWallet(s, scanner, orch, testParams(), nil)
	return w, stream.ch
}

func TestWalletOpenReachesReady(t *testing.T) {
	w, _ := newTestWallet(t)
	if w.State() != StateClosed {
		t.Fatalf("expected initial state closed, got %s", w.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if w.State() != StateReady {
		t.Fatalf("expected state ready after Open, got %s", w.State())
	}
}

func TestWalletOpenTwiceFails(t *testing.T) {
	w, _ := newTestWallet(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Open(ctx); err != ErrInvalidTransaction {
		t.Fatalf("expected ErrInvalidTransaction re-opening an already-open wallet, got %v", err)
	}
}

func TestWalletSubscribeReceivesEventsThenClosesOnClose(t *testing.T) {
	w, _ := newTestWallet(t)
	sub := w.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	w.Close()
	if w.State() != StateClosed {
		t.Fatalf("expected state closed after Close, got %s", w.State())
	}

	received := 0
	for range sub {
		received++
	}
	if received == 0 {
		t.Fatalf("expected state events delivered before the subscriber channel closed")
	}
}

func TestWalletSendTransactionRequiresReadyAndSigner(t *testing.T) {
	w, _ := newTestWallet(t)
	if _, err := w.SendTransaction(nil, "addrChange"); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized before Open, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := w.SendTransaction(nil, "addrChange"); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly without a wired signer, got %v", err)
	}
}

func TestWalletGetBalanceReservedNotImplemented(t *testing.T) {
	w, _ := newTestWallet(t)
	if _, err := w.GetBalance(NativeTokenUID); err != ErrNotImplemented {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestWalletSendTransactionSignsAfterWireSigner(t *testing.T) {
	s := newTestStorage(t)
	s.SetScanPolicy(ScanPolicy{Kind: PolicyGapLimit, GapLimit: 2})
	master := testMasterKey(t)
	account, err := DeriveAccount(master, KindSingle)
	if err != nil {
		t.Fatalf("DeriveAccount: %v", err)
	}
	scanner := NewScanner(s, account, testParams())
	stream := &fakeStream{ch: make(chan RawTxEvent)}
	orch := NewOrchestrator(s, scanner, stream, nil, 0, nil, nil)
	w := NewWallet(s, scanner, orch, testParams(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	funded, ok := w.GetAddressAt(0)
	if !ok {
		t.Fatalf("expected an address derived at index 0 after Open")
	}
	fundNative(t, s, funded.EncodedForm, 100)

	signer, err := NewSigner(s, account)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	w.WireSigner(signer)

	signed, err := w.SendTransaction([]OutputSpec{{Address: testAddr("dest"), Value: big.NewInt(40), Token: NativeTokenUID}}, funded.EncodedForm)
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if len(signed.Inputs) == 0 || len(signed.Inputs[0].Data) == 0 {
		t.Fatalf("expected a signed input with unlocking script data, got %+v", signed.Inputs)
	}

	if !w.IsAddressMine(funded.EncodedForm) {
		t.Fatalf("expected the funded address to be recognized as the wallet's own")
	}
	if len(w.ListAddresses()) == 0 {
		t.Fatalf("expected at least one derived address listed")
	}
}

func TestWalletGetTxHistoryRejectsUnconfiguredToken(t *testing.T) {
	w, _ := newTestWallet(t)
	if _, err := w.GetTxHistory("never-registered-token"); err != ErrTokenNotSet {
		t.Fatalf("expected ErrTokenNotSet, got %v", err)
	}
}
