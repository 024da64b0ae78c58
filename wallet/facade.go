package wallet

// Wallet facade (C9). Grounded on the teacher's core/event_management.go
// pub/sub dispatcher and its connection-state handling in core/network.go,
// generalized into an explicit state machine: a caller opens a Wallet,
// watches it move CLOSED -> CONNECTING -> SYNCING -> PROCESSING -> READY
// (or -> ERROR at any step), and receives typed events along the way.

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// State is a wallet's lifecycle stage.
type State uint32

const (
	StateClosed State = iota
	StateConnecting
	StateSyncing
	StateProcessing
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateProcessing:
		return "processing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to a Wallet's subscribers on every state transition
// and every processed transaction.
type Event struct {
	State State
	Tx    *HistoryTx
	Addr  []*Address
	Err   error
}

// Wallet is the public facade: it owns storage, the scanner, the sync
// orchestrator and (when unlocked) a signer, and exposes the wallet
// lifecycle as a small state machine with a subscribable event stream.
type Wallet struct {
	mu sync.RWMutex

	state atomic.Uint32

	storage      Storage
	scanner      *Scanner
	orchestrator *Orchestrator
	signer       *Signer
	params       NetworkParams

	log     *logrus.Logger
	metrics *Metrics

	subsMu sync.Mutex
	subs   []chan Event

	cancel context.CancelFunc
	runErr error
}

// NewWallet assembles a Wallet from its already-constructed collaborators.
// It starts CLOSED; call Open to begin connecting.
func NewWallet(storage Storage, scanner *Scanner, orchestrator *Orchestrator, params NetworkParams, log *logrus.Logger) *Wallet {
	if log == nil {
		log = logrus.New()
	}
	w := &Wallet{storage: storage, scanner: scanner, orchestrator: orchestrator, params: params, log: log}
	w.state.Store(uint32(StateClosed))
	return w
}

// State returns the wallet's current lifecycle stage.
func (w *Wallet) State() State { return State(w.state.Load()) }

// Subscribe returns a channel of future events. The channel is closed when
// Close is called.
func (w *Wallet) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	w.subsMu.Lock()
	w.subs = append(w.subs, ch)
	w.subsMu.Unlock()
	return ch
}

func (w *Wallet) publish(ev Event) {
	w.mu.RLock()
	m := w.metrics
	w.mu.RUnlock()
	if m != nil {
		m.observeEvent(ev)
	}

	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
			w.log.Warn("facade: subscriber channel full, dropping event")
		}
	}
}

func (w *Wallet) setState(s State, err error) {
	w.state.Store(uint32(s))
	w.publish(Event{State: s, Err: err})
}

// WireMetrics attaches a prometheus-backed Metrics instance.
func (w *Wallet) WireMetrics(m *Metrics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics = m
}

// WireSigner installs a local signer once the wallet is unlocked (§4.1/§4.8).
func (w *Wallet) WireSigner(signer *Signer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signer = signer
	if ms, ok := w.storage.(*MemoryStorage); ok {
		ms.WireSigner(signer)
	}
}

// Open transitions CLOSED -> CONNECTING -> SYNCING -> PROCESSING -> READY,
// starting the sync orchestrator's Run loop in the background and forwarding
// its events until ctx is cancelled or Close is called.
func (w *Wallet) Open(ctx context.Context) error {
	if w.State() != StateClosed {
		return ErrInvalidTransaction
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.setState(StateConnecting, nil)

	if _, err := w.scanner.EnsureWindow(-1); err != nil {
		w.setState(StateError, err)
		return err
	}

	w.setState(StateSyncing, nil)

	go func() {
		if err := w.orchestrator.Run(runCtx); err != nil && runCtx.Err() == nil {
			w.mu.Lock()
			w.runErr = err
			w.mu.Unlock()
			w.setState(StateError, err)
		}
	}()

	go w.forward(runCtx)

	w.setState(StateProcessing, nil)
	w.setState(StateReady, nil)
	return nil
}

func (w *Wallet) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.orchestrator.Events():
			if !ok {
				return
			}
			w.mu.RLock()
			m := w.metrics
			w.mu.RUnlock()
			if m != nil {
				m.observeSync(ev)
			}
			switch ev.Kind {
			case EventTxProcessed:
				w.publish(Event{State: w.State(), Tx: ev.Tx})
			case EventAddressesDerived:
				w.publish(Event{State: w.State(), Addr: ev.Addr})
			case EventTransportDegraded:
				w.log.WithError(ev.Err).Warn("facade: transport degraded")
			case EventError:
				w.publish(Event{State: w.State(), Err: ev.Err})
			}
		}
	}
}

// LastError returns the error that drove the wallet into StateError, if any.
func (w *Wallet) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runErr
}

// Close stops the sync loop and transitions to CLOSED, closing every
// subscriber channel.
func (w *Wallet) Close() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.state.Store(uint32(StateClosed))

	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, ch := range w.subs {
		close(ch)
	}
	w.subs = nil
}

// Unlock decrypts AccessData's main xpriv under pin and installs a
// single-signer Signer, making SendTransaction and the other build-and-sign
// methods usable. Threshold wallets coordinate cosigner material outside
// the facade's knowledge and must call WireSigner directly with a
// NewThresholdSigner instead.
func (w *Wallet) Unlock(pin string) error {
	access, err := w.storage.LoadAccess()
	if err != nil {
		return err
	}
	if access.WalletKind == KindThreshold {
		return ErrInvalidAuthorityKind
	}
	account, err := UnlockMainXPriv(access, pin)
	if err != nil {
		return err
	}
	signer, err := NewSigner(w.storage, account)
	if err != nil {
		return err
	}
	w.WireSigner(signer)
	return nil
}

// buildSignAssemble runs build, signs the result with the installed signer
// and assembles a P2PKH-spendable SignedTx, sharing the readiness/signer
// checks every build-and-sign facade method needs.
func (w *Wallet) buildSignAssemble(build func() (*UnsignedTx, error)) (*SignedTx, error) {
	if w.State() != StateReady {
		return nil, ErrNotInitialized
	}
	w.mu.RLock()
	signer := w.signer
	w.mu.RUnlock()
	if signer == nil {
		return nil, ErrReadOnly
	}
	tx, err := build()
	if err != nil {
		return nil, err
	}
	sigs, err := signer.SignUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	return signer.AssembleP2PKH(tx, sigs)
}

// SendTransaction builds, signs and hands off a plain value transfer. The
// caller is responsible for broadcasting the returned SignedTx to the
// remote collaborator; the facade does not own transport for writes.
func (w *Wallet) SendTransaction(outputs []OutputSpec, changeAddress string) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return BuildSend(w.storage, w.params, outputs, changeAddress)
	})
}

// CreateToken issues a brand-new token with an initial supply plus mint and
// melt authorities, funding the deposit from the wallet's native balance.
func (w *Wallet) CreateToken(tokenUID, ownerAddress string, initialSupply *big.Int) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return BuildCreateToken(w.storage, w.params, tokenUID, ownerAddress, initialSupply)
	})
}

// Mint spends a mint authority to create more supply of an existing token.
func (w *Wallet) Mint(tokenUID, destAddress string, amount *big.Int) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return BuildMint(w.storage, w.params, tokenUID, destAddress, amount)
	})
}

// Melt spends token supply and a melt authority, releasing the
// proportional native-token deposit.
func (w *Wallet) Melt(tokenUID, refundAddress string, amount *big.Int) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return BuildMelt(w.storage, w.params, tokenUID, refundAddress, amount)
	})
}

// DelegateAuthority moves a mint or melt authority to a new address.
func (w *Wallet) DelegateAuthority(tokenUID string, bit uint8, destAddress string, keepMine bool) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return BuildDelegateAuthority(w.storage, w.params, tokenUID, bit, destAddress, keepMine)
	})
}

// DestroyAuthority permanently revokes count authority utxos of the given kind.
func (w *Wallet) DestroyAuthority(tokenUID string, bit uint8, count int) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return BuildDestroyAuthority(w.storage, tokenUID, bit, count)
	})
}

// Consolidate sweeps a token's available utxos into one output.
func (w *Wallet) Consolidate(tokenUID, destAddress string) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return BuildConsolidate(w.storage, w.params, tokenUID, destAddress)
	})
}

// RunTemplate interprets and builds a declarative transaction template,
// then signs and assembles it.
func (w *Wallet) RunTemplate(t *Template) (*SignedTx, error) {
	return w.buildSignAssemble(func() (*UnsignedTx, error) {
		return InterpretTemplate(w.storage, w.params, t)
	})
}

// GetBalance is reserved per §4.9: the wallet's engine tracks balances
// per-token incrementally (Token.Tokens/Authorities, kept current by
// recomputeLocksLocked), but no aggregate get_balance query was specified
// for the facade layer itself.
func (w *Wallet) GetBalance(token string) (*TokenBalance, error) {
	return nil, ErrNotImplemented
}

// GetToken fetches a token's registry entry (name, symbol, balances).
func (w *Wallet) GetToken(uid string) (*Token, bool) {
	return w.storage.GetToken(uid)
}

// GetTx looks up a single transaction by id.
func (w *Wallet) GetTx(txID string) (*HistoryTx, bool) {
	return w.storage.GetTx(txID)
}

// GetTxHistory returns every transaction touching token, rejecting an
// unconfigured token with ErrTokenNotSet (§9).
func (w *Wallet) GetTxHistory(token string) ([]*HistoryTx, error) {
	return GetTxHistory(w.storage, token)
}

// GetTxBalance reports tx's buggy-by-design collapsed balance figure for
// token (§9); GetTxBalanceFull reports the lock-aware, authority-excluding
// figure.
func (w *Wallet) GetTxBalance(tx *HistoryTx, token string) (*big.Int, error) {
	return GetTxBalance(w.storage, tx, token)
}

// GetTxBalanceFull reports tx's locked/unlocked balance split for token.
func (w *Wallet) GetTxBalanceFull(tx *HistoryTx, token string) (*TokenBalance, error) {
	return GetTxBalanceFull(w.storage, tx, token)
}

// IsAddressMine reports whether encoded was derived by this wallet.
func (w *Wallet) IsAddressMine(encoded string) bool {
	return w.storage.IsAddressMine(encoded)
}

// GetAddressAt returns the address derived at index, if any.
func (w *Wallet) GetAddressAt(index uint32) (*Address, bool) {
	return w.storage.GetAddressAt(index)
}

// ListAddresses returns every derived address, ordered by index.
func (w *Wallet) ListAddresses() []*Address {
	return w.storage.IterAddresses()
}

// TxAddresses returns every address tx's inputs and outputs touch, with no
// duplicates, in the order first seen (outputs before inputs).
func (w *Wallet) TxAddresses(tx *HistoryTx) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr *string) {
		if addr == nil || seen[*addr] {
			return
		}
		seen[*addr] = true
		out = append(out, *addr)
	}
	for _, o := range tx.Outputs {
		add(o.DecodedAddress)
	}
	for _, in := range tx.Inputs {
		prior, ok := w.storage.GetTx(in.SpentTxID)
		if !ok || int(in.OutputIndex) >= len(prior.Outputs) {
			continue
		}
		add(prior.Outputs[in.OutputIndex].DecodedAddress)
	}
	return out
}
