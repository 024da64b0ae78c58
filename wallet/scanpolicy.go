package wallet

// Address scanning policy (C5). Grounded on the teacher's core/wallet.go
// address-derivation loop, generalized into two interchangeable policies:
// gap-limit (derive until N consecutive unused addresses trail the last
// used one) and index-limit (a fixed, caller-chosen window). Both are
// expressed against the Storage interface so the sync orchestrator can
// drive either one without knowing which is in effect.

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Scanner derives and maintains the address window according to the
// active ScanPolicy.
type Scanner struct {
	storage Storage
	account *ExtendedKey // account-level xpub/xpriv, neutered if watch-only
	kind    WalletKind
	params  NetworkParams

	// Threshold-only: every cosigner's account-level key (including this
	// wallet's own) and the number of signatures required.
	cosigners []*ExtendedKey
	required  int

	// usedMu guards used, a compact bitmap mirroring each derived address's
	// Used flag so gap-limit bookkeeping doesn't have to rescan all of
	// storage's addresses to find the highest used index.
	usedMu sync.Mutex
	used   *bitset.BitSet
}

// NewScanner builds a Scanner for a single-signer (P2PKH) wallet.
func NewScanner(storage Storage, account *ExtendedKey, params NetworkParams) *Scanner {
	return &Scanner{storage: storage, account: account, kind: KindSingle, params: params, used: bitset.New(256)}
}

// NewThresholdScanner builds a Scanner for an N-of-M P2SH wallet.
// cosigners must already include this wallet's own account key and be in
// the order the wallet wants to track (sorting happens internally, per
// index, to match BuildMultisigRedeemScript).
func NewThresholdScanner(storage Storage, cosigners []*ExtendedKey, required int, params NetworkParams) *Scanner {
	return &Scanner{storage: storage, kind: KindThreshold, cosigners: cosigners, required: required, params: params, used: bitset.New(256)}
}

// highestUsedIndex returns the highest bit set in the used-address bitmap,
// or -1 if no address has been used yet.
func (sc *Scanner) highestUsedIndex() int {
	sc.usedMu.Lock()
	defer sc.usedMu.Unlock()
	highest := -1
	for i, e := sc.used.NextSet(0); e; i, e = sc.used.NextSet(i + 1) {
		highest = int(i)
	}
	return highest
}

// EnsureWindow derives addresses as needed so the policy's invariant holds,
// given the current last-used index (or -1 if no address has been used
// yet). It returns the newly derived addresses, if any.
func (sc *Scanner) EnsureWindow(lastUsedIndex int) ([]*Address, error) {
	policy := sc.storage.GetScanPolicy()
	switch policy.Kind {
	case PolicyGapLimit:
		return sc.ensureGapLimit(lastUsedIndex, policy.GapLimit)
	case PolicyIndexLimit:
		return sc.ensureIndexLimit(policy.Start, policy.End)
	default:
		return nil, ErrPolicyMismatch
	}
}

func (sc *Scanner) ensureGapLimit(lastUsedIndex, gapLimit int) ([]*Address, error) {
	if gapLimit <= 0 {
		gapLimit = 20
	}
	highestDerived := -1
	for _, a := range sc.storage.IterAddresses() {
		if int(a.DerivationIndex) > highestDerived {
			highestDerived = int(a.DerivationIndex)
		}
	}
	target := lastUsedIndex + gapLimit
	var created []*Address
	for idx := highestDerived + 1; idx <= target; idx++ {
		a, err := sc.deriveAndSave(uint32(idx))
		if err != nil {
			return created, err
		}
		created = append(created, a)
	}
	return created, nil
}

func (sc *Scanner) ensureIndexLimit(start, end int) ([]*Address, error) {
	if end < start {
		return nil, ErrPolicyMismatch
	}
	existing := map[uint32]bool{}
	for _, a := range sc.storage.IterAddresses() {
		existing[a.DerivationIndex] = true
	}
	var created []*Address
	for idx := start; idx <= end; idx++ {
		if existing[uint32(idx)] {
			continue
		}
		a, err := sc.deriveAndSave(uint32(idx))
		if err != nil {
			return created, err
		}
		created = append(created, a)
	}
	return created, nil
}

func (sc *Scanner) deriveAndSave(index uint32) (*Address, error) {
	var encoded string
	switch sc.kind {
	case KindSingle:
		child, err := DeriveChildAddress(sc.account, index)
		if err != nil {
			return nil, wrap(err, "derive address")
		}
		encoded = EncodeAddress(sc.params.AddressByte, hash160(child.PublicKeyCompressed()))
	case KindThreshold:
		sorted, err := DeriveCosignerChildPubKeys(sc.cosigners, index)
		if err != nil {
			return nil, wrap(err, "derive cosigner pubkeys")
		}
		script, err := BuildMultisigRedeemScript(sorted, sc.required)
		if err != nil {
			return nil, wrap(err, "build redeem script")
		}
		encoded = EncodeAddress(sc.params.P2SHByte, hash160(script))
	default:
		return nil, ErrInvalidAuthorityKind
	}
	a := &Address{EncodedForm: encoded, DerivationIndex: index}
	if err := sc.storage.SaveAddress(a); err != nil {
		return nil, err
	}
	return a, nil
}

// MarkUsed records that an address received a transaction, then re-applies
// EnsureWindow so the policy's invariant is restored.
func (sc *Scanner) MarkUsed(index uint32) ([]*Address, error) {
	a, ok := sc.storage.GetAddressAt(index)
	if !ok {
		return nil, ErrAddressNotMine
	}
	a.Used = true
	a.NumTransactions++
	if err := sc.storage.SaveAddress(a); err != nil {
		return nil, err
	}
	sc.usedMu.Lock()
	sc.used.Set(uint(index))
	sc.usedMu.Unlock()
	return sc.EnsureWindow(int(index))
}

// NextUnusedAddress returns the lowest-index address that has never
// received a transaction, deriving one first if the window is exhausted.
func (sc *Scanner) NextUnusedAddress() (*Address, error) {
	addrs := sc.storage.IterAddresses()
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].DerivationIndex < addrs[j].DerivationIndex })
	for _, a := range addrs {
		if !a.Used {
			return a, nil
		}
	}
	lastIdx := sc.highestUsedIndex()
	created, err := sc.EnsureWindow(lastIdx)
	if err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, ErrPolicyMismatch
	}
	return created[0], nil
}
