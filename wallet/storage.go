package wallet

// Storage abstraction (C2). Grounded on the teacher's core/ledger.go (WAL +
// in-memory State/UTXO maps guarded by the ledger) and core/storage.go
// (constructor wiring a bounded cache + logger). The logical tables of §4.2
// (access, addresses, tx-history, utxo-index, token-registry, config) are
// modeled as a polymorphic interface so a persistent backend can replace
// MemoryStorage without touching the rest of the engine.

import (
	"math/big"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ScanPolicyKind selects between the two address-window policies (§4.5).
type ScanPolicyKind uint8

const (
	PolicyGapLimit ScanPolicyKind = iota + 1
	PolicyIndexLimit
)

// ScanPolicy configures the address-window policy in effect for a wallet.
type ScanPolicy struct {
	Kind ScanPolicyKind

	// GapLimit is used when Kind == PolicyGapLimit.
	GapLimit int

	// Start/End are used when Kind == PolicyIndexLimit. The window is
	// exactly [Start, End] inclusive.
	Start int
	End   int
}

// UtxoFilter narrows a SelectUtxos query (§4.2).
type UtxoFilter struct {
	Token         string
	AuthorityBits uint8 // 0 means "spendable value outputs only"
	MaxCount      int
	MinValue      *ValueBound
	MaxValue      *ValueBound
	Address       string
	OnlyAvailable bool // exclude locked/marked-selected utxos
	OrderByValue  SortOrder
}

// ValueBound is a big-int comparable bound used by UtxoFilter.
type ValueBound = big.Int

type SortOrder uint8

const (
	OrderNone SortOrder = iota
	OrderValueDescending
	OrderValueAscending
)

// TxSignatureMethod is the external-signing hook (§4.8, mode 2).
type TxSignatureMethod func(unsignedTxHex string, inputDescriptors []InputDescriptor) ([][]byte, error)

// InputDescriptor names, for one input, the prior output's owning address.
type InputDescriptor struct {
	InputIndex int
	Address    string
}

// Storage is the polymorphic persistence interface the rest of the engine
// depends on. MemoryStorage is the all-in-memory default; a persistent
// implementation (e.g. backed by a disk KV store) satisfies the same
// interface.
type Storage interface {
	LoadAccess() (*AccessData, error)
	SaveAccess(a *AccessData) error

	GetAddressAt(index uint32) (*Address, bool)
	SaveAddress(a *Address) error
	IterAddresses() []*Address // ordered by index

	IsAddressMine(encoded string) bool

	GetTx(txID string) (*HistoryTx, bool)
	AddTx(tx *HistoryTx) error // upsert; must not drop a new tx sharing an id
	IterHistory() []*HistoryTx

	IterTokenHistory(tokenUID string) []*HistoryTx // newest first

	SelectUtxos(filter UtxoFilter) ([]*Utxo, error)
	MarkSelected(txID string, outputIndex uint32, mark bool, ttl time.Duration) error

	GetToken(uid string) (*Token, bool)
	SaveToken(t *Token) error
	IterTokens() []*Token

	ProcessNewTx(tx *HistoryTx) error
	ProcessHistory() error

	SetScanPolicy(p ScanPolicy)
	GetScanPolicy() ScanPolicy

	GetTxSignatures(txHex string, pin string) ([][]byte, error)
	SetTxSignatureMethod(fn TxSignatureMethod)

	// SetRewardSpendMinBlocks configures the height-lock window used to
	// evaluate a mining-reward Utxo's locked/unlocked state (§4.4).
	SetRewardSpendMinBlocks(n uint64)
	// TipHeight returns the highest block height observed so far.
	TipHeight() uint64
	// RewardSpendMinBlocks returns the currently configured height-lock window.
	RewardSpendMinBlocks() uint64
	// Now returns the storage's clock time, so locking queries outside
	// MemoryStorage itself (GetTxBalanceFull) agree with its own notion of
	// wall-clock time in tests driven by a mock clock.
	Now() int64

	CleanStorage(cleanAddresses, cleanTokens bool) error
}

// MemoryStorage is the all-in-memory default implementation.
type MemoryStorage struct {
	mu sync.RWMutex

	log   *zap.Logger
	clock Clock

	access *AccessData

	addresses     map[uint32]*Address
	addrByEncoded map[string]uint32

	history map[string]*HistoryTx

	utxos map[UtxoKey]*Utxo

	tokens     map[string]*Token
	tokenCache *lru.Cache[string, *Token]

	// currentTipHeight and rewardSpendMinBlocks feed the height-lock half
	// of isLocked; currentTipHeight tracks the highest block height seen
	// across every materialized tx so far.
	currentTipHeight     uint64
	rewardSpendMinBlocks uint64

	scanPolicy ScanPolicy

	sigMethod TxSignatureMethod

	// signer is consulted by GetTxSignatures for local (non-external) signing;
	// it is nil until WireSigner is called by the facade.
	signer *Signer
}

// NewMemoryStorage constructs an empty, all-in-memory store. cacheEntries
// bounds the token-detail LRU cache (0 picks a sane default).
func NewMemoryStorage(log *zap.Logger, clk Clock, cacheEntries int) (*MemoryStorage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = realClock
	}
	if cacheEntries <= 0 {
		cacheEntries = 10_000
	}
	cache, err := lru.New[string, *Token](cacheEntries)
	if err != nil {
		return nil, err
	}
	s := &MemoryStorage{
		log:           log,
		clock:         clk,
		addresses:     make(map[uint32]*Address),
		addrByEncoded: make(map[string]uint32),
		history:       make(map[string]*HistoryTx),
		utxos:         make(map[UtxoKey]*Utxo),
		tokens:        make(map[string]*Token),
		tokenCache:    cache,
		scanPolicy:    ScanPolicy{Kind: PolicyGapLimit, GapLimit: 20},
	}
	native := NewToken(NativeTokenUID, "Hathor", "HTR")
	s.tokens[NativeTokenUID] = native
	log.Info("storage: initialised", zap.String("native_token", NativeTokenUID))
	return s, nil
}

func (s *MemoryStorage) LoadAccess() (*AccessData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.access == nil {
		return nil, ErrNotInitialized
	}
	return s.access, nil
}

func (s *MemoryStorage) SaveAccess(a *AccessData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = a
	return nil
}

func (s *MemoryStorage) GetAddressAt(index uint32) (*Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.addresses[index]
	return a, ok
}

func (s *MemoryStorage) SaveAddress(a *Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[a.DerivationIndex] = a
	s.addrByEncoded[a.EncodedForm] = a.DerivationIndex
	return nil
}

func (s *MemoryStorage) IterAddresses() []*Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Address, 0, len(s.addresses))
	for _, a := range s.addresses {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DerivationIndex < out[j].DerivationIndex })
	return out
}

func (s *MemoryStorage) IsAddressMine(encoded string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.addrByEncoded[encoded]
	return ok
}

func (s *MemoryStorage) GetTx(txID string) (*HistoryTx, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.history[txID]
	return tx, ok
}

// AddTx is a plain upsert with no derived-state side effects; ProcessNewTx
// is what materializes utxos/balances (§4.4).
func (s *MemoryStorage) AddTx(tx *HistoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[tx.TxID] = tx
	return nil
}

func (s *MemoryStorage) IterHistory() []*HistoryTx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*HistoryTx, 0, len(s.history))
	for _, tx := range s.history {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].TxID < out[j].TxID
	})
	return out
}

func (s *MemoryStorage) IterTokenHistory(tokenUID string) []*HistoryTx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*HistoryTx
	for _, tx := range s.history {
		if txTouchesToken(tx, tokenUID) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].TxID > out[j].TxID
	})
	return out
}

func txTouchesToken(tx *HistoryTx, tokenUID string) bool {
	if tokenUID == NativeTokenUID {
		for _, o := range tx.Outputs {
			if int(o.TokenIndex) == 0 {
				return true
			}
		}
		return len(tx.TokenTable) == 0
	}
	for _, uid := range tx.TokenTable {
		if uid == tokenUID {
			return true
		}
	}
	return false
}

// isLocked evaluates both locking rules from §4.4 against the storage's
// current view of wall-clock time and chain tip height. Called by
// recomputeLocksLocked every time derived state is rebuilt, so a reward
// that was locked at materialization time becomes unlocked the moment the
// tip height (or wall clock) advances past it, without needing its Utxo
// row touched directly.
func (s *MemoryStorage) isLocked(u *Utxo) bool {
	now := s.clock.Now().Unix()
	if u.Timelock != nil && now < *u.Timelock {
		return true
	}
	if u.BlockHeight != nil && s.currentTipHeight < *u.BlockHeight+s.rewardSpendMinBlocks {
		return true
	}
	return false
}

// SetRewardSpendMinBlocks configures the height-lock window (§6's
// reward_spend_min_blocks collaborator value).
func (s *MemoryStorage) SetRewardSpendMinBlocks(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewardSpendMinBlocks = n
}

// TipHeight returns the highest block height observed across every
// materialized transaction so far.
func (s *MemoryStorage) TipHeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTipHeight
}

// RewardSpendMinBlocks returns the currently configured height-lock window.
func (s *MemoryStorage) RewardSpendMinBlocks() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewardSpendMinBlocks
}

// Now returns the storage's own clock time in unix seconds.
func (s *MemoryStorage) Now() int64 { return s.clock.Now().Unix() }

// recomputeLocksLocked rebuilds every token's locked/unlocked balance
// split from the current utxo set, so a height or wall-clock advance that
// crosses a reward's or timelock's threshold is reflected immediately
// instead of staying pinned to its value at materialization time. Must
// hold s.mu.
func (s *MemoryStorage) recomputeLocksLocked() {
	for _, t := range s.tokens {
		t.Tokens.Unlocked.SetInt64(0)
		t.Tokens.Locked.SetInt64(0)
		t.Authorities.Mint.Unlocked.SetInt64(0)
		t.Authorities.Mint.Locked.SetInt64(0)
		t.Authorities.Melt.Unlocked.SetInt64(0)
		t.Authorities.Melt.Locked.SetInt64(0)
	}
	for _, u := range s.utxos {
		t, ok := s.tokens[u.TokenUID]
		if !ok {
			t = NewToken(u.TokenUID, "", "")
			s.tokens[u.TokenUID] = t
		}
		bucket := s.bucketForLocked(t, u)
		if s.isLocked(u) {
			bucket.Locked.Add(bucket.Locked, u.Value)
		} else {
			bucket.Unlocked.Add(bucket.Unlocked, u.Value)
		}
	}
}

func (s *MemoryStorage) SelectUtxos(filter UtxoFilter) ([]*Utxo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now().Unix()
	var candidates []*Utxo
	for _, u := range s.utxos {
		if filter.Token != "" && u.TokenUID != filter.Token {
			continue
		}
		if u.AuthorityBits != filter.AuthorityBits {
			continue
		}
		if filter.Address != "" && u.Address != filter.Address {
			continue
		}
		if filter.OnlyAvailable {
			if u.selectedAsInputTTL > now {
				continue
			}
			if s.isLocked(u) {
				continue
			}
		}
		if filter.MinValue != nil && u.Value.Cmp(filter.MinValue) < 0 {
			continue
		}
		if filter.MaxValue != nil && u.Value.Cmp(filter.MaxValue) > 0 {
			continue
		}
		candidates = append(candidates, u)
	}

	switch filter.OrderByValue {
	case OrderValueDescending:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Value.Cmp(candidates[j].Value) > 0 })
	case OrderValueAscending:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Value.Cmp(candidates[j].Value) < 0 })
	}

	if filter.MaxCount > 0 && len(candidates) > filter.MaxCount {
		candidates = candidates[:filter.MaxCount]
	}
	return candidates, nil
}

func (s *MemoryStorage) MarkSelected(txID string, outputIndex uint32, mark bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := UtxoKey{TxID: txID, OutputIndex: outputIndex}
	u, ok := s.utxos[key]
	if !ok {
		return ErrTxNotFound
	}
	if mark {
		u.selectedAsInputTTL = s.clock.Now().Add(ttl).Unix()
	} else {
		u.selectedAsInputTTL = 0
	}
	return nil
}

func (s *MemoryStorage) GetToken(uid string) (*Token, bool) {
	if t, ok := s.tokenCache.Get(uid); ok {
		return t, true
	}
	s.mu.RLock()
	t, ok := s.tokens[uid]
	s.mu.RUnlock()
	if ok {
		s.tokenCache.Add(uid, t)
	}
	return t, ok
}

func (s *MemoryStorage) SaveToken(t *Token) error {
	s.mu.Lock()
	s.tokens[t.UID] = t
	s.mu.Unlock()
	s.tokenCache.Add(t.UID, t)
	return nil
}

func (s *MemoryStorage) IterTokens() []*Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *MemoryStorage) SetScanPolicy(p ScanPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanPolicy = p
}

func (s *MemoryStorage) GetScanPolicy() ScanPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanPolicy
}

func (s *MemoryStorage) SetTxSignatureMethod(fn TxSignatureMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sigMethod = fn
}

func (s *MemoryStorage) GetTxSignatures(txHex string, pin string) ([][]byte, error) {
	s.mu.RLock()
	fn := s.sigMethod
	signer := s.signer
	s.mu.RUnlock()
	if fn != nil {
		return fn(txHex, nil)
	}
	if signer == nil {
		return nil, ErrReadOnly
	}
	return signer.SignHex(txHex, pin)
}

// WireSigner installs the local signer used when no external signature
// method has been configured.
func (s *MemoryStorage) WireSigner(signer *Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signer = signer
}

func (s *MemoryStorage) CleanStorage(cleanAddresses, cleanTokens bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make(map[string]*HistoryTx)
	s.utxos = make(map[UtxoKey]*Utxo)
	if cleanAddresses {
		s.addresses = make(map[uint32]*Address)
		s.addrByEncoded = make(map[string]uint32)
	}
	if cleanTokens {
		s.tokens = map[string]*Token{NativeTokenUID: NewToken(NativeTokenUID, "Hathor", "HTR")}
		s.tokenCache.Purge()
	}
	return nil
}
