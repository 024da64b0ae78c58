// Package wallet implements the in-memory engine of a client-side wallet for
// a DAG-based UTXO ledger: key derivation, a local view of the chain, a
// history processor, scan policies, sync orchestration and a transaction
// builder/signer. Transport, mining and persistence back ends are
// collaborators, injected through the interfaces in this package.
package wallet

import (
	"math/big"
	"strconv"
)

// WalletKind distinguishes the two supported account layouts.
type WalletKind uint8

const (
	// KindSingle is a plain P2PKH wallet with one signer.
	KindSingle WalletKind = iota + 1
	// KindThreshold is an N-of-M P2SH multisig wallet.
	KindThreshold
)

// NativeTokenUID is the ledger's built-in token.
const NativeTokenUID = "00"

// Authority bit flags of an authority output (§4.3). On the wire they are
// carried in the output's value field; token_data's bit 7 only marks the
// output as an authority.
const (
	AuthorityMint uint8 = 1 << 0
	AuthorityMelt uint8 = 1 << 1
)

// AccessData is the per-wallet singleton holding key material (encrypted)
// and, for threshold wallets, the cosigner set.
type AccessData struct {
	WalletKind WalletKind

	// EncryptedMainXPriv is nil for watch-only wallets.
	EncryptedMainXPriv *EncryptedBlob
	// EncryptedSeedWords is nil when the wallet was created from an xpriv/xpub directly.
	EncryptedSeedWords *EncryptedBlob

	AccountXPub string

	// Threshold-only fields.
	SortedAccountPubKeys []string // hex, lexicographically sorted
	RequiredSignatures   int
	OwnAccountPubKey     string // hex
}

// IsWatchOnly reports whether this access data carries no private material
// and has no external signer installed (checked by the caller).
func (a *AccessData) IsWatchOnly() bool {
	return a.EncryptedMainXPriv == nil
}

// EncryptedBlob is authenticated-encrypted secret material at rest.
type EncryptedBlob struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// Address is a derived, encoded wallet address.
type Address struct {
	EncodedForm      string
	DerivationIndex  uint32
	NumTransactions  int
	Used             bool
	SequenceCounter  uint64 // nano-contract replay protection
}

// HistoryTx is a transaction as observed locally.
type HistoryTx struct {
	TxID             string // hex, 32 bytes
	Version          uint16
	Weight           float64
	Timestamp        int64
	Height           *uint64
	IsVoided         bool
	FirstBlock       *string
	ProcessingStatus ProcessingStatus
	Parents          []string
	Inputs           []TxInput
	Outputs          []TxOutput
	TokenTable       []string // token uids referenced by non-zero token_data indices
	NanoHeader       *NanoHeader
}

// ProcessingStatus tracks whether a tx's derived state has fully settled.
type ProcessingStatus uint8

const (
	StatusProcessing ProcessingStatus = iota + 1
	StatusFinished
)

// TxInput references a previously created output.
type TxInput struct {
	SpentTxID   string
	OutputIndex uint32
	Data        []byte // signature/script input data, once signed
}

// TxOutput is a transaction output as recorded in history.
type TxOutput struct {
	Value          *big.Int // 256-bit signed
	TokenIndex     uint8    // low bits index into TokenTable, 0 = native
	IsAuthority    bool
	AuthorityBits  uint8
	ScriptBytes    []byte
	DecodedAddress *string
	Timelock       *int64
	SpentBy        *string // tx_id of the spender, nil if unspent
}

// NanoHeader carries an optional contract invocation.
type NanoHeader struct {
	Method         string
	Args           []byte
	Actions        []byte
	CallerPubKey   []byte
	SequenceNumber uint64
}

// Utxo is a derived, non-authoritative view over an unspent output.
type Utxo struct {
	TxID          string
	OutputIndex   uint32
	Address       string
	TokenUID      string
	Value         *big.Int
	AuthorityBits uint8
	Timelock      *int64
	BlockHeight   *uint64

	// selectedAsInputTTL is the wall-clock deadline until which this utxo is
	// considered reserved by mark_selected and excluded from selection.
	selectedAsInputTTL int64
}

// Key returns the canonical (tx_id, output_index) identity of this utxo.
func (u Utxo) Key() UtxoKey { return UtxoKey{TxID: u.TxID, OutputIndex: u.OutputIndex} }

// UtxoKey identifies an output uniquely.
type UtxoKey struct {
	TxID        string
	OutputIndex uint32
}

func (k UtxoKey) String() string { return k.TxID + ":" + strconv.FormatUint(uint64(k.OutputIndex), 10) }

// TokenBalance is the unlocked/locked split of a balance figure.
type TokenBalance struct {
	Unlocked *big.Int
	Locked   *big.Int
}

// AuthorityBalance tracks mint/melt authority counts.
type AuthorityBalance struct {
	Mint TokenBalance
	Melt TokenBalance
}

// Token is the registry entry for a custom or native token.
type Token struct {
	UID             string
	Name            string
	Symbol          string
	Version         uint8
	NumTransactions int
	Tokens          TokenBalance
	Authorities     AuthorityBalance
}

// NetworkParams carries the chain constants a wallet needs to encode
// addresses and enforce reward-lock/deposit rules; sourced from
// pkg/config at startup.
type NetworkParams struct {
	AddressByte       byte
	P2SHByte          byte
	TokenDepositPct   int
	RewardSpendBlocks uint64

	// MaxNumberInputs is the orchestrator's get_version() max_number_inputs:
	// selection and consolidation both stop accumulating utxos at this
	// count even if the target value hasn't been reached yet. Zero means
	// unbounded (no collaborator value known).
	MaxNumberInputs int
}

func zero() *big.Int { return big.NewInt(0) }

// NewToken returns an empty, zero-balance Token entry.
func NewToken(uid, name, symbol string) *Token {
	return &Token{
		UID:    uid,
		Name:   name,
		Symbol: symbol,
		Tokens: TokenBalance{Unlocked: zero(), Locked: zero()},
		Authorities: AuthorityBalance{
			Mint: TokenBalance{Unlocked: zero(), Locked: zero()},
			Melt: TokenBalance{Unlocked: zero(), Locked: zero()},
		},
	}
}
