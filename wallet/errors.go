package wallet

import (
	"errors"
	"fmt"

	"github.com/HathorNetwork/hathor-wallet-core-go/pkg/utils"
)

// Sentinel errors surfaced to callers (§7). Use errors.Is to match.
var (
	ErrNotInitialized     = errors.New("wallet: not initialized")
	ErrReadOnly           = errors.New("wallet: operation requires a private key that is absent")
	ErrPinRequired        = errors.New("wallet: pin required")
	ErrWrongPin           = errors.New("wallet: wrong pin")
	ErrWrongPassword      = errors.New("wallet: wrong password")
	ErrAddressNotMine     = errors.New("wallet: address not mine")
	ErrInvalidAddress     = errors.New("wallet: invalid address")
	ErrInsufficientFunds  = errors.New("wallet: insufficient funds")
	ErrNoAuthorityAvailable = errors.New("wallet: no authority utxo available")
	ErrInvalidAuthorityKind = errors.New("wallet: invalid authority kind")
	ErrTxNotFound         = errors.New("wallet: transaction not found")
	ErrInvalidTransaction = errors.New("wallet: invalid transaction")
	ErrPolicyMismatch     = errors.New("wallet: policy mismatch")
	ErrUnsupportedSyncMode = errors.New("wallet: unsupported sync mode")
	ErrTokenNotSet        = errors.New("wallet: token not configured")
	ErrStopped            = errors.New("wallet: stopped")
	ErrNotImplemented     = errors.New("wallet: not implemented")
)

// NanoContractError wraps a message coming back from a contract invocation
// attempt. It is always non-retryable from the wallet's point of view.
type NanoContractError struct{ Message string }

func (e *NanoContractError) Error() string { return "nano contract: " + e.Message }

// TransportError is a retryable failure from the remote full-node collaborator.
type TransportError struct{ Err error }

func (e *TransportError) Error() string  { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error  { return e.Err }

// ProtocolError is a non-retryable failure: the remote collaborator responded,
// but the response violates the protocol contract the wallet expects.
type ProtocolError struct{ Err error }

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// wrap adds a component-local prefix to an error.
func wrap(err error, msg string) error { return utils.Wrap(err, msg) }
