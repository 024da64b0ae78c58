package wallet

// Transaction history processing (C4). Grounded on the teacher's
// core/ledger.go (WAL replay feeding a State map, playing transactions back
// in order to reach a current view) generalized to a DAG ledger where a
// transaction can be voided and later un-voided, and where voiding a
// transaction must cascade to everything that spent its outputs.
//
// process_new_tx is the incremental path (one transaction arrives from
// sync); process_history is the full idempotent replay used after a
// metadata-only reload or a first-time snapshot restore. Both funnel
// through materializeTxLocked/voidTxLocked to maintain the utxo index, then
// call recomputeLocksLocked so the locked/unlocked balance split stays a
// pure function of the current utxo set, chain tip height and wall clock
// (§4.4) rather than being frozen at each utxo's materialization time.

import (
	"math/big"
	"sort"
)

// ProcessNewTx ingests a single transaction observed from sync, updating
// the derived utxo index and token balances. It is idempotent: replaying
// the same transaction (same voided state) is a no-op on derived state.
func (s *MemoryStorage) ProcessNewTx(tx *HistoryTx) error {
	if tx == nil || tx.TxID == "" {
		return ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, existed := s.history[tx.TxID]
	s.history[tx.TxID] = tx

	switch {
	case !existed && !tx.IsVoided:
		s.materializeTxLocked(tx)
	case !existed && tx.IsVoided:
		// Arriving pre-voided: register only, nothing to materialize.
	case existed && existing.IsVoided && !tx.IsVoided:
		s.materializeTxLocked(tx)
	case existed && !existing.IsVoided && tx.IsVoided:
		s.voidTxLocked(tx)
	default:
		// Same voided state as before: metadata-only update, already swapped above.
	}
	if tx.Height != nil && *tx.Height > s.currentTipHeight {
		s.currentTipHeight = *tx.Height
	}
	s.recomputeLocksLocked()
	return nil
}

// ProcessHistory recomputes the entire derived state (utxo index and token
// balances) from scratch by replaying every stored transaction in
// timestamp order. Used after a bulk history reload where incremental
// process_new_tx calls would be expensive or out of order.
func (s *MemoryStorage) ProcessHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.utxos = make(map[UtxoKey]*Utxo)
	for uid, t := range s.tokens {
		s.tokens[uid] = NewToken(t.UID, t.Name, t.Symbol)
	}
	s.tokenCache.Purge()

	ordered := make([]*HistoryTx, 0, len(s.history))
	for _, tx := range s.history {
		ordered = append(ordered, tx)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		return ordered[i].TxID < ordered[j].TxID
	})

	s.currentTipHeight = 0
	for _, tx := range ordered {
		if !tx.IsVoided {
			s.materializeTxLocked(tx)
		}
		if tx.Height != nil && *tx.Height > s.currentTipHeight {
			s.currentTipHeight = *tx.Height
		}
	}
	s.recomputeLocksLocked()
	return nil
}

// materializeTxLocked applies tx's effects: inputs consume prior outputs,
// and any output paying a mine address is added to the utxo index with the
// corresponding token balance credited. Must hold s.mu.
func (s *MemoryStorage) materializeTxLocked(tx *HistoryTx) {
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		prior, ok := s.history[in.SpentTxID]
		if !ok || int(in.OutputIndex) >= len(prior.Outputs) {
			continue
		}
		out := &prior.Outputs[in.OutputIndex]
		spender := tx.TxID
		out.SpentBy = &spender

		key := UtxoKey{TxID: in.SpentTxID, OutputIndex: in.OutputIndex}
		delete(s.utxos, key)
	}

	for idx := range tx.Outputs {
		out := &tx.Outputs[idx]
		if out.DecodedAddress == nil || !s.isAddressMineLocked(*out.DecodedAddress) {
			continue
		}
		if out.SpentBy != nil {
			continue // already spent within this same replay window
		}
		tokenUID := s.resolveTokenUIDLocked(tx, out.TokenIndex)
		u := &Utxo{
			TxID:          tx.TxID,
			OutputIndex:   uint32(idx),
			Address:       *out.DecodedAddress,
			TokenUID:      tokenUID,
			Value:         new(big.Int).Set(out.Value),
			AuthorityBits: out.AuthorityBits,
			Timelock:      out.Timelock,
		}
		if tx.Height != nil {
			h := *tx.Height
			u.BlockHeight = &h
		}
		s.utxos[u.Key()] = u
	}
}

// voidTxLocked reverts tx's effects and cascades the void to every
// transaction that spent one of its outputs, since a voided ancestor
// invalidates its descendants' view of the ledger too.
func (s *MemoryStorage) voidTxLocked(tx *HistoryTx) {
	for idx := range tx.Outputs {
		out := &tx.Outputs[idx]
		key := UtxoKey{TxID: tx.TxID, OutputIndex: uint32(idx)}
		delete(s.utxos, key)
		if out.SpentBy != nil {
			if spender, ok := s.history[*out.SpentBy]; ok && !spender.IsVoided {
				spender.IsVoided = true
				s.voidTxLocked(spender)
			}
		}
	}
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		prior, ok := s.history[in.SpentTxID]
		if !ok || int(in.OutputIndex) >= len(prior.Outputs) {
			continue
		}
		out := &prior.Outputs[in.OutputIndex]
		if out.SpentBy != nil && *out.SpentBy == tx.TxID {
			out.SpentBy = nil
			if out.DecodedAddress != nil && s.isAddressMineLocked(*out.DecodedAddress) && !prior.IsVoided {
				tokenUID := s.resolveTokenUIDLocked(prior, out.TokenIndex)
				u := &Utxo{
					TxID:          prior.TxID,
					OutputIndex:   in.OutputIndex,
					Address:       *out.DecodedAddress,
					TokenUID:      tokenUID,
					Value:         new(big.Int).Set(out.Value),
					AuthorityBits: out.AuthorityBits,
					Timelock:      out.Timelock,
				}
				s.utxos[u.Key()] = u
			}
		}
	}
}

func (s *MemoryStorage) isAddressMineLocked(encoded string) bool {
	_, ok := s.addrByEncoded[encoded]
	return ok
}

// resolveTokenUIDLocked maps an output's token_data index into a registered
// token uid, registering an unknown (placeholder) entry if necessary so
// balance bookkeeping always has a home.
func (s *MemoryStorage) resolveTokenUIDLocked(tx *HistoryTx, tokenIndex uint8) string {
	if tokenIndex == 0 || int(tokenIndex-1) >= len(tx.TokenTable) {
		return NativeTokenUID
	}
	uid := tx.TokenTable[tokenIndex-1]
	if _, ok := s.tokens[uid]; !ok {
		s.tokens[uid] = NewToken(uid, "", "")
	}
	return uid
}

// bucketForLocked routes a utxo into its owning balance bucket: spendable
// token value, or one of the two authority-bit counters.
func (s *MemoryStorage) bucketForLocked(t *Token, u *Utxo) *TokenBalance {
	switch {
	case u.AuthorityBits&AuthorityMint != 0:
		return &t.Authorities.Mint
	case u.AuthorityBits&AuthorityMelt != 0:
		return &t.Authorities.Melt
	default:
		return &t.Tokens
	}
}

// GetTxHistory returns every transaction touching tokenUID, newest first.
// Rejects a token that was never registered with TokenNotSet rather than
// silently returning an empty slice or dereferencing a nil registry entry
// (§9 open question).
func GetTxHistory(storage Storage, tokenUID string) ([]*HistoryTx, error) {
	if tokenUID == "" {
		tokenUID = NativeTokenUID
	}
	if _, ok := storage.GetToken(tokenUID); !ok {
		return nil, ErrTokenNotSet
	}
	return storage.IterTokenHistory(tokenUID), nil
}

// GetTxBalance computes one transaction's net effect on the wallet's
// balance of tokenUID: outputs the wallet owns, minus inputs the wallet
// owned. Deliberately collapses locked and unlocked value into one figure
// and does not special-case authority outputs, preserving the original's
// documented behavior for callers that rely on it (§9 open question) —
// use GetTxBalanceFull for a lock-aware, authority-excluding figure.
func GetTxBalance(storage Storage, tx *HistoryTx, tokenUID string) (*big.Int, error) {
	if tokenUID == "" {
		tokenUID = NativeTokenUID
	}
	balance := big.NewInt(0)
	for _, out := range tx.Outputs {
		if !txOutputMatchesToken(tx, out, tokenUID) {
			continue
		}
		if out.DecodedAddress == nil || !storage.IsAddressMine(*out.DecodedAddress) {
			continue
		}
		balance.Add(balance, out.Value)
	}
	for _, in := range tx.Inputs {
		prior, ok := storage.GetTx(in.SpentTxID)
		if !ok || int(in.OutputIndex) >= len(prior.Outputs) {
			continue
		}
		out := prior.Outputs[in.OutputIndex]
		if !txOutputMatchesToken(prior, out, tokenUID) {
			continue
		}
		if out.DecodedAddress == nil || !storage.IsAddressMine(*out.DecodedAddress) {
			continue
		}
		balance.Sub(balance, out.Value)
	}
	return balance, nil
}

// GetTxBalanceFull reports the locked/unlocked split of tx's own outputs
// that pay the wallet in tokenUID, excluding authority outputs. Unlike
// GetTxBalance it does not net out spent inputs; it answers "how much of
// what this tx paid me is spendable right now."
func GetTxBalanceFull(storage Storage, tx *HistoryTx, tokenUID string) (*TokenBalance, error) {
	if tokenUID == "" {
		tokenUID = NativeTokenUID
	}
	bal := &TokenBalance{Unlocked: big.NewInt(0), Locked: big.NewInt(0)}
	tip := storage.TipHeight()
	minBlocks := storage.RewardSpendMinBlocks()
	now := storage.Now()
	for _, out := range tx.Outputs {
		if out.IsAuthority {
			continue
		}
		if !txOutputMatchesToken(tx, out, tokenUID) {
			continue
		}
		if out.DecodedAddress == nil || !storage.IsAddressMine(*out.DecodedAddress) {
			continue
		}
		locked := out.Timelock != nil && now < *out.Timelock
		if tx.Height != nil && tip < *tx.Height+minBlocks {
			locked = true
		}
		if locked {
			bal.Locked.Add(bal.Locked, out.Value)
		} else {
			bal.Unlocked.Add(bal.Unlocked, out.Value)
		}
	}
	return bal, nil
}

func txOutputMatchesToken(tx *HistoryTx, out TxOutput, tokenUID string) bool {
	if tokenUID == NativeTokenUID {
		return out.TokenIndex == 0
	}
	if out.TokenIndex == 0 {
		return false
	}
	idx := int(out.TokenIndex) - 1
	return idx >= 0 && idx < len(tx.TokenTable) && tx.TokenTable[idx] == tokenUID
}
