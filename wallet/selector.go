package wallet

// UTXO selection (C7). Grounded on degeri-dcrlnd/lnwallet/chanfunding/coin_select.go's
// greedy largest-first coin selector, adapted from a single BTC-denominated
// balance to this ledger's per-token value space and its separate
// authority-bit utxos (mint/melt tokens that must be selected by kind, not
// by value).

import "math/big"

// SelectionResult is the outcome of a successful coin selection.
type SelectionResult struct {
	Chosen []*Utxo
	Total  *big.Int
	Change *big.Int
}

// SelectForValue greedily selects utxos of the given token (largest first)
// until their sum covers target, returning the chosen set and the
// resulting change. It never selects authority utxos. maxInputs caps the
// number of utxos the loop will accumulate (the orchestrator's
// get_version() max_number_inputs, §6); 0 means unbounded. Selection still
// fails with ErrInsufficientFunds if the cap is hit before target is met.
func SelectForValue(storage Storage, tokenUID string, target *big.Int, maxInputs int) (*SelectionResult, error) {
	if target.Sign() <= 0 {
		return &SelectionResult{Total: big.NewInt(0), Change: big.NewInt(0)}, nil
	}
	candidates, err := storage.SelectUtxos(UtxoFilter{
		Token:         tokenUID,
		AuthorityBits: 0,
		OnlyAvailable: true,
		OrderByValue:  OrderValueDescending,
	})
	if err != nil {
		return nil, err
	}

	sum := big.NewInt(0)
	var chosen []*Utxo
	for _, u := range candidates {
		if sum.Cmp(target) >= 0 {
			break
		}
		if maxInputs > 0 && len(chosen) >= maxInputs {
			break
		}
		chosen = append(chosen, u)
		sum.Add(sum, u.Value)
	}
	if sum.Cmp(target) < 0 {
		return nil, ErrInsufficientFunds
	}
	change := new(big.Int).Sub(sum, target)
	return &SelectionResult{Chosen: chosen, Total: sum, Change: change}, nil
}

// SelectAuthority picks one available authority utxo (mint or melt) for a
// token, required before a mint/melt/delegate_authority operation can spend
// it.
func SelectAuthority(storage Storage, tokenUID string, bit uint8) (*Utxo, error) {
	chosen, err := SelectAuthorities(storage, tokenUID, bit, 1)
	if err != nil {
		return nil, err
	}
	return chosen[0], nil
}

// SelectAuthorities picks count available authority utxos (mint or melt) for
// a token, required by destroy_authority(token, kind, count) (§4.7, §8
// scenario 5). Fails with ErrNoAuthorityAvailable when fewer than count are
// available, rather than silently returning a partial set.
func SelectAuthorities(storage Storage, tokenUID string, bit uint8, count int) ([]*Utxo, error) {
	if count <= 0 {
		count = 1
	}
	candidates, err := storage.SelectUtxos(UtxoFilter{
		Token:         tokenUID,
		AuthorityBits: bit,
		OnlyAvailable: true,
		MaxCount:      count,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) < count {
		return nil, ErrNoAuthorityAvailable
	}
	return candidates, nil
}

// SelectAllForConsolidation returns every available spendable (non-authority)
// utxo of a token, used by consolidate_utxos to sweep a token's full balance
// into one output. maxInputs caps how many utxos (largest first) are
// gathered, matching the same max_number_inputs limit SelectForValue
// enforces; 0 means unbounded.
func SelectAllForConsolidation(storage Storage, tokenUID string, maxInputs int) (*SelectionResult, error) {
	candidates, err := storage.SelectUtxos(UtxoFilter{
		Token:         tokenUID,
		AuthorityBits: 0,
		OnlyAvailable: true,
		OrderByValue:  OrderValueDescending,
		MaxCount:      maxInputs,
	})
	if err != nil {
		return nil, err
	}
	sum := big.NewInt(0)
	for _, u := range candidates {
		sum.Add(sum, u.Value)
	}
	return &SelectionResult{Chosen: candidates, Total: sum, Change: big.NewInt(0)}, nil
}
