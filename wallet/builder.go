package wallet

// Transaction building (C7). Grounded on the teacher's core/transactions.go
// style (assemble inputs/outputs, then hand off to a signer) generalized to
// this ledger's token-deposit economics: creating or minting a custom token
// locks a percentage of native-token value as a deposit, and melting a
// custom token releases that deposit back.
//
// Builders return an UnsignedTx: fully formed inputs/outputs with a token
// table, not yet serialized or signed. signer.go and codec.go take it from
// there.

import "math/big"

// UnsignedTx is the builder's output: ready for signing, not yet encoded.
type UnsignedTx struct {
	Version    uint16
	Inputs     []TxInput
	Outputs    []TxOutput
	TokenTable []string
	Weight     float64
	Timestamp  int64
	Parents    []string
	Headers    []byte
}

// OutputSpec describes one requested payment.
type OutputSpec struct {
	Address  string
	Value    *big.Int
	Token    string // NativeTokenUID for the native token
	Timelock *int64
}

func tokenIndexOf(table []string, uid string) (uint8, []string) {
	if uid == NativeTokenUID {
		return 0, table
	}
	for i, t := range table {
		if t == uid {
			return uint8(i + 1), table
		}
	}
	table = append(table, uid)
	return uint8(len(table)), table
}

func inputsFromUtxos(utxos []*Utxo) []TxInput {
	out := make([]TxInput, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, TxInput{SpentTxID: u.TxID, OutputIndex: u.OutputIndex})
	}
	return out
}

// BuildSend assembles a plain value-transfer transaction: one or more
// outputs, funded by greedily selected utxos per token capped at
// params.MaxNumberInputs, with change returned to changeAddress.
func BuildSend(storage Storage, params NetworkParams, outputs []OutputSpec, changeAddress string) (*UnsignedTx, error) {
	if len(outputs) == 0 {
		return nil, ErrInvalidTransaction
	}
	tx := &UnsignedTx{}
	byToken := map[string]*big.Int{}
	for _, o := range outputs {
		if byToken[o.Token] == nil {
			byToken[o.Token] = big.NewInt(0)
		}
		byToken[o.Token].Add(byToken[o.Token], o.Value)
	}

	for token, needed := range byToken {
		sel, err := SelectForValue(storage, token, needed, params.MaxNumberInputs)
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, inputsFromUtxos(sel.Chosen)...)
		if sel.Change.Sign() > 0 {
			idx, table := tokenIndexOf(tx.TokenTable, token)
			tx.TokenTable = table
			script, err := scriptForAddress(changeAddress, params, nil)
			if err != nil {
				return nil, err
			}
			tx.Outputs = append(tx.Outputs, TxOutput{
				Value:          sel.Change,
				TokenIndex:     idx,
				DecodedAddress: &changeAddress,
				ScriptBytes:    script,
			})
		}
	}

	for _, o := range outputs {
		idx, table := tokenIndexOf(tx.TokenTable, o.Token)
		tx.TokenTable = table
		addr := o.Address
		script, err := scriptForAddress(addr, params, o.Timelock)
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, TxOutput{
			Value:          new(big.Int).Set(o.Value),
			TokenIndex:     idx,
			DecodedAddress: &addr,
			Timelock:       o.Timelock,
			ScriptBytes:    script,
		})
	}
	return tx, nil
}

// BuildCreateToken mints a brand-new token: an initial supply output, plus
// one mint-authority and one melt-authority output so the wallet can issue
// and retire supply later. The native-token deposit is funded from the
// wallet's own native-token utxos.
func BuildCreateToken(storage Storage, params NetworkParams, tokenUID, ownerAddress string, initialSupply *big.Int) (*UnsignedTx, error) {
	deposit := depositFor(params, initialSupply)
	sel, err := SelectForValue(storage, NativeTokenUID, deposit, params.MaxNumberInputs)
	if err != nil {
		return nil, err
	}
	ownerScript, err := scriptForAddress(ownerAddress, params, nil)
	if err != nil {
		return nil, err
	}
	tx := &UnsignedTx{Inputs: inputsFromUtxos(sel.Chosen), TokenTable: []string{tokenUID}}
	if sel.Change.Sign() > 0 {
		tx.Outputs = append(tx.Outputs, TxOutput{Value: sel.Change, TokenIndex: 0, DecodedAddress: &ownerAddress, ScriptBytes: ownerScript})
	}
	tx.Outputs = append(tx.Outputs,
		TxOutput{Value: new(big.Int).Set(initialSupply), TokenIndex: 1, DecodedAddress: &ownerAddress, ScriptBytes: ownerScript},
		TxOutput{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: AuthorityMint, DecodedAddress: &ownerAddress, ScriptBytes: ownerScript},
		TxOutput{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: AuthorityMelt, DecodedAddress: &ownerAddress, ScriptBytes: ownerScript},
	)
	return tx, nil
}

// BuildMint spends a mint-authority utxo to create more supply of an
// existing token, funding the proportional deposit and returning the
// authority to the wallet so it can mint again later.
func BuildMint(storage Storage, params NetworkParams, tokenUID, destAddress string, amount *big.Int) (*UnsignedTx, error) {
	authUtxo, err := SelectAuthority(storage, tokenUID, AuthorityMint)
	if err != nil {
		return nil, err
	}
	deposit := depositFor(params, amount)
	sel, err := SelectForValue(storage, NativeTokenUID, deposit, params.MaxNumberInputs)
	if err != nil {
		return nil, err
	}
	destScript, err := scriptForAddress(destAddress, params, nil)
	if err != nil {
		return nil, err
	}
	tx := &UnsignedTx{TokenTable: []string{tokenUID}}
	tx.Inputs = append(tx.Inputs, TxInput{SpentTxID: authUtxo.TxID, OutputIndex: authUtxo.OutputIndex})
	tx.Inputs = append(tx.Inputs, inputsFromUtxos(sel.Chosen)...)
	if sel.Change.Sign() > 0 {
		tx.Outputs = append(tx.Outputs, TxOutput{Value: sel.Change, TokenIndex: 0, DecodedAddress: &destAddress, ScriptBytes: destScript})
	}
	tx.Outputs = append(tx.Outputs,
		TxOutput{Value: new(big.Int).Set(amount), TokenIndex: 1, DecodedAddress: &destAddress, ScriptBytes: destScript},
		TxOutput{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: AuthorityMint, DecodedAddress: &destAddress, ScriptBytes: destScript},
	)
	return tx, nil
}

// BuildMelt spends token supply plus a melt-authority utxo, destroying the
// supply and releasing the proportional native-token deposit back to
// refundAddress.
func BuildMelt(storage Storage, params NetworkParams, tokenUID, refundAddress string, amount *big.Int) (*UnsignedTx, error) {
	authUtxo, err := SelectAuthority(storage, tokenUID, AuthorityMelt)
	if err != nil {
		return nil, err
	}
	sel, err := SelectForValue(storage, tokenUID, amount, params.MaxNumberInputs)
	if err != nil {
		return nil, err
	}
	refund := depositFor(params, amount)
	refundScript, err := scriptForAddress(refundAddress, params, nil)
	if err != nil {
		return nil, err
	}
	tx := &UnsignedTx{TokenTable: []string{tokenUID}}
	tx.Inputs = append(tx.Inputs, TxInput{SpentTxID: authUtxo.TxID, OutputIndex: authUtxo.OutputIndex})
	tx.Inputs = append(tx.Inputs, inputsFromUtxos(sel.Chosen)...)
	if sel.Change.Sign() > 0 {
		tx.Outputs = append(tx.Outputs, TxOutput{Value: sel.Change, TokenIndex: 1, DecodedAddress: &refundAddress, ScriptBytes: refundScript})
	}
	tx.Outputs = append(tx.Outputs,
		TxOutput{Value: refund, TokenIndex: 0, DecodedAddress: &refundAddress, ScriptBytes: refundScript},
		TxOutput{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: AuthorityMelt, DecodedAddress: &refundAddress, ScriptBytes: refundScript},
	)
	return tx, nil
}

// BuildDelegateAuthority moves an authority utxo (mint or melt) to a new
// address, optionally keeping a copy at the current one (keepMine=true).
func BuildDelegateAuthority(storage Storage, params NetworkParams, tokenUID string, bit uint8, destAddress string, keepMine bool) (*UnsignedTx, error) {
	authUtxo, err := SelectAuthority(storage, tokenUID, bit)
	if err != nil {
		return nil, err
	}
	destScript, err := scriptForAddress(destAddress, params, nil)
	if err != nil {
		return nil, err
	}
	tx := &UnsignedTx{TokenTable: []string{tokenUID}}
	tx.Inputs = append(tx.Inputs, TxInput{SpentTxID: authUtxo.TxID, OutputIndex: authUtxo.OutputIndex})
	tx.Outputs = append(tx.Outputs, TxOutput{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: bit, DecodedAddress: &destAddress, ScriptBytes: destScript})
	if keepMine {
		mine := authUtxo.Address
		mineScript, err := scriptForAddress(mine, params, nil)
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, TxOutput{Value: big.NewInt(1), TokenIndex: 1, IsAuthority: true, AuthorityBits: bit, DecodedAddress: &mine, ScriptBytes: mineScript})
	}
	return tx, nil
}

// BuildDestroyAuthority spends count authority utxos of the given kind with
// no replacement output, permanently revoking that much of the wallet's
// ability to mint or melt (§4.7, §8 scenario 5). Fails with
// ErrNoAuthorityAvailable when fewer than count authority utxos exist.
func BuildDestroyAuthority(storage Storage, tokenUID string, bit uint8, count int) (*UnsignedTx, error) {
	authUtxos, err := SelectAuthorities(storage, tokenUID, bit, count)
	if err != nil {
		return nil, err
	}
	return &UnsignedTx{
		Inputs:     inputsFromUtxos(authUtxos),
		TokenTable: []string{tokenUID},
	}, nil
}

// BuildConsolidate sweeps every available utxo of a token, up to
// params.MaxNumberInputs, into a single output at destAddress.
func BuildConsolidate(storage Storage, params NetworkParams, tokenUID, destAddress string) (*UnsignedTx, error) {
	sel, err := SelectAllForConsolidation(storage, tokenUID, params.MaxNumberInputs)
	if err != nil {
		return nil, err
	}
	if len(sel.Chosen) == 0 {
		return nil, ErrInsufficientFunds
	}
	idx := uint8(0)
	table := []string(nil)
	if tokenUID != NativeTokenUID {
		idx = 1
		table = []string{tokenUID}
	}
	destScript, err := scriptForAddress(destAddress, params, nil)
	if err != nil {
		return nil, err
	}
	return &UnsignedTx{
		Inputs:     inputsFromUtxos(sel.Chosen),
		Outputs:    []TxOutput{{Value: sel.Total, TokenIndex: idx, DecodedAddress: &destAddress, ScriptBytes: destScript}},
		TokenTable: table,
	}, nil
}

// depositFor computes the native-token deposit owed for creating or
// minting `amount` units of a custom token, rounding up so the ledger is
// never under-collateralized.
func depositFor(params NetworkParams, amount *big.Int) *big.Int {
	pct := big.NewInt(int64(params.TokenDepositPct))
	num := new(big.Int).Mul(amount, pct)
	deposit, rem := new(big.Int).DivMod(num, big.NewInt(100), new(big.Int))
	if rem.Sign() != 0 {
		deposit.Add(deposit, big.NewInt(1))
	}
	return deposit
}
