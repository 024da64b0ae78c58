package wallet

// Output script construction (C3/C7). Grounded on multisig.go's redeem
// script builder and its pushData/pushInt helpers, extended to the three
// plain output script shapes §4.3 names: P2PKH, P2SH and a raw data push.
// Builders call scriptForAddress once per output so every constructed
// TxOutput carries real ScriptBytes instead of leaving the field for the
// codec to improvise.

// Standard script opcodes used outside the multisig redeem script.
const (
	opDup                 = 0x76
	opHash160             = 0xa9
	opEqualVerify         = 0x88
	opEqual               = 0x87
	opCheckSig            = 0xac
	opCheckTimelockVerify = 0xb1
)

// scriptForAddress builds the spending script for encoded, inferring P2PKH
// vs P2SH from its base58check version byte against params. timelock, when
// non-nil, is woven into a P2PKH script as the optional timelock prefix
// §4.3 describes; it has no effect on a P2SH output (the redeem script
// carries its own spending conditions).
func scriptForAddress(encoded string, params NetworkParams, timelock *int64) ([]byte, error) {
	raw, err := base58CheckDecode(encoded)
	if err != nil {
		return nil, wrap(err, "decode address")
	}
	if len(raw) != 21 {
		return nil, ErrInvalidAddress
	}
	version, hash20 := raw[0], raw[1:21]
	switch version {
	case params.AddressByte:
		return buildP2PKHScript(hash20, timelock), nil
	case params.P2SHByte:
		return buildP2SHScript(hash20), nil
	default:
		return nil, ErrInvalidAddress
	}
}

// buildP2PKHScript builds DUP HASH160 <hash> EQUALVERIFY [timelock prefix] CHECKSIG.
func buildP2PKHScript(hash20 []byte, timelock *int64) []byte {
	script := []byte{opDup, opHash160}
	script = append(script, pushData(hash20)...)
	script = append(script, opEqualVerify)
	if timelock != nil {
		var buf [8]byte
		putUint64BE(buf[:], uint64(*timelock))
		script = append(script, pushData(buf[:])...)
		script = append(script, opCheckTimelockVerify)
	}
	script = append(script, opCheckSig)
	return script
}

// buildP2SHScript builds HASH160 <hash> EQUAL.
func buildP2SHScript(hash20 []byte) []byte {
	script := []byte{opHash160}
	script = append(script, pushData(hash20)...)
	script = append(script, opEqual)
	return script
}

// buildDataScript builds a bare PUSHDATA of utf-8 bytes, the script shape
// of a data output; no builder in this package calls it.
func buildDataScript(data []byte) []byte {
	return pushData(data)
}

func putUint64BE(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
