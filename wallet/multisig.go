package wallet

// Threshold (N-of-M) P2SH redeem script construction (C1/C7). Grounded on
// Abirdcfly-dcrd/txscript/standard.go's multisig script builder, reduced to
// a minimal push-data + CHECKMULTISIG encoding; the scanner builds one
// redeem script per address index from each cosigner's child pubkey.
// Cosigner pubkeys are sorted lexicographically by their hex encoding
// before scripting and before signature assembly (signer.go) — both sides
// must agree on order or the script hash and the signature set diverge.

import (
	"errors"
)

// BuildMultisigRedeemScript constructs the canonical "cosigners sorted,
// required signatures enforced" redeem script this wallet pays into for
// threshold accounts:
//
//	<required> <pubkey_1> <pubkey_2> ... <pubkey_n> <n> OP_CHECKMULTISIG
//
// Pubkeys must already be sorted (SortPubKeysHex) by the caller so script
// construction and signature ordering never disagree.
func BuildMultisigRedeemScript(sortedPubkeysHex []string, required int) ([]byte, error) {
	n := len(sortedPubkeysHex)
	if required <= 0 || required > n || n == 0 {
		return nil, errors.New("wallet: invalid multisig threshold")
	}
	var script []byte
	script = append(script, pushInt(required)...)
	for _, hexKey := range sortedPubkeysHex {
		raw, err := hexDecode(hexKey)
		if err != nil {
			return nil, wrap(err, "decode cosigner pubkey")
		}
		script = append(script, pushData(raw)...)
	}
	script = append(script, pushInt(n)...)
	script = append(script, opCheckMultisig)
	return script, nil
}

const opCheckMultisig = 0xae

func pushInt(v int) []byte {
	if v >= 1 && v <= 16 {
		return []byte{byte(0x50 + v)}
	}
	return pushData([]byte{byte(v)})
}

func pushData(b []byte) []byte {
	if len(b) < 0x4c {
		return append([]byte{byte(len(b))}, b...)
	}
	out := []byte{0x4c, byte(len(b))}
	return append(out, b...)
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.New("wallet: odd-length hex")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, errors.New("wallet: invalid hex digit")
	}
}

// DeriveCosignerChildPubKeys derives, for a fixed address index, the child
// public key of every cosigner's account-level extended key, then sorts
// the resulting hex-encoded keys so script construction and signature
// collection (signer.go) agree on order.
func DeriveCosignerChildPubKeys(cosignerAccounts []*ExtendedKey, index uint32) ([]string, error) {
	out := make([]string, 0, len(cosignerAccounts))
	for _, acc := range cosignerAccounts {
		child, err := DeriveChildAddress(acc, index)
		if err != nil {
			return nil, err
		}
		out = append(out, hexEncode(child.PublicKeyCompressed()))
	}
	return SortPubKeysHex(out), nil
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0x0f]
	}
	return string(out)
}
