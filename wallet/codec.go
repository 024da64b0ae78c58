package wallet

// Wire codec (C3). Grounded on the teacher's core/ledger.go WAL record
// encoding (fixed-width length-prefixed fields, big-endian) generalized to
// the DAG ledger's byte-exact transaction format (§4.3): a fixed header, a
// token table, then inputs and outputs each with their own length-prefixed
// variable parts, and a trailing weight/timestamp/parents block. Every
// count in the header and every tx id/token uid is fixed-width — there is
// no string-length-prefixed encoding of any hash anywhere in this format.

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/big"
)

// SerializeUnsignedTx produces the canonical, deterministic byte encoding
// of tx per §4.3. It is what SigHash hashes (with every input's Data
// zeroed first) and what EncodeSignedTx re-serializes once signatures are
// filled in.
func SerializeUnsignedTx(tx *UnsignedTx) ([]byte, error) {
	if len(tx.TokenTable) > 255 || len(tx.Inputs) > 255 || len(tx.Outputs) > 255 {
		return nil, ErrInvalidTransaction
	}
	var buf []byte
	buf = appendUint16(buf, tx.Version)
	buf = append(buf, byte(len(tx.TokenTable)), byte(len(tx.Inputs)), byte(len(tx.Outputs)))

	for _, uid := range tx.TokenTable {
		b, err := fixed32(uid)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}

	for _, in := range tx.Inputs {
		idBytes, err := fixed32(in.SpentTxID)
		if err != nil {
			return nil, err
		}
		buf = append(buf, idBytes...)
		buf = append(buf, byte(in.OutputIndex))
		buf = appendUint16(buf, uint16(len(in.Data)))
		buf = append(buf, in.Data...)
	}

	for _, out := range tx.Outputs {
		valueBytes := encodeOutputValue(out)
		buf = append(buf, valueBytes...)
		buf = append(buf, encodeTokenData(out))
		buf = appendUint16(buf, uint16(len(out.ScriptBytes)))
		buf = append(buf, out.ScriptBytes...)
	}

	buf = appendFloat64(buf, tx.Weight)
	buf = appendUint32(buf, uint32(tx.Timestamp))
	if len(tx.Parents) > 255 {
		return nil, ErrInvalidTransaction
	}
	buf = append(buf, byte(len(tx.Parents)))
	for _, p := range tx.Parents {
		b, err := fixed32(p)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	buf = append(buf, tx.Headers...)
	return buf, nil
}

// encodeTokenData packs an output's token_data byte: bit 7 flags an
// authority output; the remaining 7 bits are always the token-table index
// (0 = native), whether or not the output is an authority output (§4.3).
func encodeTokenData(out TxOutput) byte {
	b := out.TokenIndex & 0x7f
	if out.IsAuthority {
		b |= 0x80
	}
	return b
}

// encodeOutputValue encodes an output's value field. Authority outputs
// carry no real monetary value; their value's low bits instead flag
// mint=1/melt=2 per §4.3, so the stored Value is ignored for those.
func encodeOutputValue(out TxOutput) []byte {
	v := out.Value
	if out.IsAuthority {
		kind := int64(0)
		switch {
		case out.AuthorityBits&AuthorityMint != 0:
			kind = 1
		case out.AuthorityBits&AuthorityMelt != 0:
			kind = 2
		}
		v = big.NewInt(kind)
	}
	return encodeValue(v)
}

// encodeValue writes v as a plain 8-byte big-endian value when it fits
// (non-negative, under 2^63 so the top bit never collides with the
// extended-value sentinel), otherwise as a sentinel byte with its high bit
// set followed by the full 256-bit two's-complement encoding (§4.3).
func encodeValue(v *big.Int) []byte {
	if v.Sign() >= 0 && v.BitLen() < 64 {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v.Uint64())
		return b[:]
	}
	out := make([]byte, 0, 33)
	out = append(out, 0x80)
	out = append(out, big256TwosComplement(v)...)
	return out
}

// big256TwosComplement returns the 32-byte big-endian two's-complement
// encoding of v.
func big256TwosComplement(v *big.Int) []byte {
	out := make([]byte, 32)
	if v.Sign() >= 0 {
		b := v.Bytes()
		copy(out[32-len(b):], b)
		return out
	}
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	t := new(big.Int).Add(mod, v)
	b := t.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// big256FromTwosComplement reverses big256TwosComplement.
func big256FromTwosComplement(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		v.Sub(v, mod)
	}
	return v
}

// fixed32 hex-decodes a 32-byte hash (tx id or token uid) to its raw wire
// form. An empty string (a not-yet-known parent) and NativeTokenUID both
// wire-encode as 32 zero bytes.
func fixed32(hexHash string) ([]byte, error) {
	if hexHash == "" || hexHash == NativeTokenUID {
		return make([]byte, 32), nil
	}
	b, err := hexDecode(hexHash)
	if err != nil {
		return nil, wrap(err, "decode hash")
	}
	if len(b) != 32 {
		return nil, ErrInvalidTransaction
	}
	return b, nil
}

// SigHash computes the digest that must be signed for every input of tx: a
// single SHA-256 over the serialized transaction with every input's data
// field zeroed, per §4.3. All inputs of the same transaction share this one
// digest — there is no per-input domain separation.
func SigHash(tx *UnsignedTx) ([32]byte, error) {
	zeroed := *tx
	zeroed.Inputs = make([]TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		zeroed.Inputs[i] = TxInput{SpentTxID: in.SpentTxID, OutputIndex: in.OutputIndex}
	}
	buf, err := SerializeUnsignedTx(&zeroed)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(buf), nil
}

// SignedTx is a fully formed, ready-to-broadcast transaction: an
// UnsignedTx with each input's Data populated.
type SignedTx struct {
	Version    uint16
	Inputs     []TxInput
	Outputs    []TxOutput
	TokenTable []string
	Weight     float64
	Timestamp  int64
	Parents    []string
	Headers    []byte
}

// EncodeSignedTx produces the final wire bytes of a signed transaction,
// including each input's signature/script data.
func EncodeSignedTx(tx *SignedTx) ([]byte, error) {
	return SerializeUnsignedTx(&UnsignedTx{
		Version:    tx.Version,
		Inputs:     tx.Inputs,
		Outputs:    tx.Outputs,
		TokenTable: tx.TokenTable,
		Weight:     tx.Weight,
		Timestamp:  tx.Timestamp,
		Parents:    tx.Parents,
		Headers:    tx.Headers,
	})
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendFloat64(buf []byte, v float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return append(buf, b[:]...)
}

// DecodeUnsignedTx reverses SerializeUnsignedTx. It is the inverse used by
// the local signer when it is handed a hex-encoded unsigned transaction
// rather than the in-process UnsignedTx value.
func DecodeUnsignedTx(buf []byte) (*UnsignedTx, error) {
	tx := &UnsignedTx{}
	r := &byteReader{buf: buf}

	version, err := r.uint16()
	if err != nil {
		return nil, err
	}
	tx.Version = version

	tokensLen, err := r.byteVal()
	if err != nil {
		return nil, err
	}
	inputsLen, err := r.byteVal()
	if err != nil {
		return nil, err
	}
	outputsLen, err := r.byteVal()
	if err != nil {
		return nil, err
	}

	for i := byte(0); i < tokensLen; i++ {
		b, err := r.fixed(32)
		if err != nil {
			return nil, err
		}
		tx.TokenTable = append(tx.TokenTable, hexEncode(b))
	}

	for i := byte(0); i < inputsLen; i++ {
		idBytes, err := r.fixed(32)
		if err != nil {
			return nil, err
		}
		outIdx, err := r.byteVal()
		if err != nil {
			return nil, err
		}
		data, err := r.lenPrefixed16()
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, TxInput{
			SpentTxID:   hexEncode(idBytes),
			OutputIndex: uint32(outIdx),
			Data:        data,
		})
	}

	for i := byte(0); i < outputsLen; i++ {
		value, err := r.value()
		if err != nil {
			return nil, err
		}
		tokenData, err := r.byteVal()
		if err != nil {
			return nil, err
		}
		script, err := r.lenPrefixed16()
		if err != nil {
			return nil, err
		}
		out := TxOutput{TokenIndex: tokenData & 0x7f, ScriptBytes: script}
		if tokenData&0x80 != 0 {
			out.IsAuthority = true
			switch value.Int64() {
			case 1:
				out.AuthorityBits = AuthorityMint
			case 2:
				out.AuthorityBits = AuthorityMelt
			}
			out.Value = big.NewInt(0)
		} else {
			out.Value = value
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	weightBits, err := r.uint64()
	if err != nil {
		return nil, err
	}
	tx.Weight = math.Float64frombits(weightBits)

	ts, err := r.uint32()
	if err != nil {
		return nil, err
	}
	tx.Timestamp = int64(ts)

	parentsLen, err := r.byteVal()
	if err != nil {
		return nil, err
	}
	for i := byte(0); i < parentsLen; i++ {
		b, err := r.fixed(32)
		if err != nil {
			return nil, err
		}
		tx.Parents = append(tx.Parents, hexEncode(b))
	}
	tx.Headers = append([]byte(nil), r.buf[r.pos:]...)
	return tx, nil
}

type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return ErrInvalidTransaction
	}
	return nil
}

func (r *byteReader) byteVal() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) fixed(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *byteReader) lenPrefixed16() ([]byte, error) {
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	return r.fixed(int(n))
}

// value decodes one output's value field: a plain 8-byte big-endian
// unsigned value, or (when the first byte's high bit is set) a sentinel
// byte followed by the 32-byte two's-complement extended form (§4.3).
func (r *byteReader) value() (*big.Int, error) {
	if err := r.need(1); err != nil {
		return nil, err
	}
	if r.buf[r.pos]&0x80 != 0 {
		if err := r.need(33); err != nil {
			return nil, err
		}
		r.pos++
		b := r.buf[r.pos : r.pos+32]
		r.pos += 32
		return big256FromTwosComplement(b), nil
	}
	v, err := r.uint64()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(v), nil
}
