package wallet

// Local signing (C8). Grounded on the teacher's core/wallet.go signing path
// (derive the owning child key, sign, push into the unlocking script)
// generalized two ways: a plain P2PKH input needs exactly one signature,
// while a threshold P2SH input needs `required` signatures collected from
// distinct cosigners and assembled in the same pubkey order the redeem
// script was built with (multisig.go).

import (
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Signer produces signatures for a wallet's own inputs. A single-sig
// Signer holds the account-level private key directly; a threshold Signer
// holds only this cosigner's private key plus every cosigner's account
// xpub, so it can rebuild the exact redeem script each input pays into.
type Signer struct {
	storage Storage
	kind    WalletKind

	singleAccount *ExtendedKey // private

	ownAccount       *ExtendedKey // private, this cosigner
	cosignerAccounts []*ExtendedKey
	required         int
}

// NewSigner builds a single-signer (P2PKH) Signer.
func NewSigner(storage Storage, account *ExtendedKey) (*Signer, error) {
	if !account.IsPrivate() {
		return nil, ErrReadOnly
	}
	return &Signer{storage: storage, kind: KindSingle, singleAccount: account}, nil
}

// NewThresholdSigner builds a Signer for one cosigner of an N-of-M wallet.
func NewThresholdSigner(storage Storage, ownAccount *ExtendedKey, cosignerAccounts []*ExtendedKey, required int) (*Signer, error) {
	if !ownAccount.IsPrivate() {
		return nil, ErrReadOnly
	}
	return &Signer{storage: storage, kind: KindThreshold, ownAccount: ownAccount, cosignerAccounts: cosignerAccounts, required: required}, nil
}

// SignHex implements the TxSignatureMethod contract for storage.GetTxSignatures:
// decode a hex-encoded unsigned transaction, sign every input, and return
// the raw signatures in input order. It fails if any input spends an
// output this wallet cannot sign for.
func (s *Signer) SignHex(txHex string, pin string) ([][]byte, error) {
	raw, err := hexDecode(txHex)
	if err != nil {
		return nil, wrap(err, "decode tx hex")
	}
	tx, err := DecodeUnsignedTx(raw)
	if err != nil {
		return nil, wrap(err, "decode unsigned tx")
	}
	return s.SignUnsignedTx(tx)
}

// SignUnsignedTx signs every input, returning one 64-byte compact
// signature per input. For a threshold wallet this is only this
// cosigner's partial signature set; AssembleThreshold collects the rest.
// Every input is signed against the same whole-transaction digest (§4.3):
// there is no per-input domain separation, so the digest is computed once.
func (s *Signer) SignUnsignedTx(tx *UnsignedTx) ([][]byte, error) {
	digest, err := SigHash(tx)
	if err != nil {
		return nil, wrap(err, "compute sighash")
	}
	sigs := make([][]byte, len(tx.Inputs))
	for i, in := range tx.Inputs {
		priv, err := s.resolveInputKey(in)
		if err != nil {
			return nil, err
		}
		sig, err := SignECDSA(priv, digest[:])
		if err != nil {
			return nil, wrap(err, "sign input")
		}
		sigs[i] = sig
	}
	return sigs, nil
}

func (s *Signer) resolveInputKey(in TxInput) (*secp.PrivateKey, error) {
	prior, ok := s.storage.GetTx(in.SpentTxID)
	if !ok || int(in.OutputIndex) >= len(prior.Outputs) {
		return nil, ErrTxNotFound
	}
	out := prior.Outputs[in.OutputIndex]
	if out.DecodedAddress == nil {
		return nil, ErrAddressNotMine
	}
	index, ok := derivationIndexFor(s.storage, *out.DecodedAddress)
	if !ok {
		return nil, ErrAddressNotMine
	}

	var account *ExtendedKey
	switch s.kind {
	case KindSingle:
		account = s.singleAccount
	case KindThreshold:
		account = s.ownAccount
	default:
		return nil, ErrInvalidAuthorityKind
	}
	child, err := DeriveChildAddress(account, index)
	if err != nil {
		return nil, err
	}
	return child.priv, nil
}

// signedTxSkeleton copies every field of tx except Inputs into a SignedTx,
// so assembling signatures never silently drops the weight/timestamp/
// parents trailer a builder produced.
func signedTxSkeleton(tx *UnsignedTx) *SignedTx {
	return &SignedTx{
		Version:    tx.Version,
		Outputs:    tx.Outputs,
		TokenTable: tx.TokenTable,
		Weight:     tx.Weight,
		Timestamp:  tx.Timestamp,
		Parents:    tx.Parents,
		Headers:    tx.Headers,
	}
}

func derivationIndexFor(storage Storage, encoded string) (uint32, bool) {
	for _, a := range storage.IterAddresses() {
		if a.EncodedForm == encoded {
			return a.DerivationIndex, true
		}
	}
	return 0, false
}

// AssembleP2PKH finishes a single-signer transaction: each input's
// unlocking script is <sig><pubkey>.
func (s *Signer) AssembleP2PKH(tx *UnsignedTx, sigs [][]byte) (*SignedTx, error) {
	signed := signedTxSkeleton(tx)
	for i, in := range tx.Inputs {
		index, ok := s.indexForInput(in)
		if !ok {
			return nil, ErrAddressNotMine
		}
		child, err := DeriveChildAddress(s.singleAccount, index)
		if err != nil {
			return nil, err
		}
		data := pushData(sigs[i])
		data = append(data, pushData(child.PublicKeyCompressed())...)
		signed.Inputs = append(signed.Inputs, TxInput{SpentTxID: in.SpentTxID, OutputIndex: in.OutputIndex, Data: data})
	}
	return signed, nil
}

func (s *Signer) indexForInput(in TxInput) (uint32, bool) {
	prior, ok := s.storage.GetTx(in.SpentTxID)
	if !ok || int(in.OutputIndex) >= len(prior.Outputs) || prior.Outputs[in.OutputIndex].DecodedAddress == nil {
		return 0, false
	}
	return derivationIndexFor(s.storage, *prior.Outputs[in.OutputIndex].DecodedAddress)
}

// PartialSignatureSet collects one cosigner's signatures, keyed by that
// cosigner's sorted-position pubkey, for every input of a transaction.
type PartialSignatureSet struct {
	PubKeyHex string
	Sigs      [][]byte // one per input, same order as tx.Inputs
}

// AssembleThreshold combines `required` partial signature sets into final
// P2SH unlocking scripts: OP_0 <sig_1>...<sig_required> <redeem_script>.
// Partials are matched to cosigners by PubKeyHex, and signatures are
// emitted in the sorted pubkey order each input's redeem script was built
// with. Fewer than required partials yields ErrInsufficientFunds.
func AssembleThreshold(tx *UnsignedTx, cosignerPubkeysSortedPerInput [][]string, partials []PartialSignatureSet, required int) (*SignedTx, error) {
	if len(partials) < required {
		return nil, ErrInsufficientFunds
	}
	signed := signedTxSkeleton(tx)
	for i, in := range tx.Inputs {
		sorted := cosignerPubkeysSortedPerInput[i]
		redeemScript, err := BuildMultisigRedeemScript(sorted, required)
		if err != nil {
			return nil, err
		}

		var data []byte
		data = append(data, 0x00) // OP_0 placeholder consumed by the script interpreter's off-by-one CHECKMULTISIG
		used := 0
		for _, pk := range sorted {
			if used >= required {
				break
			}
			for _, p := range partials {
				if p.PubKeyHex == pk && len(p.Sigs) > i {
					data = append(data, pushData(p.Sigs[i])...)
					used++
					break
				}
			}
		}
		if used < required {
			return nil, ErrInsufficientFunds
		}
		data = append(data, pushData(redeemScript)...)
		signed.Inputs = append(signed.Inputs, TxInput{SpentTxID: in.SpentTxID, OutputIndex: in.OutputIndex, Data: data})
	}
	return signed, nil
}
