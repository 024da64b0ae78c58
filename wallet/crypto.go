package wallet

// Key material & crypto (C1 of the design). Grounded on the teacher's
// core/wallet.go HD-wallet: same shape (HMAC-SHA512 master key, hardened
// child derivation, logrus-wired constructors) generalized from ed25519/
// SLIP-0010 hardened-only derivation to full BIP32 secp256k1 derivation
// (hardened and non-hardened children, so xpub-only watch-only wallets and
// multisig cosigner pubkey derivation both work).

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/ripemd160" //lint:ignore SA1019 matches the teacher's HASH160 construction
	"golang.org/x/crypto/scrypt"
)

const hardenedOffset uint32 = 0x80000000

// Derivation paths (purpose'/coin_type'/account'), matching the two account
// layouts in §3. Addresses are then derived non-hardened at "/0/index"
// beneath the account key so watch-only (xpub-only) wallets can still derive
// new receiving addresses.
var (
	derivationPathSingle    = []uint32{44 | hardenedOffset, 280 | hardenedOffset, 0 | hardenedOffset}
	derivationPathThreshold = []uint32{45 | hardenedOffset, 280 | hardenedOffset, 0 | hardenedOffset}
)

// Standard BIP32 mainnet version bytes. Hathor reuses the generic BIP32
// extended-key wire format; only the address version byte is network-specific.
const (
	xprivVersion uint32 = 0x0488ADE4
	xpubVersion  uint32 = 0x0488B21E
)

var secp256k1Order, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

func SetCryptoLogger(l *logrus.Logger) { cryptoLogger = l }

var cryptoLogger = logrus.New()

// ExtendedKey is a BIP32 node: either a full private/public pair, or
// public-only (watch-only / cosigner-observer).
type ExtendedKey struct {
	priv      *secp.PrivateKey
	pub       *secp.PublicKey
	chainCode [32]byte
	depth     byte
	parentFP  [4]byte
	childNum  uint32
}

// NewMasterKey derives the BIP32 master node from a BIP39 seed.
func NewMasterKey(seed []byte) (*ExtendedKey, error) {
	if len(seed) < 16 {
		return nil, errors.New("crypto: seed too short")
	}
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	i := mac.Sum(nil)

	priv := secp.PrivKeyFromBytes(i[:32])
	k := &ExtendedKey{priv: priv, pub: priv.PubKey()}
	copy(k.chainCode[:], i[32:])
	cryptoLogger.Infof("crypto: master key initialised (%d bytes seed)", len(seed))
	return k, nil
}

// MnemonicToSeed validates and converts a BIP39 mnemonic to a seed.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("crypto: invalid mnemonic checksum")
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

// NewMnemonic generates a fresh BIP39 mnemonic of the given entropy size
// (128 or 256 bits, i.e. 12 or 24 words).
func NewMnemonic(entropyBits int) (string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return "", fmt.Errorf("crypto: unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("crypto: entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

func (k *ExtendedKey) fingerprint() [4]byte {
	h := hash160(k.PublicKeyCompressed())
	var fp [4]byte
	copy(fp[:], h[:4])
	return fp
}

// PublicKeyCompressed returns the 33-byte compressed public key.
func (k *ExtendedKey) PublicKeyCompressed() []byte {
	return k.pub.SerializeCompressed()
}

// IsPrivate reports whether this node carries private key material.
func (k *ExtendedKey) IsPrivate() bool { return k.priv != nil }

// Neuter strips the private key, returning a public-only copy.
func (k *ExtendedKey) Neuter() *ExtendedKey {
	n := *k
	n.priv = nil
	return &n
}

// Child derives the child node at the given index. Hardened children
// (index >= 0x80000000) require a private parent.
func (k *ExtendedKey) Child(index uint32) (*ExtendedKey, error) {
	hardened := index >= hardenedOffset
	if hardened && k.priv == nil {
		return nil, errors.New("crypto: hardened derivation requires a private key")
	}

	var data []byte
	if hardened {
		data = make([]byte, 0, 37)
		data = append(data, 0x00)
		privBytes := k.priv.Key.Bytes()
		data = append(data, privBytes[:]...)
	} else {
		data = append([]byte{}, k.PublicKeyCompressed()...)
	}
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, index)
	data = append(data, idx...)

	mac := hmac.New(sha512.New, k.chainCode[:])
	mac.Write(data)
	i := mac.Sum(nil)
	il, ir := i[:32], i[32:]

	var ilScalar secp.ModNScalar
	if overflow := ilScalar.SetByteSlice(il); overflow {
		return nil, errors.New("crypto: invalid child, IL >= curve order")
	}

	child := &ExtendedKey{depth: k.depth + 1, childNum: index, parentFP: k.fingerprint()}
	copy(child.chainCode[:], ir)

	if k.priv != nil {
		var sum secp.ModNScalar
		sum.Set(&ilScalar)
		sum.Add(&k.priv.Key)
		if sum.IsZero() {
			return nil, errors.New("crypto: invalid child, resulting key is zero")
		}
		bytes := sum.Bytes()
		child.priv = secp.PrivKeyFromBytes(bytes[:])
		child.pub = child.priv.PubKey()
		return child, nil
	}

	var ilPoint secp.JacobianPoint
	secp.ScalarBaseMultNonConst(&ilScalar, &ilPoint)
	var parentPoint secp.JacobianPoint
	k.pub.AsJacobian(&parentPoint)
	var sumPoint secp.JacobianPoint
	secp.AddNonConst(&ilPoint, &parentPoint, &sumPoint)
	sumPoint.ToAffine()
	child.pub = secp.NewPublicKey(&sumPoint.X, &sumPoint.Y)
	return child, nil
}

// DeriveAccount walks the hardened account-level path for the given wallet kind.
func DeriveAccount(master *ExtendedKey, kind WalletKind) (*ExtendedKey, error) {
	path := derivationPathSingle
	if kind == KindThreshold {
		path = derivationPathThreshold
	}
	cur := master
	for _, idx := range path {
		var err error
		cur, err = cur.Child(idx)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// DeriveChildAddress derives the non-hardened "/0/index" child beneath an
// account node (private or public-only).
func DeriveChildAddress(account *ExtendedKey, index uint32) (*ExtendedKey, error) {
	change, err := account.Child(0)
	if err != nil {
		return nil, err
	}
	return change.Child(index)
}

// Serialize produces the base58check-encoded BIP32 extended key string.
func (k *ExtendedKey) Serialize(private bool) (string, error) {
	if private && k.priv == nil {
		return "", ErrReadOnly
	}
	buf := make([]byte, 0, 78)
	var version uint32
	if private {
		version = xprivVersion
	} else {
		version = xpubVersion
	}
	vb := make([]byte, 4)
	binary.BigEndian.PutUint32(vb, version)
	buf = append(buf, vb...)
	buf = append(buf, k.depth)
	buf = append(buf, k.parentFP[:]...)
	cn := make([]byte, 4)
	binary.BigEndian.PutUint32(cn, k.childNum)
	buf = append(buf, cn...)
	buf = append(buf, k.chainCode[:]...)
	if private {
		keyBytes := k.priv.Key.Bytes()
		buf = append(buf, 0x00)
		buf = append(buf, keyBytes[:]...)
	} else {
		buf = append(buf, k.PublicKeyCompressed()...)
	}
	return base58CheckEncode(buf), nil
}

// ParseExtendedKeyPublic parses a base58check xpub string into a public-only node.
func ParseExtendedKeyPublic(s string) (*ExtendedKey, error) {
	raw, err := base58CheckDecode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != 78 {
		return nil, errors.New("crypto: malformed extended key")
	}
	k := &ExtendedKey{depth: raw[4]}
	copy(k.parentFP[:], raw[5:9])
	k.childNum = binary.BigEndian.Uint32(raw[9:13])
	copy(k.chainCode[:], raw[13:45])
	pub, err := secp.ParsePubKey(raw[45:78])
	if err != nil {
		return nil, fmt.Errorf("crypto: parse pubkey: %w", err)
	}
	k.pub = pub
	return k, nil
}

// ParseExtendedKeyPrivate parses a base58check xpriv string.
func ParseExtendedKeyPrivate(s string) (*ExtendedKey, error) {
	raw, err := base58CheckDecode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != 78 || raw[45] != 0x00 {
		return nil, errors.New("crypto: malformed extended private key")
	}
	k := &ExtendedKey{depth: raw[4]}
	copy(k.parentFP[:], raw[5:9])
	k.childNum = binary.BigEndian.Uint32(raw[9:13])
	copy(k.chainCode[:], raw[13:45])
	k.priv = secp.PrivKeyFromBytes(raw[46:78])
	k.pub = k.priv.PubKey()
	return k, nil
}

//---------------------------------------------------------------------
// Address encoding
//---------------------------------------------------------------------

func hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

// EncodeAddress base58check-encodes a 20-byte hash under the given version byte.
func EncodeAddress(versionByte byte, hash20 []byte) string {
	buf := make([]byte, 0, 21)
	buf = append(buf, versionByte)
	buf = append(buf, hash20...)
	return base58CheckEncode(buf)
}

func base58CheckEncode(payload []byte) string {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	full := append(append([]byte{}, payload...), second[:4]...)
	return base58.Encode(full)
}

func base58CheckDecode(s string) ([]byte, error) {
	full, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(full) < 4 {
		return nil, errors.New("crypto: base58check payload too short")
	}
	payload, checksum := full[:len(full)-4], full[len(full)-4:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if checksum[i] != second[i] {
			return nil, errors.New("crypto: base58check checksum mismatch")
		}
	}
	return payload, nil
}

// SortPubKeysHex sorts cosigner pubkeys lexicographically by hex encoding,
// the ordering load-bearing for redeem-script construction and threshold
// signature assembly (§4.3, §4.8).
func SortPubKeysHex(pubkeysHex []string) []string {
	out := append([]string{}, pubkeysHex...)
	sort.Strings(out)
	return out
}

//---------------------------------------------------------------------
// Signing
//---------------------------------------------------------------------

// SignECDSA signs digest with priv and returns a 64-byte compact (R||S)
// signature, low-S normalized.
func SignECDSA(priv *secp.PrivateKey, digest []byte) ([]byte, error) {
	btcPriv := btcec.PrivKeyFromBytes(priv.Serialize())
	sig := ecdsa.Sign(btcPriv, digest)
	der := sig.Serialize()

	var parsed struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(der, &parsed); err != nil {
		return nil, fmt.Errorf("crypto: parse DER signature: %w", err)
	}
	s := parsed.S
	halfOrder := new(big.Int).Rsh(secp256k1Order, 1)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(secp256k1Order, s)
	}

	out := make([]byte, 64)
	parsed.R.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

// VerifyECDSA verifies a 64-byte compact signature against a compressed pubkey.
func VerifyECDSA(pubKeyCompressed, digest, sig64 []byte) (bool, error) {
	if len(sig64) != 64 {
		return false, errors.New("crypto: signature must be 64 bytes")
	}
	pub, err := secp.ParsePubKey(pubKeyCompressed)
	if err != nil {
		return false, err
	}
	r := new(big.Int).SetBytes(sig64[:32])
	s := new(big.Int).SetBytes(sig64[32:])
	der, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	if err != nil {
		return false, err
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return false, err
	}
	btcPub, err := btcec.ParsePubKey(pub.SerializeCompressed())
	if err != nil {
		return false, err
	}
	return sig.Verify(digest, btcPub), nil
}

//---------------------------------------------------------------------
// Symmetric encryption of secrets at rest
//---------------------------------------------------------------------

const scryptN, scryptR, scryptP, scryptKeyLen = 1 << 15, 8, 1, 32

func deriveKDFKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// EncryptSecret authenticated-encrypts secret under a KDF of passphrase.
func EncryptSecret(secret []byte, passphrase string) (*EncryptedBlob, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := deriveKDFKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, nonce, secret, nil)
	return &EncryptedBlob{Salt: salt, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// DecryptSecret reverses EncryptSecret. Returns wrongSecretErr (ErrWrongPin
// or ErrWrongPassword, supplied by the caller) on authentication failure.
func DecryptSecret(blob *EncryptedBlob, passphrase string, wrongSecretErr error) ([]byte, error) {
	key, err := deriveKDFKey(passphrase, blob.Salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, wrongSecretErr
	}
	return plaintext, nil
}

// Wipe zeroes a byte slice in place (best effort; the GC may have copied it).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

//---------------------------------------------------------------------
// AccessData construction (§4.1)
//---------------------------------------------------------------------

// AccessFromSeed derives a fresh AccessData from a BIP39 mnemonic: master
// xpriv -> account xpriv at the path matching kind, main xpriv encrypted
// under pin, seed words encrypted under password. kind selects the
// single vs threshold account derivation path. No address version byte is
// stored in AccessData; address derivation reads it from NetworkParams at
// call time.
func AccessFromSeed(words, passphrase, pin, password string, kind WalletKind) (*AccessData, error) {
	seed, err := MnemonicToSeed(words, passphrase)
	if err != nil {
		return nil, wrap(err, "mnemonic to seed")
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, wrap(err, "derive master key")
	}
	account, err := DeriveAccount(master, kind)
	if err != nil {
		return nil, wrap(err, "derive account")
	}
	xpriv, err := account.Serialize(true)
	if err != nil {
		return nil, wrap(err, "serialize account xpriv")
	}
	encXpriv, err := EncryptSecret([]byte(xpriv), pin)
	if err != nil {
		return nil, wrap(err, "encrypt main xpriv")
	}
	encWords, err := EncryptSecret([]byte(words), password)
	if err != nil {
		return nil, wrap(err, "encrypt seed words")
	}
	xpub, err := account.Serialize(false)
	if err != nil {
		return nil, wrap(err, "serialize account xpub")
	}
	a := &AccessData{
		WalletKind:         kind,
		EncryptedMainXPriv: encXpriv,
		EncryptedSeedWords: encWords,
		AccountXPub:        xpub,
	}
	if kind == KindThreshold {
		a.OwnAccountPubKey = hexEncode(account.Neuter().PublicKeyCompressed())
	}
	return a, nil
}

// AccessFromXpriv builds watch-capable AccessData around an already-derived
// account xpriv, with no seed words to encrypt (the wallet was imported,
// not created). kind is inferred from the caller; xpriv itself carries no
// wallet-kind marker in BIP32's wire format.
func AccessFromXpriv(xpriv, pin string, kind WalletKind) (*AccessData, error) {
	account, err := ParseExtendedKeyPrivate(xpriv)
	if err != nil {
		return nil, wrap(err, "parse xpriv")
	}
	encXpriv, err := EncryptSecret([]byte(xpriv), pin)
	if err != nil {
		return nil, wrap(err, "encrypt main xpriv")
	}
	xpub, err := account.Serialize(false)
	if err != nil {
		return nil, wrap(err, "serialize account xpub")
	}
	a := &AccessData{
		WalletKind:         kind,
		EncryptedMainXPriv: encXpriv,
		AccountXPub:        xpub,
	}
	if kind == KindThreshold {
		a.OwnAccountPubKey = hexEncode(account.Neuter().PublicKeyCompressed())
	}
	return a, nil
}

// AccessFromXpub builds a watch-only AccessData: no private material at
// all, derive_address and balance tracking work, signing does not (the
// caller gets ReadOnly unless an external signer is installed).
func AccessFromXpub(xpub string, kind WalletKind) (*AccessData, error) {
	if _, err := ParseExtendedKeyPublic(xpub); err != nil {
		return nil, wrap(err, "parse xpub")
	}
	return &AccessData{
		WalletKind:  kind,
		AccountXPub: xpub,
	}, nil
}

// UnlockMainXPriv decrypts AccessData's main xpriv under pin and parses it
// back into an account-level ExtendedKey ready for DeriveChildAddress/
// signing. Returns ErrNotInitialized for a watch-only AccessData and
// ErrWrongPin when pin fails to authenticate the stored ciphertext.
func UnlockMainXPriv(a *AccessData, pin string) (*ExtendedKey, error) {
	if a == nil || a.EncryptedMainXPriv == nil {
		return nil, ErrNotInitialized
	}
	plain, err := DecryptSecret(a.EncryptedMainXPriv, pin, ErrWrongPin)
	if err != nil {
		return nil, err
	}
	defer Wipe(plain)
	xpriv := string(plain)
	return ParseExtendedKeyPrivate(xpriv)
}

// UnlockSeedWords decrypts AccessData's seed words under password. Returns
// ErrNotInitialized when the wallet was created from an xpriv/xpub
// directly (no seed words were ever encrypted) and ErrWrongPassword when
// password fails to authenticate the stored ciphertext.
func UnlockSeedWords(a *AccessData, password string) (string, error) {
	if a == nil || a.EncryptedSeedWords == nil {
		return "", ErrNotInitialized
	}
	plain, err := DecryptSecret(a.EncryptedSeedWords, password, ErrWrongPassword)
	if err != nil {
		return "", err
	}
	defer Wipe(plain)
	return string(plain), nil
}
