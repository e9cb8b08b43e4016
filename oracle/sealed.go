package oracle

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Envelope is the sealed-bid wire format: the bid value encrypted to the
// oracle's exchange key, plus an opaque validity proof. The escrow core
// stores envelopes without interpreting them; only the oracle opens them.
//
// Sealing uses ephemeral X25519 key agreement, HKDF-SHA256 key derivation
// and ChaCha20-Poly1305, with the session ID as AEAD associated data so an
// envelope cannot be replayed into another auction's computation.
type Envelope struct {
	EphemeralKey []byte `cbor:"1,keyasint"`
	Nonce        []byte `cbor:"2,keyasint"`
	Ciphertext   []byte `cbor:"3,keyasint"`
	Proof        []byte `cbor:"4,keyasint,omitempty"`
}

const hkdfInfo = "shadowbid/sealed-bid/v1"

// Seal encrypts a bid value to the oracle's exchange key for the given
// session and returns the CBOR-encoded envelope.
func Seal(oracleKey *ecdh.PublicKey, sessionID string, bidValue uint64) ([]byte, error) {
	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(oracleKey)
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}

	key, err := sealingKey(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var plaintext [8]byte
	binary.BigEndian.PutUint64(plaintext[:], bidValue)

	env := &Envelope{
		EphemeralKey: ephemeral.PublicKey().Bytes(),
		Nonce:        nonce,
		Ciphertext:   aead.Seal(nil, nonce, plaintext[:], []byte(sessionID)),
	}
	return cbor.Marshal(env)
}

// ParseEnvelope decodes a CBOR-encoded envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Open decrypts the envelope with the oracle's private exchange key and
// returns the sealed bid value.
func (e *Envelope) Open(oracleKey *ecdh.PrivateKey, sessionID string) (uint64, error) {
	ephemeral, err := ecdh.X25519().NewPublicKey(e.EphemeralKey)
	if err != nil {
		return 0, fmt.Errorf("parse ephemeral key: %w", err)
	}

	shared, err := oracleKey.ECDH(ephemeral)
	if err != nil {
		return 0, fmt.Errorf("key agreement: %w", err)
	}

	key, err := sealingKey(shared)
	if err != nil {
		return 0, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return 0, fmt.Errorf("create AEAD: %w", err)
	}
	if len(e.Nonce) != aead.NonceSize() {
		return 0, fmt.Errorf("invalid nonce size %d", len(e.Nonce))
	}

	plaintext, err := aead.Open(nil, e.Nonce, e.Ciphertext, []byte(sessionID))
	if err != nil {
		return 0, fmt.Errorf("open envelope: %w", err)
	}
	if len(plaintext) != 8 {
		return 0, fmt.Errorf("invalid bid payload length %d", len(plaintext))
	}

	return binary.BigEndian.Uint64(plaintext), nil
}

func sealingKey(shared []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return key, nil
}
