package encryption

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const naclSecretboxKeySize = 32
const naclSecretboxNonceSize = 24

// NACLSecretbox is an implementation of an encrypter/decrypter. Encrypting
// generates random Nonces.
type NACLSecretbox struct {
	key [naclSecretboxKeySize]byte
}

// NewNACLSecretbox returns a new NACL secretbox encrypter/decrypter with the
// given key
func NewNACLSecretbox(key []byte) NACLSecretbox {
	secretbox := NACLSecretbox{}
	copy(secretbox.key[:], key)
	return secretbox
}

// Algorithm returns the type of algorithm this is (NACL Secretbox using
// XSalsa20 and Poly1305)
func (n NACLSecretbox) Algorithm() Algorithm {
	return NACLSecretboxAlgorithm
}

// Encrypt encrypts some bytes and returns an encrypted record. The nonce is
// stored in front of the box.
func (n NACLSecretbox) Encrypt(data []byte) (*Record, error) {
	var nonce [naclSecretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	// Seal appends the box to the nonce
	return &Record{
		Algorithm: n.Algorithm(),
		Data:      secretbox.Seal(nonce[:], data, &nonce, &n.key),
	}, nil
}

// Decrypt decrypts a Record and returns some bytes
func (n NACLSecretbox) Decrypt(record Record) ([]byte, error) {
	if record.Algorithm != n.Algorithm() {
		return nil, fmt.Errorf("not a NACL secretbox record")
	}
	if len(record.Data) < naclSecretboxNonceSize {
		return nil, fmt.Errorf("invalid nonce size for NACL secretbox: require 24, got %d", len(record.Data))
	}

	var decryptNonce [naclSecretboxNonceSize]byte
	copy(decryptNonce[:], record.Data[:naclSecretboxNonceSize])

	decrypted, ok := secretbox.Open(nil, record.Data[naclSecretboxNonceSize:], &decryptNonce, &n.key)
	if !ok {
		return nil, fmt.Errorf("decryption error using NACL secretbox")
	}
	return decrypted, nil
}
