// Package encryption seals private key material before it is written to the
// manager's state database.
package encryption

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const humanReadablePrefix = "MKKEY-1-"

// Algorithm identifies how a record was sealed.
type Algorithm byte

const (
	NotEncrypted Algorithm = iota
	NACLSecretboxAlgorithm
	FernetAlgorithm
)

func (a Algorithm) String() string {
	switch a {
	case NotEncrypted:
		return "none"
	case NACLSecretboxAlgorithm:
		return "nacl-secretbox"
	case FernetAlgorithm:
		return "fernet"
	}
	return fmt.Sprintf("unknown(%d)", byte(a))
}

// recordMagic prefixes every sealed record, followed by one Algorithm byte.
var recordMagic = []byte("MKENC\x01")

// Record is a possibly encrypted payload together with the algorithm used to
// produce it.
type Record struct {
	Algorithm Algorithm
	Data      []byte
}

// ErrCannotDecrypt is the type of error returned when some data cannot be
// decrypted as plaintext
type ErrCannotDecrypt struct {
	msg string
}

func (e ErrCannotDecrypt) Error() string {
	return e.msg
}

// A Decrypter can decrypt an encrypted record
type Decrypter interface {
	Decrypt(Record) ([]byte, error)
}

// A Encrypter can encrypt some bytes into an encrypted record
type Encrypter interface {
	Encrypt(data []byte) (*Record, error)
}

type noopCrypter struct{}

func (n noopCrypter) Decrypt(e Record) ([]byte, error) {
	if e.Algorithm != n.Algorithm() {
		return nil, fmt.Errorf("record is encrypted")
	}
	return e.Data, nil
}

func (n noopCrypter) Encrypt(data []byte) (*Record, error) {
	return &Record{
		Algorithm: n.Algorithm(),
		Data:      data,
	}, nil
}

func (n noopCrypter) Algorithm() Algorithm {
	return NotEncrypted
}

// NoopCrypter is just a pass-through crypter - it does not actually encrypt or
// decrypt any data
var NoopCrypter = noopCrypter{}

// MultiDecrypter is a decrypter that will attempt to decrypt with multiple
// decrypters. It tries the ones registered for the record's algorithm first.
type MultiDecrypter struct {
	decrypters map[Algorithm][]Decrypter
}

// Decrypt tries to decrypt using any decrypters that match the given
// algorithm.
func (m MultiDecrypter) Decrypt(r Record) ([]byte, error) {
	decrypters, ok := m.decrypters[r.Algorithm]
	if !ok {
		return nil, fmt.Errorf("cannot decrypt record encrypted using %s", r.Algorithm)
	}
	var rerr error
	for _, d := range decrypters {
		result, err := d.Decrypt(r)
		if err == nil {
			return result, nil
		}
		rerr = err
	}
	return nil, rerr
}

type algorithmer interface {
	Algorithm() Algorithm
}

// NewMultiDecrypter returns a new MultiDecrypter given multiple Decrypters.
// If any of the Decrypters are also MultiDecrypters, they are flattened into
// a single map.
func NewMultiDecrypter(decrypters ...Decrypter) MultiDecrypter {
	m := MultiDecrypter{decrypters: make(map[Algorithm][]Decrypter)}
	for _, d := range decrypters {
		switch v := d.(type) {
		case MultiDecrypter:
			for algo, ds := range v.decrypters {
				m.decrypters[algo] = append(m.decrypters[algo], ds...)
			}
		case algorithmer:
			m.decrypters[v.Algorithm()] = append(m.decrypters[v.Algorithm()], d)
		}
	}
	return m
}

// Decrypt turns a sealed record into a slice of plaintext bytes.
func Decrypt(encrypted []byte, decrypter Decrypter) ([]byte, error) {
	if decrypter == nil {
		return nil, ErrCannotDecrypt{msg: "no decrypter specified"}
	}
	r, err := parseRecord(encrypted)
	if err != nil {
		return nil, ErrCannotDecrypt{msg: err.Error()}
	}
	plaintext, err := decrypter.Decrypt(*r)
	if err != nil {
		return nil, ErrCannotDecrypt{msg: err.Error()}
	}
	return plaintext, nil
}

// Encrypt turns a slice of bytes into a sealed record.
func Encrypt(plaintext []byte, encrypter Encrypter) ([]byte, error) {
	if encrypter == nil {
		return nil, fmt.Errorf("no encrypter specified")
	}

	r, err := encrypter.Encrypt(plaintext)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encrypt data")
	}

	out := make([]byte, 0, len(recordMagic)+1+len(r.Data))
	out = append(out, recordMagic...)
	out = append(out, byte(r.Algorithm))
	return append(out, r.Data...), nil
}

func parseRecord(p []byte) (*Record, error) {
	if len(p) < len(recordMagic)+1 || !bytes.HasPrefix(p, recordMagic) {
		return nil, fmt.Errorf("data is not a sealed record")
	}
	return &Record{
		Algorithm: Algorithm(p[len(recordMagic)]),
		Data:      p[len(recordMagic)+1:],
	}, nil
}

// Defaults returns a default encrypter and decrypter. Records are sealed
// with NaCl secretbox unless fernetOnly is set. The decrypter reads both
// formats unless fernetOnly is set, in which case it only reads Fernet.
func Defaults(key []byte, fernetOnly bool) (Encrypter, Decrypter) {
	f := NewFernet(key)
	if fernetOnly {
		return f, f
	}
	n := NewNACLSecretbox(key)
	return n, NewMultiDecrypter(n, f)
}

// GenerateSecretKey generates a secret key that can be used for encrypting
// data using this package
func GenerateSecretKey() []byte {
	secretData := make([]byte, naclSecretboxKeySize)
	if _, err := io.ReadFull(rand.Reader, secretData); err != nil {
		// panic if we can't read random data
		panic(errors.Wrap(err, "failed to read random bytes"))
	}
	return secretData
}

// HumanReadableKey displays a secret key in a human readable way
func HumanReadableKey(key []byte) string {
	return humanReadablePrefix + base64.StdEncoding.EncodeToString(key)
}

// ParseHumanReadableKey returns a key as bytes from recognized serializations
// of said keys
func ParseHumanReadableKey(key string) ([]byte, error) {
	if !strings.HasPrefix(key, humanReadablePrefix) {
		return nil, fmt.Errorf("invalid key string")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(key, humanReadablePrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid key string")
	}
	return keyBytes, nil
}
