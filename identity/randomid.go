package identity

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"strings"
)

var (
	// idReader is used for random id generation. This declaration allows us to
	// replace it for testing.
	idReader = cryptorand.Reader
)

// parameters for random identifier generation. We can tweak this when there is
// time for further analysis.
const (
	randomIDEntropyBytes = 17
	randomIDBase         = 36

	// To ensure that all identifiers are fixed length, we make sure they
	// get padded out or truncated to 25 characters.
	//
	// For academics,  f5lxx1zz5pnorynqglhzmsp33  == 2^128 - 1. This value
	// was calculated from floor(log(2^128-1, 36)) + 1.
	//
	// While 128 bits is the largest whole-byte size that fits into 25
	// base-36 characters, we generate an extra byte of entropy to fill
	// in the high bits, which would otherwise be 0. This gives us a more
	// even distribution of the first character.
	maxRandomIDLength = 25

	// EnrollmentCodeLength is the number of characters in an enrollment
	// code. 16 characters of a 32 symbol alphabet carry 80 bits.
	EnrollmentCodeLength = 16

	// enrollmentCodeAlphabet leaves out 0, 1, I and O so codes can be read
	// aloud or typed from a screen.
	enrollmentCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	deviceTokenEntropyBytes = 32
	deviceTokenPrefix       = "mkt_"
)

// NewID generates a new identifier for use where random identifiers with low
// collision probability are required.
//
// With the parameters in this package, the generated identifier will provide
// ~129 bits of entropy encoded with base36. Leading padding is added if the
// string is less 25 bytes. We do not intend to maintain this interface, so
// identifiers should be treated opaquely.
func NewID() string {
	var p [randomIDEntropyBytes]byte

	if _, err := io.ReadFull(idReader, p[:]); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	p[0] |= 0x80 // set high bit to avoid the need for padding
	return (&big.Int{}).SetBytes(p[:]).Text(randomIDBase)[1 : maxRandomIDLength+1]
}

// NewEnrollmentCode returns a short, single-use code meant to be copied to a
// device by hand.
func NewEnrollmentCode() string {
	var p [EnrollmentCodeLength]byte
	if _, err := io.ReadFull(idReader, p[:]); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	// The alphabet has exactly 32 symbols, so the low five bits of each byte
	// map onto it without bias.
	var sb strings.Builder
	sb.Grow(EnrollmentCodeLength)
	for _, b := range p {
		sb.WriteByte(enrollmentCodeAlphabet[b&0x1f])
	}
	return sb.String()
}

// NormalizeEnrollmentCode strips whitespace and dashes and upper-cases the
// code so that "abcd-efgh ..." typed by an operator matches the issued code.
func NormalizeEnrollmentCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

// ValidEnrollmentCode reports whether code has the shape of an enrollment
// code. It says nothing about whether the code was ever issued.
func ValidEnrollmentCode(code string) bool {
	if len(code) != EnrollmentCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(enrollmentCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// NewDeviceToken returns a long-lived bearer secret for a device.
func NewDeviceToken() string {
	var p [deviceTokenEntropyBytes]byte
	if _, err := io.ReadFull(idReader, p[:]); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}
	return deviceTokenPrefix + base64.RawURLEncoding.EncodeToString(p[:])
}
