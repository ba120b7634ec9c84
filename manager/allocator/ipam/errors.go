package ipam

import (
	"fmt"
)

// ErrAddressSpaceExhausted is returned when every usable address of a
// network is held.
type ErrAddressSpaceExhausted struct {
	cidr string
}

// Error returns a formatted error string naming the exhausted block
func (e ErrAddressSpaceExhausted) Error() string {
	return fmt.Sprintf("no free address left in %v", e.cidr)
}

// IsErrAddressSpaceExhausted returns true if the type of the error is
// ErrAddressSpaceExhausted
func IsErrAddressSpaceExhausted(e error) bool {
	_, ok := e.(ErrAddressSpaceExhausted)
	return ok
}

// ErrAddressUnavailable is returned when a requested address is already held
// by a node of the same network.
type ErrAddressUnavailable struct {
	address string
	holder  string
}

// Error returns a formatted error string explaining which address is taken
func (e ErrAddressUnavailable) Error() string {
	return fmt.Sprintf("address %v is already assigned to node %v", e.address, e.holder)
}

// IsErrAddressUnavailable returns true if the type of the error is
// ErrAddressUnavailable
func IsErrAddressUnavailable(e error) bool {
	_, ok := e.(ErrAddressUnavailable)
	return ok
}

// ErrAddressOutOfRange is returned when a requested address lies outside the
// network's block, or is the block's network or broadcast address.
type ErrAddressOutOfRange struct {
	address string
	cidr    string
}

// Error returns a formatted error string explaining which address is out of
// range
func (e ErrAddressOutOfRange) Error() string {
	return fmt.Sprintf("address %v is not a usable address of %v", e.address, e.cidr)
}

// IsErrAddressOutOfRange returns true if the type of the error is
// ErrAddressOutOfRange
func IsErrAddressOutOfRange(e error) bool {
	_, ok := e.(ErrAddressOutOfRange)
	return ok
}

// ErrInvalidAddress is an error type indicating that a requested address's
// string form is not a valid IPv4 address.
type ErrInvalidAddress struct {
	address string
}

// Error returns a formatted error message explaining which address is invalid
func (e ErrInvalidAddress) Error() string {
	return fmt.Sprintf("address %q is not a valid IPv4 address", e.address)
}

// IsErrInvalidAddress returns true if the type of the error is
// ErrInvalidAddress.
func IsErrInvalidAddress(e error) bool {
	_, ok := e.(ErrInvalidAddress)
	return ok
}

// ErrInvalidCIDR is returned for an address block that cannot back a
// network.
type ErrInvalidCIDR struct {
	cidr    string
	problem string
}

// Error returns a formatted error message explaining what is wrong with the
// block
func (e ErrInvalidCIDR) Error() string {
	return fmt.Sprintf("invalid network block %q: %v", e.cidr, e.problem)
}

// IsErrInvalidCIDR returns true if the type of the error is ErrInvalidCIDR
func IsErrInvalidCIDR(e error) bool {
	_, ok := e.(ErrInvalidCIDR)
	return ok
}
