// Package ipam hands out overlay addresses from a network's address block.
//
// The ipam package has sole authority over the following, and should be the
// only component that writes to them
//
//   - api.Allocation objects in the store
//   - api.Node.Address
//
// All functions run inside a store transaction. The store allows one write
// transaction at a time, so two allocations can never observe the same free
// address.
package ipam
