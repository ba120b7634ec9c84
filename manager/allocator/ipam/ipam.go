package ipam

import (
	"net/netip"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/pkg/errors"
)

// ParseCIDR validates an IPv4 block and returns it in canonical form, with
// the host bits cleared.
func ParseCIDR(cidr string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, ErrInvalidCIDR{cidr: cidr, problem: "not in address/length form"}
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, ErrInvalidCIDR{cidr: cidr, problem: "only IPv4 blocks are supported"}
	}
	return prefix.Masked(), nil
}

// usable returns the first and last address that may be handed out.
// Network and broadcast addresses are excluded for blocks larger than /31.
func usable(prefix netip.Prefix) (first, last netip.Addr) {
	first = prefix.Addr()
	a := first.As4()
	hostBits := 32 - prefix.Bits()
	for i := 3; i >= 0 && hostBits > 0; i-- {
		n := hostBits
		if n > 8 {
			n = 8
		}
		a[i] |= byte(1<<n - 1)
		hostBits -= n
	}
	last = netip.AddrFrom4(a)
	if prefix.Bits() < 31 {
		first = first.Next()
		last = last.Prev()
	}
	return first, last
}

func parseAddress(address string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, ErrInvalidAddress{address: address}
	}
	return addr, nil
}

func networkPrefix(network *api.Network) (netip.Prefix, error) {
	prefix, err := ParseCIDR(network.CIDR)
	if err != nil {
		return netip.Prefix{}, errors.Wrapf(err, "network %s", network.ID)
	}
	return prefix, nil
}

// checkInRange returns ErrAddressOutOfRange if addr cannot be handed out in
// prefix.
func checkInRange(prefix netip.Prefix, addr netip.Addr) error {
	first, last := usable(prefix)
	if !prefix.Contains(addr) || addr.Less(first) || last.Less(addr) {
		return ErrAddressOutOfRange{address: addr.String(), cidr: prefix.String()}
	}
	return nil
}

// Allocate reserves an address of network for nodeID. If preferred is set
// that exact address is reserved or an error is returned; otherwise the
// lowest free address is used.
func Allocate(tx store.Tx, network *api.Network, nodeID, preferred string) (string, error) {
	prefix, err := networkPrefix(network)
	if err != nil {
		return "", err
	}

	var addr netip.Addr
	if preferred != "" {
		addr, err = parseAddress(preferred)
		if err != nil {
			return "", err
		}
		if err := checkInRange(prefix, addr); err != nil {
			return "", err
		}
		if held := store.GetAllocation(tx, api.AllocationID(network.ID, addr.String())); held != nil {
			return "", ErrAddressUnavailable{address: addr.String(), holder: held.NodeID}
		}
	} else {
		addr, err = lowestFree(tx, network.ID, prefix)
		if err != nil {
			return "", err
		}
	}

	address := addr.String()
	if err := store.CreateAllocation(tx, &api.Allocation{
		ID:        api.AllocationID(network.ID, address),
		NetworkID: network.ID,
		Address:   address,
		NodeID:    nodeID,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to record allocation of %s", address)
	}
	return address, nil
}

func lowestFree(tx store.ReadTx, networkID string, prefix netip.Prefix) (netip.Addr, error) {
	allocations, err := store.FindAllocations(tx, store.ByNetworkID(networkID))
	if err != nil {
		return netip.Addr{}, err
	}
	held := make(map[netip.Addr]struct{}, len(allocations))
	for _, a := range allocations {
		if addr, err := netip.ParseAddr(a.Address); err == nil {
			held[addr] = struct{}{}
		}
	}

	first, last := usable(prefix)
	for addr := first; addr.IsValid() && !last.Less(addr); addr = addr.Next() {
		if _, ok := held[addr]; !ok {
			return addr, nil
		}
	}
	return netip.Addr{}, ErrAddressSpaceExhausted{cidr: prefix.String()}
}

// Release frees address in the network. Releasing an address that is not
// held is a no-op.
func Release(tx store.Tx, networkID, address string) error {
	if address == "" {
		return nil
	}
	err := store.DeleteAllocation(tx, api.AllocationID(networkID, address))
	if err == store.ErrNotExist {
		return nil
	}
	return err
}

// IsAvailable reports whether address could be allocated in network right
// now. Malformed or out of range addresses return an error.
func IsAvailable(tx store.ReadTx, network *api.Network, address string) (bool, error) {
	prefix, err := networkPrefix(network)
	if err != nil {
		return false, err
	}
	addr, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	if err := checkInRange(prefix, addr); err != nil {
		return false, err
	}
	return store.GetAllocation(tx, api.AllocationID(network.ID, addr.String())) == nil, nil
}

// Holder returns the ID of the node holding address, or "" when the address
// is free.
func Holder(tx store.ReadTx, networkID, address string) string {
	a := store.GetAllocation(tx, api.AllocationID(networkID, address))
	if a == nil {
		return ""
	}
	return a.NodeID
}
