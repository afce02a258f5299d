package world

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/cespare/xxhash/v2"
	"go4.org/netipx"
)

// subnetPlan is one campaign subnet's validated address space.
type subnetPlan struct {
	prefix netip.Prefix
	set    *netipx.IPSet
}

func newSubnetPlan(cidr string) (subnetPlan, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return subnetPlan{}, fmt.Errorf("invalid cidr %q: %w", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return subnetPlan{}, fmt.Errorf("only IPv4 subnets are supported: %q", cidr)
	}

	var b netipx.IPSetBuilder
	b.AddPrefix(prefix)
	set, err := b.IPSet()
	if err != nil {
		return subnetPlan{}, fmt.Errorf("building ip set for %q: %w", cidr, err)
	}

	return subnetPlan{prefix: prefix.Masked(), set: set}, nil
}

func addOffset(addr netip.Addr, offset uint32) netip.Addr {
	a4 := addr.As4()
	v := binary.BigEndian.Uint32(a4[:]) + offset
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return netip.AddrFrom4(out)
}

func hostCount(prefix netip.Prefix) uint32 {
	bits := uint32(32 - prefix.Bits())
	if bits >= 32 {
		return 0xFFFFFFFF
	}
	return uint32(1) << bits
}

// hostSuffixIP resolves an interface with an explicit hostSuffix into the
// subnet's address plan.
func (p subnetPlan) hostSuffixIP(suffix uint32) (netip.Addr, error) {
	count := hostCount(p.prefix)
	if suffix == 0 || suffix >= count-1 {
		return netip.Addr{}, fmt.Errorf("hostSuffix %d out of range for %s", suffix, p.prefix)
	}
	addr := addOffset(p.prefix.Addr(), suffix)
	if !p.set.Contains(addr) {
		return netip.Addr{}, fmt.Errorf("derived address %s not within %s", addr, p.prefix)
	}
	return addr, nil
}

// deterministicIP derives a stable, collision-resistant host address from
// worldSeed+nodeId+netId when no explicit hostSuffix is given. The usable host range (excluding network/broadcast) is capped
// at 65534 addresses for the modulo so a single huge subnet doesn't
// change the hashing distribution in a way that's hard to reason about;
// real deployments are expected to size subnets well under a /16.
func (p subnetPlan) deterministicIP(worldSeed, nodeID, netID string) (netip.Addr, error) {
	count := hostCount(p.prefix)
	usable := count - 2
	if usable < 1 {
		return netip.Addr{}, fmt.Errorf("subnet %s has no usable host addresses", p.prefix)
	}
	capped := usable
	if capped > 65534 {
		capped = 65534
	}

	h := xxhash.Sum64String(worldSeed + "\x00" + nodeID + "\x00" + netID)
	offset := uint32(h%uint64(capped)) + 1 // skip network address (offset 0)

	addr := addOffset(p.prefix.Addr(), offset)
	if !p.set.Contains(addr) {
		return netip.Addr{}, fmt.Errorf("derived address %s not within %s", addr, p.prefix)
	}
	return addr, nil
}
