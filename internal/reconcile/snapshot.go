package reconcile

import (
	"context"
	"fmt"
	"strings"

	"toposync/internal/domain"
	"toposync/internal/repository"
)

// Snapshot is the structure of one device and of the IPv4 IPAM tree as it
// was before a reconciliation started
type Snapshot struct {
	Device       domain.ObjectLight
	Ports        []domain.ObjectLight
	VirtualPorts []domain.ObjectLight

	// RootPool is the IPv4 IPAM root, nil when the inventory has none
	RootPool *domain.Pool

	portAddrs   map[domain.ObjectKey][]domain.ObjectLight
	subnets     []domain.ObjectLight
	subnetNames map[string]domain.ObjectLight
	nested      map[domain.ObjectKey][]domain.ObjectLight
	addrs       map[domain.ObjectKey][]domain.ObjectLight
	addrNames   map[string][]domain.ObjectLight
}

func newSnapshot(device domain.ObjectLight) *Snapshot {
	return &Snapshot{
		Device:      device,
		portAddrs:   make(map[domain.ObjectKey][]domain.ObjectLight),
		subnetNames: make(map[string]domain.ObjectLight),
		nested:      make(map[domain.ObjectKey][]domain.ObjectLight),
		addrs:       make(map[domain.ObjectKey][]domain.ObjectLight),
		addrNames:   make(map[string][]domain.ObjectLight),
	}
}

// IsPort reports whether a class is a physical port
func IsPort(className string) bool {
	return className == domain.ClassElectricalPort ||
		className == domain.ClassSFPPort ||
		strings.Contains(className, domain.ClassOpticalPort)
}

// IsVirtualPort reports whether a class is a logical port
func IsVirtualPort(className string) bool {
	return className == domain.ClassVirtualPort || className == domain.ClassMPLSTunnel
}

func isSubnet(className string) bool {
	return className == domain.ClassSubnetIPv4 || className == domain.ClassSubnetIPv6
}

type walkItem struct {
	obj     domain.ObjectLight
	special bool
}

// BuildSnapshot reads the device subtree and the IPAM tree. Both walks use
// an explicit queue over visited keys, so deep or cyclic trees are safe.
// Regular children are followed through regular children and special
// children through special children.
func BuildSnapshot(ctx context.Context, inv repository.Inventory, device domain.ObjectLight) (*Snapshot, error) {
	s := newSnapshot(device)
	if err := s.readStructure(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.readIPAM(ctx, inv); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) readStructure(ctx context.Context, inv repository.Inventory) error {
	children, err := inv.GetObjectChildren(ctx, s.Device.ClassName, s.Device.ID)
	if err != nil {
		return fmt.Errorf("children of %s: %w", s.Device, err)
	}
	special, err := inv.GetObjectSpecialChildren(ctx, s.Device.ClassName, s.Device.ID)
	if err != nil {
		return fmt.Errorf("special children of %s: %w", s.Device, err)
	}

	queue := make([]walkItem, 0, len(children)+len(special))
	for _, c := range children {
		queue = append(queue, walkItem{obj: c})
	}
	for _, c := range special {
		queue = append(queue, walkItem{obj: c, special: true})
	}

	visited := map[domain.ObjectKey]bool{s.Device.Key(): true}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if visited[item.obj.Key()] {
			continue
		}
		visited[item.obj.Key()] = true

		switch {
		case IsPort(item.obj.ClassName):
			s.Ports = append(s.Ports, item.obj)
		case IsVirtualPort(item.obj.ClassName):
			s.VirtualPorts = append(s.VirtualPorts, item.obj)
		}
		if IsPort(item.obj.ClassName) || IsVirtualPort(item.obj.ClassName) {
			related, err := inv.GetSpecialAttribute(ctx, item.obj.ClassName, item.obj.ID, domain.RelIPAMHasIPAddress)
			if err != nil {
				return fmt.Errorf("addresses of %s: %w", item.obj, err)
			}
			s.portAddrs[item.obj.Key()] = related
		}

		var next []domain.ObjectLight
		if item.special {
			next, err = inv.GetObjectSpecialChildren(ctx, item.obj.ClassName, item.obj.ID)
		} else {
			next, err = inv.GetObjectChildren(ctx, item.obj.ClassName, item.obj.ID)
		}
		if err != nil {
			return fmt.Errorf("children of %s: %w", item.obj, err)
		}
		for _, c := range next {
			queue = append(queue, walkItem{obj: c, special: item.special})
		}
	}
	return nil
}

func (s *Snapshot) readIPAM(ctx context.Context, inv repository.Inventory) error {
	roots, err := inv.GetRootPools(ctx, domain.ClassSubnetIPv4, domain.PoolTypeModuleRoot)
	if err != nil {
		return fmt.Errorf("IPv4 root pools: %w", err)
	}
	if len(roots) == 0 {
		return nil
	}
	root := roots[0]
	s.RootPool = &root

	var subnets []domain.ObjectLight
	pools := append([]domain.Pool(nil), roots...)
	seenPools := make(map[string]bool)
	for len(pools) > 0 {
		p := pools[0]
		pools = pools[1:]
		if seenPools[p.ID] {
			continue
		}
		seenPools[p.ID] = true

		inner, err := inv.GetPoolsInPool(ctx, p.ID, p.ClassName)
		if err != nil {
			return fmt.Errorf("pools in %s: %w", p.Name, err)
		}
		pools = append(pools, inner...)

		items, err := inv.GetPoolItems(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("items of pool %s: %w", p.Name, err)
		}
		subnets = append(subnets, items...)
	}

	visited := make(map[domain.ObjectKey]bool)
	for len(subnets) > 0 {
		subnet := subnets[0]
		subnets = subnets[1:]
		if visited[subnet.Key()] {
			continue
		}
		visited[subnet.Key()] = true
		s.addSubnet(subnet)

		kids, err := inv.GetObjectSpecialChildren(ctx, subnet.ClassName, subnet.ID)
		if err != nil {
			return fmt.Errorf("children of %s: %w", subnet, err)
		}
		for _, k := range kids {
			if isSubnet(k.ClassName) {
				s.nested[subnet.Key()] = append(s.nested[subnet.Key()], k)
				subnets = append(subnets, k)
				continue
			}
			s.addAddress(subnet, k)
		}
	}
	return nil
}

func (s *Snapshot) addSubnet(subnet domain.ObjectLight) {
	if _, ok := s.subnetNames[subnet.Name]; !ok {
		s.subnetNames[subnet.Name] = subnet
	}
	s.subnets = append(s.subnets, subnet)
}

func (s *Snapshot) addAddress(subnet, addr domain.ObjectLight) {
	s.addrs[subnet.Key()] = append(s.addrs[subnet.Key()], addr)
	s.addrNames[addr.Name] = append(s.addrNames[addr.Name], addr)
}

func (s *Snapshot) relatePort(port, addr domain.ObjectLight) {
	s.portAddrs[port.Key()] = append(s.portAddrs[port.Key()], addr)
}

// PortByAddress returns the device port related to an address named addr,
// physical ports first
func (s *Snapshot) PortByAddress(addr string) *domain.ObjectLight {
	for _, group := range [][]domain.ObjectLight{s.Ports, s.VirtualPorts} {
		for _, port := range group {
			for _, ip := range s.portAddrs[port.Key()] {
				if ip.Name == addr {
					p := port
					return &p
				}
			}
		}
	}
	return nil
}

// PortByName returns the device port with the given name
func (s *Snapshot) PortByName(name string) *domain.ObjectLight {
	for _, group := range [][]domain.ObjectLight{s.Ports, s.VirtualPorts} {
		for _, port := range group {
			if port.Name == name {
				p := port
				return &p
			}
		}
	}
	return nil
}

// PortAddresses returns the addresses related to a port
func (s *Snapshot) PortAddresses(port domain.ObjectLight) []domain.ObjectLight {
	return s.portAddrs[port.Key()]
}

// Subnet finds a subnet by name anywhere in the IPAM tree
func (s *Snapshot) Subnet(name string) (domain.ObjectLight, bool) {
	subnet, ok := s.subnetNames[name]
	return subnet, ok
}

// Subnets returns every known subnet in discovery order
func (s *Snapshot) Subnets() []domain.ObjectLight {
	return s.subnets
}

// NestedSubnets returns the subnets directly inside a subnet
func (s *Snapshot) NestedSubnets(subnet domain.ObjectLight) []domain.ObjectLight {
	return s.nested[subnet.Key()]
}

// Addresses returns the addresses held by a subnet
func (s *Snapshot) Addresses(subnet domain.ObjectLight) []domain.ObjectLight {
	return s.addrs[subnet.Key()]
}

// AddressesNamed returns every address with the given name in any subnet
func (s *Snapshot) AddressesNamed(name string) []domain.ObjectLight {
	return s.addrNames[name]
}

// HasPort reports whether a port belongs to the device
func (s *Snapshot) HasPort(port domain.ObjectLight) bool {
	_, ok := s.portAddrs[port.Key()]
	return ok
}
