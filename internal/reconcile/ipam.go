package reconcile

import (
	"context"
	"fmt"
	"net/netip"

	"toposync/internal/domain"
)

// DefaultMask is recorded on addresses observed without a netmask
const DefaultMask = "255.255.255.0"

// SubnetKey returns the /24 network an IPv4 address falls in, as the first
// three octets ("10.0.0" for 10.0.0.5)
func SubnetKey(addr string) (string, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return "", fmt.Errorf("%q is not an IPv4 address: %w", addr, domain.ErrInvalidArgument)
	}
	o := ip.As4()
	return fmt.Sprintf("%d.%d.%d", o[0], o[1], o[2]), nil
}

// SubnetName is the inventory name of the /24 holding addr
func SubnetName(key string) string {
	return key + ".0/24"
}

// ensureSubnet finds or creates the /24 subnet for key in the IPv4 root pool
func (s *session) ensureSubnet(ctx context.Context, key string) (domain.ObjectLight, bool) {
	name := SubnetName(key)
	if subnet, ok := s.snap.Subnet(name); ok {
		return subnet, true
	}
	if s.snap.RootPool == nil {
		s.res.Error(fmt.Sprintf("%s [Subnet] can not be created", name),
			"No IPv4 root pool exists in the IPAM module")
		return domain.ObjectLight{}, false
	}

	id, err := s.store.CreatePoolItem(ctx, s.snap.RootPool.ID, domain.ClassSubnetIPv4, map[string]string{
		domain.AttrName:        name,
		domain.AttrDescription: "created with sync",
		domain.AttrNetworkIP:   key + ".0",
		domain.AttrBroadcastIP: key + ".255",
		domain.AttrHosts:       "254",
	})
	if err != nil {
		s.res.Error(fmt.Sprintf("%s [Subnet] can not be created", name), "%v", err)
		return domain.ObjectLight{}, false
	}

	subnet := domain.ObjectLight{ClassName: domain.ClassSubnetIPv4, ID: id, Name: name}
	s.audit(ctx, domain.ActivityCreateObject, "%s (id:%s)", subnet, id)
	s.snap.addSubnet(subnet)
	s.res.Success("New Subnet", "%s was created in pool %s", name, s.snap.RootPool.Name)
	return subnet, true
}

// ensureAddress finds or creates the address addr inside its /24 subnet.
// An existing address whose mask differs from mask is updated.
func (s *session) ensureAddress(ctx context.Context, addr, mask string) (domain.ObjectLight, bool) {
	if mask == "" {
		mask = DefaultMask
	}
	key, err := SubnetKey(addr)
	if err != nil {
		s.res.Error("Invalid IP address", "%v", err)
		return domain.ObjectLight{}, false
	}

	subnet, ok := s.ensureSubnet(ctx, key)
	if !ok {
		return domain.ObjectLight{}, false
	}

	for _, ip := range s.snap.Addresses(subnet) {
		if ip.Name != addr {
			continue
		}
		current, err := s.store.GetObject(ctx, ip.ClassName, ip.ID)
		if err != nil {
			s.res.Error(fmt.Sprintf("Updating the netmask for IP address %s", ip), "%v", err)
			return ip, true
		}
		if old := current.Attr(domain.AttrMask); old != mask {
			if err := s.store.UpdateObject(ctx, ip.ClassName, ip.ID, map[string]string{domain.AttrMask: mask}); err != nil {
				s.res.Error(fmt.Sprintf("Updating the netmask for IP address %s", ip), "%v", err)
				return ip, true
			}
			s.audit(ctx, domain.ActivityUpdateObject, "%s (%s)", ip, ip.ID)
			s.res.Success(fmt.Sprintf("Updating the netmask for IP address %s", ip), "From: %s to: %s", old, mask)
		}
		return ip, true
	}

	id, err := s.store.CreateSpecialObject(ctx, domain.ClassIPAddress, subnet.ClassName, subnet.ID, map[string]string{
		domain.AttrName:        addr,
		domain.AttrDescription: "Created by the sync provider",
		domain.AttrMask:        mask,
	})
	if err != nil {
		s.res.Error(fmt.Sprintf("ipAddr: %s was not added to subnet: %s", addr, subnet), "%v", err)
		return domain.ObjectLight{}, false
	}

	ip := domain.ObjectLight{ClassName: domain.ClassIPAddress, ID: id, Name: addr}
	s.audit(ctx, domain.ActivityCreateObject, "%s (%s)", ip, id)
	s.snap.addAddress(subnet, ip)
	s.res.Success("Added IP address to Subnet", "%s was added to subnet %s successfully", addr, subnet)
	return ip, true
}
