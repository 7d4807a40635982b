package reconcile

import (
	"context"
	"fmt"
	"strings"

	"toposync/internal/domain"
)

// peerRow is one record of the peer table
type peerRow struct {
	identifier string
	localAddr  string
	remoteAddr string
	remotePort string
	asn        string
	asnName    string
}

// portByRemoteAddress resolves the port related to an address anywhere in
// the IPAM tree
func (s *session) portByRemoteAddress(ctx context.Context, addr string) (*domain.ObjectLight, error) {
	for _, ip := range s.snap.AddressesNamed(addr) {
		related, err := s.store.GetSpecialAttribute(ctx, ip.ClassName, ip.ID, domain.RelIPAMHasIPAddress)
		if err != nil {
			return nil, err
		}
		if len(related) > 0 {
			return &related[0], nil
		}
	}
	return nil, nil
}

// remoteDevice returns the first communications element above port, or
// its direct parent when there is none (ports of peers and virtual ports)
func (s *session) remoteDevice(ctx context.Context, port domain.ObjectLight) (*domain.Object, error) {
	ref, err := s.store.GetFirstParentOfClass(ctx, port.ClassName, port.ID, domain.ClassGenericCommElement)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		if ref, err = s.store.GetParent(ctx, port.ClassName, port.ID); err != nil {
			return nil, err
		}
	}
	if ref == nil {
		return nil, nil
	}
	return s.store.GetObject(ctx, ref.ClassName, ref.ID)
}

// linkBetween returns a BGPLink whose endpoints are the two ports, in
// either orientation
func (s *session) linkBetween(ctx context.Context, a, b domain.ObjectLight) (*domain.ObjectLight, error) {
	relsA, err := s.store.GetSpecialAttributes(ctx, a.ClassName, a.ID)
	if err != nil {
		return nil, err
	}
	relsB, err := s.store.GetSpecialAttributes(ctx, b.ClassName, b.ID)
	if err != nil {
		return nil, err
	}
	if l := intersect(relsA[domain.RelBGPLinkEndpointA], relsB[domain.RelBGPLinkEndpointB]); l != nil {
		return l, nil
	}
	return intersect(relsA[domain.RelBGPLinkEndpointB], relsB[domain.RelBGPLinkEndpointA]), nil
}

func intersect(x, y []domain.ObjectLight) *domain.ObjectLight {
	for _, a := range x {
		for _, b := range y {
			if a.Key() == b.Key() {
				found := a
				return &found
			}
		}
	}
	return nil
}

// createLink creates a BGPLink between the local port and the remote port
// unless one already connects them
func (s *session) createLink(ctx context.Context, row peerRow, localPort domain.ObjectLight, remoteDevice, remotePort domain.ObjectLight) {
	existing, err := s.linkBetween(ctx, localPort, remotePort)
	if err != nil {
		s.res.Error("New BGP Link", "Could not create BGPLink: %v", err)
		return
	}
	if existing != nil {
		s.res.Info(fmt.Sprintf("BGPLink exists with ASN %s(%s)", row.asnName, row.asn),
			"Has local endpoint in: %s and remote endpoint: %s in device %s", localPort, remotePort, remoteDevice)
		return
	}

	id, err := s.store.CreateSpecialObject(ctx, domain.ClassBGPLink, "", "", map[string]string{
		domain.AttrName:              row.asnName,
		domain.AttrBGPPeerIdentifier: row.identifier,
	})
	if err != nil {
		s.res.Error("New BGP Link", "Could not create BGPLink: %v", err)
		return
	}
	link := domain.ObjectLight{ClassName: domain.ClassBGPLink, ID: id, Name: row.asnName}
	s.audit(ctx, domain.ActivityCreateObject, "%s (%s)", link, id)

	if err := s.relate(ctx, link, localPort, domain.RelBGPLinkEndpointA, false); err != nil {
		s.res.Error("New BGP Link", "Could not create BGPLink: %v", err)
		return
	}
	if err := s.relate(ctx, link, s.device, domain.RelBGPLink, false); err != nil {
		s.res.Error("New BGP Link", "Could not create BGPLink: %v", err)
		return
	}
	s.res.Success("New BGPLink Source", "%s related to IP address %s and ASN %s(%s)",
		localPort, row.localAddr, row.asnName, row.asn)

	if err := s.relate(ctx, link, remotePort, domain.RelBGPLinkEndpointB, false); err != nil {
		s.res.Error("New BGP Link", "Could not create BGPLink: %v", err)
		return
	}
	if remoteDevice.Key() != s.device.Key() {
		if err := s.relate(ctx, link, remoteDevice, domain.RelBGPLink, false); err != nil {
			s.res.Error("New BGP Link", "Could not create BGPLink: %v", err)
			return
		}
	}
	s.res.Success("New BGPLink destination", "in %s - %s, related with ip: %s, for ASN %s(%s), bgpPeerIdentifier: %s",
		remoteDevice, remotePort, row.remoteAddr, row.asnName, row.asn, row.identifier)
}

// updateExternalEquipment records the peering attributes on equipment that
// was created and wired by hand
func (s *session) updateExternalEquipment(ctx context.Context, device *domain.Object, row peerRow) {
	changes := make(map[string]string)
	if device.Attr(domain.AttrASNNumber) != row.asn {
		changes[domain.AttrASNNumber] = row.asn
	}
	if device.Attr(domain.AttrBGPPeerRemoteAddr) != row.remoteAddr {
		changes[domain.AttrBGPPeerRemoteAddr] = row.remoteAddr
	}
	if len(changes) == 0 {
		return
	}

	if err := s.store.UpdateObject(ctx, device.ClassName, device.ID, changes); err != nil {
		s.res.Error(fmt.Sprintf("Creating BGPLink with: %s", device.Light()), "Due to %v", err)
		return
	}
	for k, v := range changes {
		device.Attributes[k] = v
	}
	s.audit(ctx, domain.ActivityUpdateObject, "%s (id:%s), %s, %s", device.Light(), device.ID, row.asn, row.remoteAddr)
	s.res.Success(fmt.Sprintf("Attributes for: %s were updated", device.Light()),
		"AttributesAdded asnNumber: %s, bgpPeerRemoteAddr: %s", row.asn, row.remoteAddr)
}

// ensureProviders finds the Provider container under the device's city,
// creating it when absent. The result is kept for the rest of the session.
func (s *session) ensureProviders(ctx context.Context) (*domain.ObjectLight, bool) {
	if s.providers != nil {
		return s.providers, true
	}

	city, err := s.store.GetFirstParentOfClass(ctx, s.device.ClassName, s.device.ID, domain.ClassCity)
	if err != nil {
		s.res.Error("Searching device location", "%v", err)
		return nil, false
	}
	if city == nil {
		s.res.Error("Searching device location", "The device being synchronized is not located in a City")
		return nil, false
	}

	children, err := s.store.GetObjectChildren(ctx, city.ClassName, city.ID)
	if err != nil {
		s.res.Error("Searching provider location", "%v", err)
		return nil, false
	}
	for _, child := range children {
		if child.ClassName == domain.ClassProvider {
			c := child
			s.providers = &c
			return s.providers, true
		}
	}

	id, err := s.store.CreateObject(ctx, domain.ClassProvider, city.ClassName, city.ID,
		map[string]string{domain.AttrName: "Providers"})
	if err != nil {
		s.res.Error("Peer Creation", "The object to group the peers could not be created in %s: %v", city, err)
		return nil, false
	}
	s.providers = &domain.ObjectLight{ClassName: domain.ClassProvider, ID: id, Name: "Providers"}
	s.audit(ctx, domain.ActivityCreateObject, "%s (%s)", s.providers, id)
	s.res.Success("Peer Creation", "An object to group the peers was created in %s", city)
	return s.providers, true
}

// ensurePeer finds the BGPPeer for row under the Provider container, or
// creates it. A known peer seen on a new address gets the address appended.
func (s *session) ensurePeer(ctx context.Context, row peerRow) (*domain.ObjectLight, bool) {
	providers, ok := s.ensureProviders(ctx)
	if !ok {
		return nil, false
	}

	peers, err := s.store.GetObjectChildren(ctx, providers.ClassName, providers.ID)
	if err != nil {
		s.res.Error("Grouping Peers", "%v", err)
		return nil, false
	}
	for _, p := range peers {
		if p.ClassName != domain.ClassBGPPeer || p.Name != row.asnName {
			continue
		}
		peer, err := s.store.GetObject(ctx, p.ClassName, p.ID)
		if err != nil {
			s.res.Error("Grouping Peers", "%v", err)
			return nil, false
		}
		if peer.Attr(domain.AttrASNNumber) != row.asn {
			continue
		}
		if addrs := peer.Attr(domain.AttrBGPPeerRemoteAddr); !containsAddr(addrs, row.remoteAddr) {
			updated := row.remoteAddr
			if addrs != "" {
				updated = addrs + "; " + row.remoteAddr
			}
			if err := s.store.UpdateObject(ctx, p.ClassName, p.ID, map[string]string{domain.AttrBGPPeerRemoteAddr: updated}); err != nil {
				s.res.Error("Grouping Peers", "%v", err)
			} else {
				s.audit(ctx, domain.ActivityUpdateObject, "%s (%s), %s", p, p.ID, updated)
				s.res.Info("Grouping Peers", "A new IP address %s was added to the peer %s", row.remoteAddr, p)
			}
		}
		found := p
		return &found, true
	}

	id, err := s.store.CreateObject(ctx, domain.ClassBGPPeer, providers.ClassName, providers.ID, map[string]string{
		domain.AttrName:              row.asnName,
		domain.AttrASNNumber:         row.asn,
		domain.AttrDescription:       "Created by the BGP sync provider",
		domain.AttrBGPPeerRemoteAddr: row.remoteAddr,
	})
	if err != nil {
		s.res.Error("BGPPeer Creation", "No provider was created for asnNumber %s with IP address %s because %v",
			row.asn, row.remoteAddr, err)
		return nil, false
	}
	peer := domain.ObjectLight{ClassName: domain.ClassBGPPeer, ID: id, Name: row.asnName}
	s.audit(ctx, domain.ActivityCreateObject, "%s (%s)", peer, id)
	s.res.Success("BGPPeer Creation",
		"Since no port was related to the remote IP address %s, a Peer instance with asnName %s (asnNumber: %s) was created in: %s",
		row.remoteAddr, row.asnName, row.asn, providers)
	return &peer, true
}

func containsAddr(list, addr string) bool {
	for _, a := range strings.Split(list, ";") {
		if strings.TrimSpace(a) == addr {
			return true
		}
	}
	return false
}

// ensureRemotePort finds the peer's VirtualPort related to the remote
// address, or creates one named after the remote BGP port and relates it
func (s *session) ensureRemotePort(ctx context.Context, peer domain.ObjectLight, row peerRow) (*domain.ObjectLight, bool) {
	addr, ok := s.ensureAddress(ctx, row.remoteAddr, "")
	if !ok {
		return nil, false
	}

	ports, err := s.store.GetObjectChildren(ctx, peer.ClassName, peer.ID)
	if err != nil {
		s.res.Error("New Network Interface", "%v", err)
		return nil, false
	}
	for _, p := range ports {
		if p.ClassName != domain.ClassVirtualPort {
			continue
		}
		related, err := s.store.GetSpecialAttribute(ctx, p.ClassName, p.ID, domain.RelIPAMHasIPAddress)
		if err != nil {
			s.res.Error("New Network Interface", "%v", err)
			return nil, false
		}
		for _, r := range related {
			if r.Key() == addr.Key() {
				found := p
				return &found, true
			}
		}
	}

	name := row.remotePort
	if name == "" {
		name = row.remoteAddr
	}
	id, err := s.store.CreateObject(ctx, domain.ClassVirtualPort, peer.ClassName, peer.ID,
		map[string]string{domain.AttrName: name})
	if err != nil {
		s.res.Error("New Network Interface", "No port was created for %s: %v", row.remoteAddr, err)
		return nil, false
	}
	port := domain.ObjectLight{ClassName: domain.ClassVirtualPort, ID: id, Name: name}
	s.audit(ctx, domain.ActivityCreateObject, "%s (%s)", port, id)

	if err := s.relate(ctx, port, addr, domain.RelIPAMHasIPAddress, true); err != nil {
		s.res.Error("New Network Interface", "%s could not be related to %s: %v", port, addr, err)
		return &port, true
	}
	s.res.Success("New Network Interface", "%s was related to %s", port, addr)
	return &port, true
}
