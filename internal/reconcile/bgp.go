package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"toposync/internal/collector"
	"toposync/internal/domain"
	"toposync/internal/peeringdb"
)

const (
	// DefaultGroupingThreshold is the largest number of unresolved foreign
	// peers on one local port that are only reported, not created
	DefaultGroupingThreshold = 3

	// DefaultLocalASNVariable names the configuration variable holding the
	// AS number every synchronized device must report
	DefaultLocalASNVariable = "sync.bgp.localAsn"
)

// Options tunes the BGP reconciler
type Options struct {
	// GroupingThreshold nil means DefaultGroupingThreshold; 0 materializes
	// every unresolved foreign peer
	GroupingThreshold *int
	LocalASNVariable  string
}

// Threshold returns a GroupingThreshold value
func Threshold(n int) *int { return &n }

func (o Options) withDefaults() Options {
	if o.GroupingThreshold == nil || *o.GroupingThreshold < 0 {
		o.GroupingThreshold = Threshold(DefaultGroupingThreshold)
	}
	if o.LocalASNVariable == "" {
		o.LocalASNVariable = DefaultLocalASNVariable
	}
	return o
}

// BGPReconciler turns a device's BGP peer table into BGPLinks, BGPPeers and
// the IPAM entries they need
type BGPReconciler struct {
	store Store
	opts  Options
	log   zerolog.Logger
}

// NewBGPReconciler creates a reconciler
func NewBGPReconciler(store Store, opts Options, log zerolog.Logger) *BGPReconciler {
	return &BGPReconciler{
		store: store,
		opts:  opts.withDefaults(),
		log:   log.With().Str("component", "bgp-reconciler").Logger(),
	}
}

// Reconcile processes the tables polled for one configuration. The cache
// must belong to the current run only.
func (r *BGPReconciler) Reconcile(ctx context.Context, cfg *domain.DataSourceConfiguration, tables []domain.TableData, names *peeringdb.Cache) []domain.SyncResult {
	s, err := newSession(ctx, r.store, cfg, r.log)
	if err != nil {
		res := domain.NewResults(cfg.ID)
		res.Error("Retrieving device", "%v", err)
		return res.List()
	}

	localASN, peers, ok := r.precondition(ctx, s, tables)
	if !ok {
		return s.res.List()
	}
	if !s.loadSnapshot(ctx) {
		return s.res.List()
	}

	s.log.Debug().Int("peers", peers.Rows()).Str("local_asn", localASN).Msg("reconciling BGP peers")
	groups := r.processRows(ctx, s, localASN, peers, names)
	r.processGroups(ctx, s, groups)
	return s.res.List()
}

// precondition checks the configured local AS against the device and the
// shape of the peer table. Each failure adds exactly one ERROR.
func (r *BGPReconciler) precondition(ctx context.Context, s *session, tables []domain.TableData) (string, domain.TableData, bool) {
	name := r.opts.LocalASNVariable
	localASN, err := r.store.GetConfigurationVariable(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.res.Error("Retrieving local ASN", "The configuration variable %s has not been set", name)
		return "", domain.TableData{}, false
	case err != nil:
		s.res.Error("Retrieving local ASN", "%v", err)
		return "", domain.TableData{}, false
	}
	if _, err := strconv.ParseUint(localASN, 10, 32); err != nil {
		s.res.Error("Retrieving local ASN", "The configuration variable %s is not a number", name)
		return "", domain.TableData{}, false
	}

	local, ok := domain.FindTable(tables, collector.TableBGPLocal)
	if !ok || len(local.Column(collector.ColBGPLocalAs)) == 0 {
		s.res.Error("Reading bgpLocalAs from the MIB", "The value is empty")
		return "", domain.TableData{}, false
	}
	if reported := local.Cell(collector.ColBGPLocalAs, 0); reported != localASN {
		s.res.Error("Local ASN mismatch", "The device reports ASN %s but %s is %s", reported, name, localASN)
		return "", domain.TableData{}, false
	}

	peers, ok := domain.FindTable(tables, collector.TableBGPPeer)
	if !ok {
		s.res.Error("Reading bgpTable from the MIB", "No peer table was collected")
		return "", domain.TableData{}, false
	}
	if err := peers.Validate(); err != nil {
		s.res.Error("Reading bgpTable from the MIB", "%v", err)
		return "", domain.TableData{}, false
	}
	return localASN, peers, true
}

// portGroup collects the unresolved foreign peers seen on one local port
type portGroup struct {
	port  domain.ObjectLight
	peers []peerRow
}

func (r *BGPReconciler) processRows(ctx context.Context, s *session, localASN string, peers domain.TableData, names *peeringdb.Cache) []*portGroup {
	var groups []*portGroup
	byPort := make(map[domain.ObjectKey]*portGroup)

	for i := 0; i < peers.Rows(); i++ {
		row := peerRow{
			identifier: peers.Cell(collector.ColBGPPeerIdentifier, i),
			localAddr:  peers.Cell(collector.ColBGPPeerLocalAddr, i),
			remoteAddr: peers.Cell(collector.ColBGPPeerRemoteAddr, i),
			remotePort: peers.Cell(collector.ColBGPPeerRemotePort, i),
			asn:        peers.Cell(collector.ColBGPPeerRemoteAs, i),
		}

		localPort := s.snap.PortByAddress(row.localAddr)
		if localPort == nil {
			s.res.Warning("Finding the local port related with the bgpPeerLocalAddr",
				"No port has been related with ipAddr: %s, try running ipAddress sync", row.localAddr)
			continue
		}
		if row.asn == "0" {
			s.res.Info("Skipping peer without ASN", "The peer %s on %s reports ASN 0", row.remoteAddr, localPort)
			continue
		}

		row.asnName = r.asName(ctx, s, names, row.asn)

		remotePort, err := s.portByRemoteAddress(ctx, row.remoteAddr)
		if err != nil {
			s.res.Error("Searching in current IP address structure", "%v", err)
			continue
		}
		var remoteDevice *domain.Object
		if remotePort != nil {
			if remoteDevice, err = s.remoteDevice(ctx, *remotePort); err != nil {
				s.res.Error("Searching Parent", "No parent was found for %s with IP address %s because %v",
					remotePort, row.remoteAddr, err)
				continue
			}
		}

		if row.asn == localASN {
			if remotePort == nil || remoteDevice == nil {
				s.res.Warning(fmt.Sprintf("BGPLink will not be created for ASN %s(%s)", row.asnName, row.asn),
					"Only local endpoint: <%s> was found, no destination port was found related with ipAddr: %s",
					localPort, row.remoteAddr)
				continue
			}
			s.createLink(ctx, row, *localPort, remoteDevice.Light(), *remotePort)
			continue
		}

		if remoteDevice != nil {
			if remoteDevice.ClassName == domain.ClassExternalEquipment {
				s.updateExternalEquipment(ctx, remoteDevice, row)
			}
			s.createLink(ctx, row, *localPort, remoteDevice.Light(), *remotePort)
			continue
		}

		g, ok := byPort[localPort.Key()]
		if !ok {
			g = &portGroup{port: *localPort}
			byPort[localPort.Key()] = g
			groups = append(groups, g)
		}
		g.peers = append(g.peers, row)
	}
	return groups
}

// asName resolves the AS name, degrading to "AS<asn>" with a WARNING
func (r *BGPReconciler) asName(ctx context.Context, s *session, names *peeringdb.Cache, asn string) string {
	if names != nil {
		name, err := names.ASName(ctx, asn)
		if err == nil {
			return name
		}
		s.res.Warning("Searching ASN in PeeringDB", "The ASN: %s, was NOT found: %v", asn, err)
	} else {
		s.res.Warning("Searching ASN in PeeringDB", "The ASN: %s, was NOT found: no registry configured", asn)
	}
	return "AS" + asn
}

// processGroups materializes peers on ports shared by more than the
// threshold and only suggests placeholders for the rest
func (r *BGPReconciler) processGroups(ctx context.Context, s *session, groups []*portGroup) {
	for _, g := range groups {
		if len(g.peers) <= *r.opts.GroupingThreshold {
			for _, p := range g.peers {
				s.res.Info(fmt.Sprintf("Possible ExternalEquipment found, with asnName: %s, asnNumber: %s", p.asnName, p.asn),
					"Please create ExternalEquipment, with at least one OpticalPort and relate that port with the ipAddr: %s",
					p.remoteAddr)
			}
			continue
		}

		for _, p := range g.peers {
			peer, ok := s.ensurePeer(ctx, p)
			if !ok {
				continue
			}
			port, ok := s.ensureRemotePort(ctx, *peer, p)
			if !ok {
				continue
			}
			s.createLink(ctx, p, g.port, *peer, *port)
		}
	}
}
