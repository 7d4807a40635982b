package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"toposync/internal/collector"
	"toposync/internal/domain"
)

// IPReconciler relates device ports to IPAM addresses using the device's
// ipAddrTable and ifXTable. It can apply changes directly or propose them
// as findings for an operator.
type IPReconciler struct {
	store Store
	log   zerolog.Logger
}

// NewIPReconciler creates a reconciler
func NewIPReconciler(store Store, log zerolog.Logger) *IPReconciler {
	return &IPReconciler{store: store, log: log.With().Str("component", "ip-reconciler").Logger()}
}

// IPChange is the payload of an APPLY finding
type IPChange struct {
	DeviceClass string `json:"device_class"`
	DeviceID    string `json:"device_id"`
	PortClass   string `json:"port_class"`
	PortID      string `json:"port_id"`
	PortName    string `json:"port_name"`
	Address     string `json:"address"`
	Mask        string `json:"mask"`
}

func (c IPChange) port() domain.ObjectLight {
	return domain.ObjectLight{ClassName: c.PortClass, ID: c.PortID, Name: c.PortName}
}

type ipDecision struct {
	severity domain.Severity
	title    string
	message  string
	change   *IPChange
}

// Reconcile applies every change the tables call for
func (r *IPReconciler) Reconcile(ctx context.Context, cfg *domain.DataSourceConfiguration, tables []domain.TableData) []domain.SyncResult {
	s, decisions, ok := r.evaluate(ctx, cfg, tables)
	if !ok {
		return s.res.List()
	}
	for _, d := range decisions {
		if d.change == nil {
			s.res.Add(d.severity, d.title, d.message)
			continue
		}
		r.apply(ctx, s, *d.change)
	}
	return s.res.List()
}

// Plan proposes changes without touching the inventory
func (r *IPReconciler) Plan(ctx context.Context, cfg *domain.DataSourceConfiguration, tables []domain.TableData) []domain.SyncFinding {
	s, decisions, ok := r.evaluate(ctx, cfg, tables)
	var findings []domain.SyncFinding
	if !ok {
		for _, res := range s.res.List() {
			findings = append(findings, domain.SyncFinding{
				DataSourceID: res.DataSourceID,
				Severity:     res.Severity,
				Title:        res.Title,
				Message:      res.Message,
				Action:       domain.ActionSkip,
			})
		}
		return findings
	}

	for _, d := range decisions {
		f := domain.SyncFinding{
			DataSourceID: cfg.ID,
			Severity:     d.severity,
			Title:        d.title,
			Message:      d.message,
			Action:       domain.ActionSkip,
		}
		if d.change != nil {
			extra, err := json.Marshal(d.change)
			if err != nil {
				f.Severity = domain.SeverityError
				f.Message = fmt.Sprintf("%s: %v", f.Message, err)
			} else {
				f.Action = domain.ActionApply
				f.Extra = extra
			}
		}
		findings = append(findings, f)
	}
	return findings
}

// Apply executes approved findings. Findings of one device share a
// session, so the device structure is read once per device.
func (r *IPReconciler) Apply(ctx context.Context, actions []domain.SyncAction) []domain.SyncResult {
	type batch struct {
		cfg     *domain.DataSourceConfiguration
		changes []IPChange
	}
	var order []domain.ObjectKey
	batches := make(map[domain.ObjectKey]*batch)
	skipped := domain.NewResults(0)

	for _, a := range actions {
		if a.Type != domain.ActionApply || a.Finding.Action != domain.ActionApply {
			skipped.Info("Change skipped", "%s: %s", a.Finding.Title, a.Finding.Message)
			continue
		}
		var c IPChange
		if err := json.Unmarshal(a.Finding.Extra, &c); err != nil {
			skipped.Error("Invalid finding", "%s: %v", a.Finding.Title, err)
			continue
		}
		key := domain.ObjectKey{ClassName: c.DeviceClass, ID: c.DeviceID}
		b, ok := batches[key]
		if !ok {
			b = &batch{cfg: &domain.DataSourceConfiguration{
				ID: a.Finding.DataSourceID,
				Parameters: map[string]string{
					domain.ParamDeviceClass: c.DeviceClass,
					domain.ParamDeviceID:    c.DeviceID,
				},
			}}
			batches[key] = b
			order = append(order, key)
		}
		b.changes = append(b.changes, c)
	}

	results := skipped.List()
	for _, key := range order {
		b := batches[key]
		s, err := newSession(ctx, r.store, b.cfg, r.log)
		if err != nil {
			res := domain.NewResults(b.cfg.ID)
			res.Error("Retrieving device", "%v", err)
			results = append(results, res.List()...)
			continue
		}
		if s.loadSnapshot(ctx) {
			for _, c := range b.changes {
				if !s.snap.HasPort(c.port()) {
					s.res.Error("Relating IP address", "%s is no longer a port of %s", c.port(), s.device)
					continue
				}
				r.apply(ctx, s, c)
			}
		}
		results = append(results, s.res.List()...)
	}
	return results
}

// evaluate reads the tables and decides, row by row, what should change
func (r *IPReconciler) evaluate(ctx context.Context, cfg *domain.DataSourceConfiguration, tables []domain.TableData) (*session, []ipDecision, bool) {
	s, err := newSession(ctx, r.store, cfg, r.log)
	if err != nil {
		s = &session{res: domain.NewResults(cfg.ID)}
		s.res.Error("Retrieving device", "%v", err)
		return s, nil, false
	}

	addrs, ok := domain.FindTable(tables, collector.TableIPAddr)
	if !ok {
		s.res.Error("Reading ipAddrTable from the MIB", "No address table was collected")
		return s, nil, false
	}
	if err := addrs.Validate(); err != nil {
		s.res.Error("Reading ipAddrTable from the MIB", "%v", err)
		return s, nil, false
	}
	ifNames := make(map[string]string)
	if ifs, ok := domain.FindTable(tables, collector.TableIfMIB); ok {
		for i := 0; i < ifs.Rows(); i++ {
			ifNames[ifs.Cell(domain.InstanceColumn, i)] = ifs.Cell(collector.ColIfName, i)
		}
	}

	if !s.loadSnapshot(ctx) {
		return s, nil, false
	}

	var decisions []ipDecision
	for i := 0; i < addrs.Rows(); i++ {
		addr := addrs.Cell(collector.ColIPAdEntAddr, i)
		mask := addrs.Cell(collector.ColIPAdEntNetMask, i)
		ifIndex := addrs.Cell(collector.ColIPAdEntIfIndex, i)
		decisions = append(decisions, r.decide(ctx, s, addr, mask, ifIndex, ifNames))
	}
	return s, decisions, true
}

func (r *IPReconciler) decide(ctx context.Context, s *session, addr, mask, ifIndex string, ifNames map[string]string) ipDecision {
	if strings.HasPrefix(addr, "127.") || addr == "0.0.0.0" {
		return ipDecision{severity: domain.SeverityInformation, title: "Ignoring address",
			message: fmt.Sprintf("%s is a loopback or unspecified address", addr)}
	}
	if _, err := SubnetKey(addr); err != nil {
		return ipDecision{severity: domain.SeverityWarning, title: "Invalid IP address", message: err.Error()}
	}

	ifName, ok := ifNames[ifIndex]
	if !ok || ifName == "" {
		return ipDecision{severity: domain.SeverityWarning, title: "Searching interface",
			message: fmt.Sprintf("No interface name was collected for ifIndex %s (ipAddr: %s)", ifIndex, addr)}
	}
	port := s.snap.PortByName(ifName)
	if port == nil {
		return ipDecision{severity: domain.SeverityWarning, title: "Searching port",
			message: fmt.Sprintf("No port named %s was found in %s for ipAddr: %s", ifName, s.device, addr)}
	}

	change := &IPChange{
		DeviceClass: s.device.ClassName,
		DeviceID:    s.device.ID,
		PortClass:   port.ClassName,
		PortID:      port.ID,
		PortName:    port.Name,
		Address:     addr,
		Mask:        mask,
	}
	for _, ip := range s.snap.PortAddresses(*port) {
		if ip.Name != addr {
			continue
		}
		current, err := s.store.GetObject(ctx, ip.ClassName, ip.ID)
		if err == nil && (mask == "" || current.Attr(domain.AttrMask) == mask) {
			return ipDecision{severity: domain.SeverityInformation, title: "IP address already related",
				message: fmt.Sprintf("%s is already related to %s", addr, port)}
		}
		return ipDecision{severity: domain.SeverityInformation, title: "Update netmask",
			message: fmt.Sprintf("The netmask of %s on %s will be set to %s", addr, port, mask), change: change}
	}
	return ipDecision{severity: domain.SeverityInformation, title: "Relate IP address",
		message: fmt.Sprintf("%s will be related to %s", addr, port), change: change}
}

func (r *IPReconciler) apply(ctx context.Context, s *session, c IPChange) {
	port := c.port()
	ip, ok := s.ensureAddress(ctx, c.Address, c.Mask)
	if !ok {
		return
	}
	for _, existing := range s.snap.PortAddresses(port) {
		if existing.Key() == ip.Key() {
			return
		}
	}
	if err := s.relate(ctx, port, ip, domain.RelIPAMHasIPAddress, true); err != nil {
		s.res.Error("Relating IP address", "%s could not be related to %s: %v", ip, port, err)
		return
	}
	s.snap.relatePort(port, ip)
	s.res.Success("New IP address relationship", "%s was related to %s", ip, port)
}
