package collector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"
)

// ProbeResult reports whether an SNMP agent port answered a UDP scan
type ProbeResult struct {
	Address   string `json:"address"`
	Port      uint16 `json:"port"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Reachable bool   `json:"reachable"`
}

// Prober checks agent reachability with an nmap UDP scan. UDP scanning
// needs raw socket privileges.
type Prober struct {
	timeout time.Duration
	log     zerolog.Logger
}

// NewProber creates a prober; a zero timeout defaults to 30s
func NewProber(timeout time.Duration, log zerolog.Logger) *Prober {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{timeout: timeout, log: log.With().Str("component", "probe").Logger()}
}

// Probe scans a single UDP port on address
func (p *Prober) Probe(ctx context.Context, address string, port uint16) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(address),
		nmap.WithPorts(strconv.Itoa(int(port))),
		nmap.WithUDPScan(),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	run, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		p.log.Warn().Strs("warnings", *warnings).Str("address", address).Msg("nmap reported warnings")
	}
	return evaluateRun(run, address, port), nil
}

// evaluateRun extracts the state of the probed port from a scan result.
// "open|filtered" counts as reachable since SNMP agents ignore probes
// without a valid community.
func evaluateRun(run *nmap.Run, address string, port uint16) *ProbeResult {
	res := &ProbeResult{Address: address, Port: port, State: "unknown"}
	if run == nil {
		return res
	}
	for _, host := range run.Hosts {
		for _, p := range host.Ports {
			if p.ID != port || p.Protocol != "udp" {
				continue
			}
			res.State = p.State.State
			res.Reason = p.State.Reason
			res.Reachable = p.State.State == "open" || p.State.State == "open|filtered"
			return res
		}
	}
	return res
}
