package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"

	"toposync/internal/domain"
)

// Collector walks one logical table on a device. Each returned row is
// [instance, column values...] in the order of def.Columns.
type Collector interface {
	CollectTable(ctx context.Context, target Target, def TableDef) ([][]string, error)
}

// SNMPCollector collects tables with GETBULK walks. Requests are never
// retried; a timeout fails the table.
type SNMPCollector struct {
	timeout        time.Duration
	maxRepetitions uint32
	log            zerolog.Logger
}

var _ Collector = (*SNMPCollector)(nil)

// SNMPOption configures an SNMPCollector
type SNMPOption func(*SNMPCollector)

// WithTimeout sets the per request timeout
func WithTimeout(d time.Duration) SNMPOption {
	return func(c *SNMPCollector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRepetitions sets the GETBULK max-repetitions
func WithMaxRepetitions(n uint32) SNMPOption {
	return func(c *SNMPCollector) {
		if n > 0 {
			c.maxRepetitions = n
		}
	}
}

// NewSNMPCollector creates a collector
func NewSNMPCollector(log zerolog.Logger, opts ...SNMPOption) *SNMPCollector {
	c := &SNMPCollector{
		timeout:        5 * time.Second,
		maxRepetitions: 25,
		log:            log.With().Str("component", "snmp").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SNMPCollector) session(ctx context.Context, t Target) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:         t.Address,
		Port:           t.Port,
		Transport:      "udp",
		Timeout:        c.timeout,
		Retries:        0,
		MaxOids:        gosnmp.MaxOids,
		MaxRepetitions: c.maxRepetitions,
		Context:        ctx,
	}

	switch t.Version {
	case domain.SNMPVersion2c:
		g.Version = gosnmp.Version2c
		g.Community = t.Community
	case domain.SNMPVersion3:
		flags, err := t.msgFlags()
		if err != nil {
			return nil, err
		}
		auth, err := authProtocol(t.AuthProtocol)
		if err != nil {
			return nil, err
		}
		priv, err := privacyProtocol(t.PrivacyProtocol)
		if err != nil {
			return nil, err
		}
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = flags
		g.ContextName = t.ContextName
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 t.SecurityName,
			AuthenticationProtocol:   auth,
			AuthenticationPassphrase: t.AuthPass,
			PrivacyProtocol:          priv,
			PrivacyPassphrase:        t.PrivacyPass,
		}
	default:
		return nil, fmt.Errorf("snmp version %q: %w", t.Version, domain.ErrInvalidParameter)
	}
	return g, nil
}

// CollectTable walks every column of def and assembles the rows
func (c *SNMPCollector) CollectTable(ctx context.Context, target Target, def TableDef) ([][]string, error) {
	g, err := c.session(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %v: %w", target, err, domain.ErrConnectionFailure)
	}
	defer g.Conn.Close()

	walks := make([][]Variable, 0, len(def.Columns))
	for _, col := range def.Columns {
		pdus, err := g.BulkWalkAll(col.OID)
		if err != nil {
			return nil, fmt.Errorf("walk %s on %s: %v: %w", col.Name, target, err, domain.ErrConnectionFailure)
		}
		vars := make([]Variable, 0, len(pdus))
		for _, pdu := range pdus {
			vars = append(vars, Variable{OID: pdu.Name, Value: formatValue(pdu)})
		}
		walks = append(walks, vars)
	}

	rows := Assemble(def, walks)
	c.log.Debug().
		Str("target", target.String()).
		Str("table", def.Name).
		Int("rows", len(rows)).
		Msg("collected table")
	return rows, nil
}

// formatValue renders a PDU value the way the reconcilers compare it
func formatValue(pdu gosnmp.SnmpPDU) string {
	switch pdu.Type {
	case gosnmp.OctetString:
		b, _ := pdu.Value.([]byte)
		return string(b)
	case gosnmp.IPAddress, gosnmp.ObjectIdentifier:
		s, _ := pdu.Value.(string)
		return s
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return ""
	default:
		return gosnmp.ToBigInt(pdu.Value).String()
	}
}
