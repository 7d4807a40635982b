package collector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"toposync/internal/domain"
)

// Target is everything needed to reach one SNMP agent
type Target struct {
	Address string
	Port    uint16
	Version string

	Community string

	SecurityName    string
	SecurityLevel   string
	AuthProtocol    string
	AuthPass        string
	PrivacyProtocol string
	PrivacyPass     string
	ContextName     string
}

// TargetFromConfig builds a target from data source parameters. The
// parameters are expected to have passed provider validation already; only
// values that cannot be converted are rejected here.
func TargetFromConfig(cfg *domain.DataSourceConfiguration) (Target, error) {
	port, err := strconv.ParseUint(cfg.Param(domain.ParamPort), 10, 16)
	if err != nil || port == 0 {
		return Target{}, fmt.Errorf("port %q: %w", cfg.Param(domain.ParamPort), domain.ErrInvalidParameter)
	}

	t := Target{
		Address:         cfg.Param(domain.ParamIPAddress),
		Port:            uint16(port),
		Version:         cfg.Param(domain.ParamVersion),
		Community:       cfg.Param(domain.ParamCommunity),
		SecurityName:    cfg.Param(domain.ParamSecurityName),
		SecurityLevel:   cfg.Param(domain.ParamSecurityLevel),
		AuthProtocol:    cfg.Param(domain.ParamAuthProtocol),
		AuthPass:        cfg.Param(domain.ParamAuthPass),
		PrivacyProtocol: cfg.Param(domain.ParamPrivacyProtocol),
		PrivacyPass:     cfg.Param(domain.ParamPrivacyPass),
		ContextName:     cfg.Param(domain.ParamContextName),
	}
	if t.Version == domain.SNMPVersion3 {
		if _, err := authProtocol(t.AuthProtocol); err != nil {
			return Target{}, err
		}
		if _, err := privacyProtocol(t.PrivacyProtocol); err != nil {
			return Target{}, err
		}
		if _, err := t.msgFlags(); err != nil {
			return Target{}, err
		}
	}
	return t, nil
}

// String identifies the agent in logs
func (t Target) String() string {
	return fmt.Sprintf("%s:%d (v%s)", t.Address, t.Port, t.Version)
}

func authProtocol(name string) (gosnmp.SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(name) {
	case "", "NONE":
		return gosnmp.NoAuth, nil
	case "MD5":
		return gosnmp.MD5, nil
	case "SHA", "SHA1":
		return gosnmp.SHA, nil
	case "SHA224":
		return gosnmp.SHA224, nil
	case "SHA256":
		return gosnmp.SHA256, nil
	case "SHA384":
		return gosnmp.SHA384, nil
	case "SHA512":
		return gosnmp.SHA512, nil
	}
	return 0, fmt.Errorf("auth protocol %q: %w", name, domain.ErrInvalidParameter)
}

func privacyProtocol(name string) (gosnmp.SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(name) {
	case "", "NONE":
		return gosnmp.NoPriv, nil
	case "DES":
		return gosnmp.DES, nil
	case "AES", "AES128":
		return gosnmp.AES, nil
	case "AES192":
		return gosnmp.AES192, nil
	case "AES256":
		return gosnmp.AES256, nil
	case "AES192C":
		return gosnmp.AES192C, nil
	case "AES256C":
		return gosnmp.AES256C, nil
	}
	return 0, fmt.Errorf("privacy protocol %q: %w", name, domain.ErrInvalidParameter)
}

// msgFlags derives the USM security level. Without an explicit level a
// privacy passphrase implies authPriv.
func (t Target) msgFlags() (gosnmp.SnmpV3MsgFlags, error) {
	switch strings.ToLower(t.SecurityLevel) {
	case "noauthnopriv":
		return gosnmp.NoAuthNoPriv, nil
	case "authnopriv":
		return gosnmp.AuthNoPriv, nil
	case "authpriv":
		return gosnmp.AuthPriv, nil
	case "":
		if t.PrivacyPass != "" {
			return gosnmp.AuthPriv, nil
		}
		return gosnmp.AuthNoPriv, nil
	}
	return 0, fmt.Errorf("security level %q: %w", t.SecurityLevel, domain.ErrInvalidParameter)
}
