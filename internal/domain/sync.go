package domain

import (
	"strings"
	"time"
)

// AdHocGroupID identifies groups assembled for a single run and never persisted
const AdHocGroupID int64 = -1

// Data source parameter keys shared by the SNMP based providers
const (
	ParamDeviceID        = "deviceId"
	ParamDeviceClass     = "deviceClass"
	ParamIPAddress       = "ipAddress"
	ParamPort            = "port"
	ParamVersion         = "version"
	ParamCommunity       = "community"
	ParamAuthProtocol    = "authProtocol"
	ParamAuthPass        = "authPass"
	ParamSecurityLevel   = "securityLevel"
	ParamContextName     = "contextName"
	ParamSecurityName    = "securityName"
	ParamPrivacyProtocol = "privacyProtocol"
	ParamPrivacyPass     = "privacyPass"
)

// SNMP protocol versions accepted in the version parameter
const (
	SNMPVersion2c = "2c"
	SNMPVersion3  = "3"
)

// DataSourceConfiguration holds everything needed to poll one device
type DataSourceConfiguration struct {
	ID         int64             `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Parameters map[string]string `json:"parameters" yaml:"parameters"`
	CreatedAt  time.Time         `json:"created_at" yaml:"-"`
}

// Param returns a trimmed parameter value, or "" when the key is absent
func (c *DataSourceConfiguration) Param(key string) string {
	if c == nil || c.Parameters == nil {
		return ""
	}
	return strings.TrimSpace(c.Parameters[key])
}

// Device returns the inventory reference the configuration points at
func (c *DataSourceConfiguration) Device() ObjectLight {
	return ObjectLight{
		ClassName: c.Param(ParamDeviceClass),
		ID:        c.Param(ParamDeviceID),
	}
}

// Label is how results and logs refer to the configuration
func (c *DataSourceConfiguration) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Param(ParamIPAddress)
}

// SynchronizationGroup is an ordered set of configurations run together
type SynchronizationGroup struct {
	ID             int64                      `json:"id" yaml:"id"`
	Name           string                     `json:"name" yaml:"name"`
	ProviderID     string                     `json:"provider_id" yaml:"provider"`
	Configurations []*DataSourceConfiguration `json:"configurations" yaml:"configurations"`
}

// NewAdHocGroup wraps configurations in a throwaway group
func NewAdHocGroup(providerID string, configs ...*DataSourceConfiguration) *SynchronizationGroup {
	return &SynchronizationGroup{
		ID:             AdHocGroupID,
		Name:           "ad hoc",
		ProviderID:     providerID,
		Configurations: configs,
	}
}

// IsAdHoc reports whether the group was built for a single run
func (g *SynchronizationGroup) IsAdHoc() bool {
	return g.ID == AdHocGroupID
}
