package domain

import "sort"

// ParameterInfo describes one data source parameter for API clients
type ParameterInfo struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Sensitive   bool     `json:"sensitive"`
	Options     []string `json:"options,omitempty"`
	Default     string   `json:"default,omitempty"`
	// Version restricts the parameter to one SNMP version; empty means any
	Version string `json:"version,omitempty"`
}

// SNMPParameterInfos returns the catalogue of parameters understood by the
// SNMP providers
func SNMPParameterInfos() []ParameterInfo {
	return []ParameterInfo{
		{Key: ParamDeviceID, Name: "Device ID", Description: "Inventory id of the polled device", Required: true},
		{Key: ParamDeviceClass, Name: "Device Class", Description: "Inventory class of the polled device", Required: true},
		{Key: ParamIPAddress, Name: "Agent Address", Description: "Management address of the SNMP agent", Required: true},
		{Key: ParamPort, Name: "Agent Port", Description: "UDP port of the SNMP agent", Required: true, Default: "161"},
		{Key: ParamVersion, Name: "SNMP Version", Description: "Protocol version", Required: true, Options: []string{SNMPVersion2c, SNMPVersion3}, Default: SNMPVersion2c},
		{Key: ParamCommunity, Name: "Community", Description: "SNMPv2c community string", Required: true, Sensitive: true, Version: SNMPVersion2c},
		{Key: ParamAuthProtocol, Name: "Auth Protocol", Description: "Authentication protocol", Required: true, Options: []string{"MD5", "SHA"}, Version: SNMPVersion3},
		{Key: ParamSecurityName, Name: "Security Name", Description: "SNMPv3 user name", Required: true, Version: SNMPVersion3},
		{Key: ParamAuthPass, Name: "Auth Password", Description: "Authentication passphrase", Sensitive: true, Version: SNMPVersion3},
		{Key: ParamSecurityLevel, Name: "Security Level", Description: "Authentication and privacy level", Options: []string{"noAuthNoPriv", "authNoPriv", "authPriv"}, Version: SNMPVersion3},
		{Key: ParamContextName, Name: "Context Name", Description: "SNMPv3 context", Version: SNMPVersion3},
		{Key: ParamPrivacyProtocol, Name: "Privacy Protocol", Description: "Encryption protocol", Options: []string{"DES", "AES"}, Version: SNMPVersion3},
		{Key: ParamPrivacyPass, Name: "Privacy Password", Description: "Encryption passphrase", Sensitive: true, Version: SNMPVersion3},
	}
}

// IsSensitiveParameter reports whether a parameter must be sealed at rest and
// masked in API output
func IsSensitiveParameter(key string) bool {
	switch key {
	case ParamCommunity, ParamAuthPass, ParamPrivacyPass:
		return true
	}
	return false
}

// RedactedValue replaces sensitive parameter values in API output
const RedactedValue = "********"

// Redacted returns a copy of the configuration with sensitive values masked
func (c *DataSourceConfiguration) Redacted() *DataSourceConfiguration {
	out := *c
	out.Parameters = make(map[string]string, len(c.Parameters))
	for k, v := range c.Parameters {
		if IsSensitiveParameter(k) && v != "" {
			v = RedactedValue
		}
		out.Parameters[k] = v
	}
	return &out
}

// ParameterKeys returns the configured keys in sorted order
func (c *DataSourceConfiguration) ParameterKeys() []string {
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
