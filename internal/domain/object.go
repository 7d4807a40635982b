package domain

import "fmt"

// Inventory class names used by the reconcilers
const (
	ClassInventoryObject    = "InventoryObject"
	ClassGenericLocation    = "GenericLocation"
	ClassCity               = "City"
	ClassGenericCommElement = "GenericCommunicationsElement"
	ClassRouter             = "Router"
	ClassSwitch             = "Switch"
	ClassExternalEquipment  = "ExternalEquipment"
	ClassGenericPort        = "GenericPort"
	ClassElectricalPort     = "ElectricalPort"
	ClassSFPPort            = "SFPPort"
	ClassOpticalPort        = "OpticalPort"
	ClassVirtualPort        = "VirtualPort"
	ClassMPLSTunnel         = "MPLSTunnel"
	ClassProvider           = "Provider"
	ClassBGPPeer            = "BGPPeer"
	ClassBGPLink            = "BGPLink"
	ClassGenericSubnet      = "GenericSubnet"
	ClassSubnetIPv4         = "SubnetIPv4"
	ClassSubnetIPv6         = "SubnetIPv6"
	ClassIPAddress          = "IPAddress"
)

// Relationship names
const (
	RelIPAMHasIPAddress = "ipamHasIpAddress"
	RelBGPLinkEndpointA = "bgpLinkEndpointA"
	RelBGPLinkEndpointB = "bgpLinkEndpointB"
	RelBGPLink          = "bgpLink"
)

// Common attribute names
const (
	AttrName              = "name"
	AttrDescription       = "description"
	AttrMask              = "mask"
	AttrNetworkIP         = "networkIp"
	AttrBroadcastIP       = "broadcastIp"
	AttrHosts             = "hosts"
	AttrASNNumber         = "asnNumber"
	AttrBGPPeerRemoteAddr = "bgpPeerRemoteAddr"
	AttrBGPPeerIdentifier = "bgpPeerIdentifier"
)

// PoolTypeModuleRoot marks the root pools of a module such as IPAM
const PoolTypeModuleRoot = 2

// ObjectLight is a lightweight reference to a persisted inventory object
type ObjectLight struct {
	ClassName string `json:"class_name" yaml:"class"`
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
}

// Key returns the (class, id) identity of the object
func (o ObjectLight) Key() ObjectKey {
	return ObjectKey{ClassName: o.ClassName, ID: o.ID}
}

// String renders the object the way results and audit notes refer to it
func (o ObjectLight) String() string {
	return fmt.Sprintf("%s [%s]", o.Name, o.ClassName)
}

// ObjectKey identifies an object regardless of its name
type ObjectKey struct {
	ClassName string
	ID        string
}

// Object is an inventory object with its attributes
type Object struct {
	ObjectLight
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Attr returns an attribute value, or "" when absent
func (o *Object) Attr(key string) string {
	if o == nil || o.Attributes == nil {
		return ""
	}
	return o.Attributes[key]
}

// Light returns the reference part of the object
func (o *Object) Light() ObjectLight {
	return o.ObjectLight
}

// Pool is a container of pool items, such as an IPAM folder
type Pool struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	Type      int    `json:"type"`
}

// ActivityType classifies audit log entries
type ActivityType int

const (
	ActivityCreateObject ActivityType = iota + 1
	ActivityUpdateObject
	ActivityCreateRelationship
)

func (a ActivityType) String() string {
	switch a {
	case ActivityCreateObject:
		return "create-object"
	case ActivityUpdateObject:
		return "update-object"
	case ActivityCreateRelationship:
		return "create-relationship"
	default:
		return "unknown"
	}
}

// SyncActor is the audit actor for every mutation made by the engine
const SyncActor = "sync"
