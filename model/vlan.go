package model

// Valid VLAN IDs occupy the IEEE 802.1Q range. ID 0 is reserved here to
// mean "untagged / no VLAN".
const (
	VLANNone  uint16 = 0
	VLANMinID uint16 = 1
	VLANMaxID uint16 = 4094
)

// VLANStatus is the lifecycle state of a VLAN definition. Only active
// VLANs may be referenced by port configuration or carried by packets.
type VLANStatus string

const (
	VLANActive    VLANStatus = "active"
	VLANSuspended VLANStatus = "suspended"
	VLANShutdown  VLANStatus = "shutdown"
)

// VLAN is a broadcast-domain partition of the topology.
type VLAN struct {
	ID     uint16
	Name   string
	Status VLANStatus
}

// VLANIDValid reports whether id falls inside the configurable range.
func VLANIDValid(id uint16) bool {
	return id >= VLANMinID && id <= VLANMaxID
}
