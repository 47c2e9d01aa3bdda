package model

// DeviceKind categorises a device for forwarding purposes. Only
// switches own MAC tables and enforce VLAN membership on their ports.
type DeviceKind string

const (
	KindSwitch  DeviceKind = "switch"
	KindRouter  DeviceKind = "router"
	KindEndHost DeviceKind = "end-host"
)

// DeviceStatus is the operational state of a device. Packets may only
// originate from, and be forwarded by, active devices.
type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"
	DeviceError    DeviceStatus = "error"
)

// Device represents a node in the simulated topology. Its interfaces
// live in the network knowledge base and reference the device by ID.
type Device struct {
	ID     string
	Name   string
	Kind   DeviceKind
	Status DeviceStatus
}

// IsSwitch reports whether the device performs L2 switching.
func (d *Device) IsSwitch() bool {
	return d != nil && d.Kind == KindSwitch
}

// IsActive reports whether the device can send or forward packets.
func (d *Device) IsActive() bool {
	return d != nil && d.Status == DeviceActive
}
