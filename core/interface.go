package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/netlabworks/vlansim/model"
)

// PortMode describes how an interface participates in VLANs. Plain
// ports (typical for end hosts and routers) are VLAN-transparent.
type PortMode string

const (
	PortModePlain  PortMode = "plain"
	PortModeAccess PortMode = "access"
	PortModeTrunk  PortMode = "trunk"
)

// InterfaceStatus is the administrative/link state of an interface.
type InterfaceStatus string

const (
	InterfaceUp        InterfaceStatus = "up"
	InterfaceDown      InterfaceStatus = "down"
	InterfaceAdminDown InterfaceStatus = "admin-down"
)

var (
	ErrPortBadConfig = errors.New("invalid port configuration")
)

// VLANConfig carries the switching configuration of a port. Access
// mode uses AccessVLAN; trunk mode uses AllowedVLANs plus NativeVLAN,
// where the native VLAN must be a member of the allowed set.
type VLANConfig struct {
	Mode         PortMode
	AccessVLAN   uint16
	AllowedVLANs []uint16
	NativeVLAN   uint16
}

// Interface represents a port on a device.
type Interface struct {
	ID       string
	Name     string
	DeviceID string
	Status   InterfaceStatus

	MACAddress string
	IPAddress  string

	VLAN VLANConfig

	// LinkIDs tracks which Connection IDs this interface participates
	// in; maintained by the Topology as links are added and removed.
	LinkIDs []string
}

// IsUp reports whether traffic may cross the interface.
func (in *Interface) IsUp() bool {
	return in != nil && in.Status == InterfaceUp
}

// PermitsVLAN reports whether a frame tagged with vlanID may enter or
// leave this port. Plain ports are VLAN-transparent and permit
// everything; access ports permit exactly their configured VLAN;
// trunk ports permit members of the allowed set.
func (in *Interface) PermitsVLAN(vlanID uint16) bool {
	if in == nil {
		return false
	}
	switch in.VLAN.Mode {
	case PortModeAccess:
		return in.VLAN.AccessVLAN == vlanID
	case PortModeTrunk:
		for _, v := range in.VLAN.AllowedVLANs {
			if v == vlanID {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// ValidateVLANConfig checks the structural invariants of a port
// configuration: VLAN IDs in range, trunk ports with a non-empty
// allowed set, and the native VLAN being a member of that set.
// VLAN existence and lifecycle state are checked at the state layer,
// which can see the VLAN registry.
func ValidateVLANConfig(cfg VLANConfig) error {
	switch cfg.Mode {
	case PortModePlain, "":
		return nil
	case PortModeAccess:
		if !model.VLANIDValid(cfg.AccessVLAN) {
			return fmt.Errorf("%w: access vlan %d outside [%d, %d]", ErrPortBadConfig, cfg.AccessVLAN, model.VLANMinID, model.VLANMaxID)
		}
		return nil
	case PortModeTrunk:
		if len(cfg.AllowedVLANs) == 0 {
			return fmt.Errorf("%w: trunk port with empty allowed-vlan set", ErrPortBadConfig)
		}
		nativeAllowed := false
		for _, v := range cfg.AllowedVLANs {
			if !model.VLANIDValid(v) {
				return fmt.Errorf("%w: allowed vlan %d outside [%d, %d]", ErrPortBadConfig, v, model.VLANMinID, model.VLANMaxID)
			}
			if v == cfg.NativeVLAN {
				nativeAllowed = true
			}
		}
		if !model.VLANIDValid(cfg.NativeVLAN) {
			return fmt.Errorf("%w: native vlan %d outside [%d, %d]", ErrPortBadConfig, cfg.NativeVLAN, model.VLANMinID, model.VLANMaxID)
		}
		if !nativeAllowed {
			return fmt.Errorf("%w: native vlan %d not in allowed set", ErrPortBadConfig, cfg.NativeVLAN)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown port mode %q", ErrPortBadConfig, cfg.Mode)
	}
}

// ConfiguredVLANs returns the set of VLAN IDs the config references,
// sorted, for callers that need to validate each against the registry.
func (cfg VLANConfig) ConfiguredVLANs() []uint16 {
	var ids []uint16
	switch cfg.Mode {
	case PortModeAccess:
		ids = append(ids, cfg.AccessVLAN)
	case PortModeTrunk:
		ids = append(ids, cfg.AllowedVLANs...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
