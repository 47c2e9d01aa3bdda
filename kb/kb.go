package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/netlabworks/vlansim/model"
)

var (
	// ErrDeviceExists indicates a device ID collision.
	ErrDeviceExists = errors.New("device already exists")
	// ErrDeviceNotFound indicates a requested device was not found.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceBadInput indicates a device failed validation.
	ErrDeviceBadInput = errors.New("invalid device")
	// ErrVLANExists indicates a VLAN ID collision.
	ErrVLANExists = errors.New("vlan already exists")
	// ErrVLANNotFound indicates a requested VLAN was not found.
	ErrVLANNotFound = errors.New("vlan not found")
	// ErrVLANBadInput indicates a VLAN failed validation.
	ErrVLANBadInput = errors.New("invalid vlan")
	// ErrVLANNotActive indicates a suspended or shut-down VLAN was
	// referenced where an active one is required.
	ErrVLANNotActive = errors.New("vlan not active")
)

// DeviceBase is an in-memory, thread-safe store for devices and VLAN
// definitions. Interfaces and connections live in the network
// knowledge base (core.Topology); this store answers identity, kind,
// status, and VLAN-lifecycle questions.
type DeviceBase struct {
	mu sync.RWMutex

	devices map[string]*model.Device
	vlans   map[uint16]*model.VLAN
}

// NewDeviceBase constructs an empty store.
func NewDeviceBase() *DeviceBase {
	return &DeviceBase{
		devices: make(map[string]*model.Device),
		vlans:   make(map[uint16]*model.VLAN),
	}
}

// AddDevice inserts a new device. The ID must be unique and non-empty.
func (db *DeviceBase) AddDevice(d *model.Device) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: nil or empty device", ErrDeviceBadInput)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.devices[d.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDeviceExists, d.ID)
	}
	db.devices[d.ID] = d
	return nil
}

// UpdateDevice replaces the stored device with the same ID.
func (db *DeviceBase) UpdateDevice(d *model.Device) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: nil or empty device", ErrDeviceBadInput)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.devices[d.ID]; !exists {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, d.ID)
	}
	db.devices[d.ID] = d
	return nil
}

// DeleteDevice removes a device by ID.
func (db *DeviceBase) DeleteDevice(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.devices[id]; !exists {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	delete(db.devices, id)
	return nil
}

// Device returns the device with the given ID, or nil if not found.
func (db *DeviceBase) Device(id string) *model.Device {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.devices[id]
}

// Devices returns all devices sorted by ID for deterministic iteration.
func (db *DeviceBase) Devices() []*model.Device {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*model.Device, 0, len(db.devices))
	for _, d := range db.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetDeviceStatus toggles a device's operational status.
func (db *DeviceBase) SetDeviceStatus(id string, status model.DeviceStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	d, ok := db.devices[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	d.Status = status
	return nil
}

// AddVLAN inserts a VLAN definition after range validation.
func (db *DeviceBase) AddVLAN(v *model.VLAN) error {
	if v == nil {
		return fmt.Errorf("%w: nil vlan", ErrVLANBadInput)
	}
	if !model.VLANIDValid(v.ID) {
		return fmt.Errorf("%w: id %d outside [%d, %d]", ErrVLANBadInput, v.ID, model.VLANMinID, model.VLANMaxID)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.vlans[v.ID]; exists {
		return fmt.Errorf("%w: %d", ErrVLANExists, v.ID)
	}
	if v.Status == "" {
		v.Status = model.VLANActive
	}
	db.vlans[v.ID] = v
	return nil
}

// UpdateVLAN replaces the stored VLAN with the same ID.
func (db *DeviceBase) UpdateVLAN(v *model.VLAN) error {
	if v == nil || !model.VLANIDValid(v.ID) {
		return fmt.Errorf("%w: nil vlan or id out of range", ErrVLANBadInput)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.vlans[v.ID]; !exists {
		return fmt.Errorf("%w: %d", ErrVLANNotFound, v.ID)
	}
	db.vlans[v.ID] = v
	return nil
}

// DeleteVLAN removes a VLAN definition by ID.
func (db *DeviceBase) DeleteVLAN(id uint16) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.vlans[id]; !exists {
		return fmt.Errorf("%w: %d", ErrVLANNotFound, id)
	}
	delete(db.vlans, id)
	return nil
}

// VLAN returns the VLAN with the given ID, or nil if not found.
func (db *DeviceBase) VLAN(id uint16) *model.VLAN {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vlans[id]
}

// VLANs returns all VLAN definitions sorted by ID.
func (db *DeviceBase) VLANs() []*model.VLAN {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*model.VLAN, 0, len(db.vlans))
	for _, v := range db.vlans {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RequireActiveVLAN returns an error unless the VLAN exists and is
// active. Callers use this to gate port configuration and packet
// creation on VLAN lifecycle state.
func (db *DeviceBase) RequireActiveVLAN(id uint16) error {
	if !model.VLANIDValid(id) {
		return fmt.Errorf("%w: id %d outside [%d, %d]", ErrVLANBadInput, id, model.VLANMinID, model.VLANMaxID)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	v, ok := db.vlans[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrVLANNotFound, id)
	}
	if v.Status != model.VLANActive {
		return fmt.Errorf("%w: %d is %s", ErrVLANNotActive, id, v.Status)
	}
	return nil
}

// Clear removes all devices and VLANs so a fresh topology can be
// loaded without dangling references.
func (db *DeviceBase) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.devices = make(map[string]*model.Device)
	db.vlans = make(map[uint16]*model.VLAN)
}
