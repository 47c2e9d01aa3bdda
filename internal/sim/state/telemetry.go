// Package state contains the simulation state facade and per-interface
// telemetry counters consumed by the visualization surface.
package state

import (
	"sort"
	"sync"
)

// InterfaceCounters represents per-interface traffic counters derived
// from packet movement events.
type InterfaceCounters struct {
	// DeviceID is the ID of the device that owns this interface.
	DeviceID string `json:"deviceId"`

	// InterfaceID is the ID of the interface.
	InterfaceID string `json:"interfaceId"`

	// PacketsRx counts frames that ingressed on this interface (monotonic).
	PacketsRx uint64 `json:"packetsRx"`

	// BytesRx counts payload bytes that ingressed (monotonic).
	BytesRx uint64 `json:"bytesRx"`
}

// TelemetryState stores per-interface counters keyed by device and
// interface ID. It has its own lock so consumers can poll it without
// contending on the simulation lock.
type TelemetryState struct {
	mu       sync.RWMutex
	counters map[string]*InterfaceCounters
}

// NewTelemetryState creates an empty telemetry store.
func NewTelemetryState() *TelemetryState {
	return &TelemetryState{
		counters: make(map[string]*InterfaceCounters),
	}
}

func telemetryKey(deviceID, ifaceID string) string {
	return deviceID + "|" + ifaceID
}

// RecordRx adds one received frame of the given payload size to an
// interface's counters, creating them on first sight.
func (t *TelemetryState) RecordRx(deviceID, ifaceID string, payloadBytes int) {
	if deviceID == "" || ifaceID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := telemetryKey(deviceID, ifaceID)
	c, ok := t.counters[key]
	if !ok {
		c = &InterfaceCounters{DeviceID: deviceID, InterfaceID: ifaceID}
		t.counters[key] = c
	}
	c.PacketsRx++
	if payloadBytes > 0 {
		c.BytesRx += uint64(payloadBytes)
	}
}

// Get returns a copy of one interface's counters, or nil if the
// interface has never seen traffic.
func (t *TelemetryState) Get(deviceID, ifaceID string) *InterfaceCounters {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.counters[telemetryKey(deviceID, ifaceID)]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// ListAll returns copies of every interface's counters, sorted by
// device then interface ID.
func (t *TelemetryState) ListAll() []*InterfaceCounters {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*InterfaceCounters, 0, len(t.counters))
	for _, c := range t.counters {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].InterfaceID < out[j].InterfaceID
	})
	return out
}

// Clear drops all counters.
func (t *TelemetryState) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters = make(map[string]*InterfaceCounters)
}
