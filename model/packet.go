package model

import "time"

// Protocol identifies the simulated payload type of a packet. The
// engine only gives ARP special treatment; everything else affects
// sizing and display.
type Protocol string

const (
	ProtocolARP   Protocol = "ARP"
	ProtocolICMP  Protocol = "ICMP"
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolOther Protocol = "OTHER"
)

// PacketStatus is the lifecycle state of a packet. Delivered and
// Dropped are terminal; terminal packets stay observable in the active
// set for exactly one tick before being pruned.
type PacketStatus string

const (
	PacketQueued    PacketStatus = "queued"
	PacketInTransit PacketStatus = "in-transit"
	PacketDelivered PacketStatus = "delivered"
	PacketDropped   PacketStatus = "dropped"
)

// DropReason is the typed terminal cause attached to a dropped packet.
// Simulation-time failures are expressed this way, never as errors.
type DropReason string

const (
	DropNoRoute      DropReason = "NO_ROUTE"
	DropAccessDenied DropReason = "ACCESS_DENIED"
	DropVLANMismatch DropReason = "VLAN_MISMATCH"
	DropTTLExceeded  DropReason = "TTL_EXCEEDED"
)

// DropRecord captures where and why a packet was dropped. The drop
// history is append-only; a packet is dropped at most once.
type DropRecord struct {
	DeviceID    string
	InterfaceID string
	Reason      DropReason
	Time        time.Time
}

// Position locates a packet in the topology: the device it currently
// sits at and, when known, the interface it arrived through.
type Position struct {
	DeviceID         string
	IngressInterface string
}

// DefaultTTL is the hop budget assigned to packets created without an
// explicit TTL.
const DefaultTTL = 64

// Packet is the full record of one simulated frame. The resolved Path
// is an ordered device-ID sequence including both endpoints; HopIndex
// is the packet's current offset into it.
type Packet struct {
	ID       string
	Protocol Protocol

	SourceDeviceID string
	TargetDeviceID string
	SourceMAC      string
	TargetMAC      string
	SourceIP       string
	TargetIP       string

	// VLANID is the 802.1Q tag; VLANNone means untagged.
	VLANID uint16

	PayloadBytes int
	TTL          int

	// DelayMs accumulates simulated transmission delay across hops.
	DelayMs float64

	Path     []string
	HopIndex int
	Position Position

	Status PacketStatus
	Drops  []DropRecord

	// Synthetic marks engine-generated packets (ARP request/reply
	// pairs); they traverse and are observable like any other packet.
	Synthetic bool

	CreatedAt time.Time
	// Seq is the creation order used for deterministic per-tick
	// processing.
	Seq uint64
	// TerminalTick records the tick on which the packet reached a
	// terminal status; it is pruned on the following sweep.
	TerminalTick uint64

	// arp resolution is attempted at most once per packet
	ARPRequested bool
}

// Terminal reports whether the packet has reached a final status.
func (p *Packet) Terminal() bool {
	return p.Status == PacketDelivered || p.Status == PacketDropped
}

// Tagged reports whether the packet carries an explicit VLAN tag.
func (p *Packet) Tagged() bool {
	return p.VLANID != VLANNone
}

// RecordDrop appends a drop record and moves the packet to its
// terminal Dropped status. It is a no-op on already-terminal packets.
func (p *Packet) RecordDrop(deviceID, interfaceID string, reason DropReason, now time.Time) {
	if p.Terminal() {
		return
	}
	p.Drops = append(p.Drops, DropRecord{
		DeviceID:    deviceID,
		InterfaceID: interfaceID,
		Reason:      reason,
		Time:        now,
	})
	p.Status = PacketDropped
}

// Clone returns a deep copy safe to hand to snapshot consumers.
func (p *Packet) Clone() *Packet {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Path = append([]string(nil), p.Path...)
	cp.Drops = append([]DropRecord(nil), p.Drops...)
	return &cp
}
