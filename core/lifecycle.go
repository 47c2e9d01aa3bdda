package core

import (
	"context"
	"fmt"

	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/model"
)

// stepPacket advances one non-terminal packet by one tick. A queued
// packet that passes admission keeps moving in the same tick, which is
// what lets a zero-hop packet go queued to delivered in a single step.
func (e *Engine) stepPacket(pkt *model.Packet) []Event {
	var events []Event
	if pkt.Status == model.PacketQueued {
		events = append(events, e.stepQueued(pkt)...)
	}
	if pkt.Status == model.PacketInTransit {
		events = append(events, e.stepInTransit(pkt)...)
	}
	return events
}

// stepQueued validates a queued packet and either admits it to
// IN_TRANSIT or drops it. An empty path means no admissible route; an
// inactive source or a source-side switchport that does not serve the
// packet's VLAN means the sender was never allowed to transmit.
func (e *Engine) stepQueued(pkt *model.Packet) []Event {
	srcDev := e.devices.Device(pkt.SourceDeviceID)
	if srcDev == nil || !srcDev.IsActive() {
		return e.drop(pkt, pkt.SourceDeviceID, "", model.DropAccessDenied)
	}
	if pkt.Tagged() {
		if port := e.sourceSwitchPort(pkt.SourceDeviceID); port != nil && !port.PermitsVLAN(pkt.VLANID) {
			return e.drop(pkt, pkt.SourceDeviceID, port.ID, model.DropAccessDenied)
		}
	}
	if len(pkt.Path) == 0 {
		return e.drop(pkt, pkt.SourceDeviceID, "", model.DropNoRoute)
	}

	pkt.Status = model.PacketInTransit
	pkt.HopIndex = 0
	pkt.Position = model.Position{DeviceID: pkt.Path[0]}
	return nil
}

// stepInTransit moves an in-transit packet one hop. Evaluation order
// is fixed: TTL first, then arrival, then next-link admission.
func (e *Engine) stepInTransit(pkt *model.Packet) []Event {
	pkt.TTL--
	if pkt.TTL <= 0 {
		return e.drop(pkt, pkt.Position.DeviceID, "", model.DropTTLExceeded)
	}

	if pkt.HopIndex >= len(pkt.Path)-1 {
		return e.deliver(pkt)
	}

	cur := pkt.Path[pkt.HopIndex]
	next := pkt.Path[pkt.HopIndex+1]

	link := e.res.UsableLink(cur, next)
	if link == nil {
		return e.drop(pkt, cur, "", model.DropNoRoute)
	}
	if pkt.Tagged() && !e.res.LinkAdmitsVLAN(link, pkt.VLANID) {
		in := e.res.IngressInterface(link, next)
		ifID := ""
		if in != nil {
			ifID = in.ID
		}
		return e.drop(pkt, cur, ifID, model.DropVLANMismatch)
	}

	var events []Event

	// Switches learn the sender's MAC on the port the frame arrives on.
	ingress := e.res.IngressInterface(link, next)
	nextDev := e.devices.Device(next)
	if nextDev.IsSwitch() && ingress != nil && pkt.SourceMAC != "" {
		e.tables.LearnMAC(next, pkt.VLANID, pkt.SourceMAC, ingress.ID, e.simTime)
	}

	events = append(events, e.maybeResolveARP(pkt, nextDev)...)

	pkt.DelayMs += hopDelayMs(pkt.PayloadBytes, link.Bandwidth())
	pkt.HopIndex++
	pkt.Position = model.Position{DeviceID: next}
	if ingress != nil {
		pkt.Position.IngressInterface = ingress.ID
	}

	e.stats.RecordForwarded(cur, pkt.VLANID, pkt.PayloadBytes)
	e.metrics.BytesForwarded(cur, pkt.VLANID, pkt.PayloadBytes)

	events = append(events, Event{Type: EventPacketMoved, Tick: e.tick, Packet: pkt.Clone()})
	return events
}

// deliver marks a packet delivered at its current position.
func (e *Engine) deliver(pkt *model.Packet) []Event {
	pkt.Status = model.PacketDelivered
	pkt.TerminalTick = e.tick
	e.stats.RecordDelivered(pkt.DelayMs, pkt.PayloadBytes)
	e.metrics.PacketDelivered(pkt.DelayMs)
	e.onDelivered(pkt)
	e.log.Debug(context.Background(), "packet delivered",
		logging.String("packet", pkt.ID),
		logging.String("at", pkt.Position.DeviceID),
		logging.Any("latencyMs", pkt.DelayMs))
	return []Event{{Type: EventPacketDelivered, Tick: e.tick, Packet: pkt.Clone()}}
}

// drop terminates a packet with a typed reason and records the drop.
func (e *Engine) drop(pkt *model.Packet, deviceID, interfaceID string, reason model.DropReason) []Event {
	pkt.RecordDrop(deviceID, interfaceID, reason, e.simTime)
	pkt.TerminalTick = e.tick
	e.stats.RecordDropped(reason)
	e.metrics.PacketDropped(string(reason))
	e.log.Debug(context.Background(), "packet dropped",
		logging.String("packet", pkt.ID),
		logging.String("at", deviceID),
		logging.String("reason", string(reason)))
	return []Event{{
		Type:   EventPacketDropped,
		Tick:   e.tick,
		Packet: pkt.Clone(),
		Detail: fmt.Sprintf("%s at %s", reason, deviceID),
	}}
}

// sourceSwitchPort finds the switch-side port of a device's uplink, if
// the device hangs off exactly one switch port. Mirrors the VLAN
// inference walk.
func (e *Engine) sourceSwitchPort(deviceID string) *Interface {
	var port *Interface
	for _, link := range e.topo.ConnectionsForDevice(deviceID) {
		a, b := e.topo.Endpoints(link)
		for _, in := range []*Interface{a, b} {
			if in == nil || in.DeviceID == deviceID {
				continue
			}
			dev := e.devices.Device(in.DeviceID)
			if dev == nil || !dev.IsSwitch() {
				continue
			}
			if port != nil && port != in {
				return nil
			}
			port = in
		}
	}
	return port
}

// hopDelayMs models store-and-forward transmission delay for one hop:
// payload bits over link bandwidth, floored at one millisecond.
func hopDelayMs(payloadBytes int, bandwidthMbps float64) float64 {
	if payloadBytes <= 0 || bandwidthMbps <= 0 {
		return 1
	}
	ms := float64(payloadBytes*8) / (bandwidthMbps * 1000)
	if ms < 1 {
		return 1
	}
	return ms
}
