package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/model"
)

// maybeResolveARP synthesizes an ARP request/reply pair for a tagged
// non-ARP packet whose target MAC is still unknown at the next-hop
// switch. The pair stands in for the flood a real switch would do: the
// request walks the forward path learning the sender's MAC, the reply
// walks it reversed learning the target's, so every switch on the path
// ends up holding both. Triggered at most once per packet.
func (e *Engine) maybeResolveARP(pkt *model.Packet, nextDev *model.Device) []Event {
	if pkt.ARPRequested || pkt.Synthetic {
		return nil
	}
	if pkt.Protocol == model.ProtocolARP || !pkt.Tagged() {
		return nil
	}
	if !nextDev.IsSwitch() {
		return nil
	}
	if pkt.TargetMAC == "" || pkt.TargetMAC == broadcastMAC {
		return nil
	}
	if _, known := e.tables.LookupMAC(nextDev.ID, pkt.VLANID, pkt.TargetMAC); known {
		return nil
	}

	pkt.ARPRequested = true

	request := e.synthesizeARP(pkt, pkt.Path, pkt.SourceDeviceID, pkt.TargetDeviceID,
		pkt.SourceMAC, broadcastMAC, pkt.SourceIP, pkt.TargetIP)
	reply := e.synthesizeARP(pkt, reversePath(pkt.Path), pkt.TargetDeviceID, pkt.SourceDeviceID,
		pkt.TargetMAC, pkt.SourceMAC, pkt.TargetIP, pkt.SourceIP)

	e.log.Debug(context.Background(), "arp resolution triggered",
		logging.String("packet", pkt.ID),
		logging.String("switch", nextDev.ID),
		logging.String("targetMac", pkt.TargetMAC))

	return []Event{
		{Type: EventARPResolution, Tick: e.tick, Packet: request.Clone(),
			Detail: fmt.Sprintf("request for %s", pkt.TargetIP)},
		{Type: EventARPResolution, Tick: e.tick, Packet: reply.Clone(),
			Detail: fmt.Sprintf("reply from %s", pkt.TargetIP)},
	}
}

// synthesizeARP injects one synthetic ARP packet along path. It joins
// the active set queued, so it starts moving on the following tick.
func (e *Engine) synthesizeARP(origin *model.Packet, path []string, src, dst, srcMAC, dstMAC, srcIP, dstIP string) *model.Packet {
	e.seq++
	pkt := &model.Packet{
		ID:             uuid.NewString(),
		Protocol:       model.ProtocolARP,
		SourceDeviceID: src,
		TargetDeviceID: dst,
		SourceMAC:      srcMAC,
		TargetMAC:      dstMAC,
		SourceIP:       srcIP,
		TargetIP:       dstIP,
		VLANID:         origin.VLANID,
		PayloadBytes:   defaultPayloadBytes(model.ProtocolARP),
		TTL:            model.DefaultTTL,
		Path:           path,
		Position:       model.Position{DeviceID: src},
		Status:         model.PacketQueued,
		Synthetic:      true,
		CreatedAt:      e.simTime,
		Seq:            e.seq,
	}
	e.admit(pkt)
	return pkt
}

// onDelivered applies protocol side effects at the destination. ARP
// arrivals teach the receiving device the sender's IP-to-MAC binding,
// which is what completes resolution for both request and reply.
func (e *Engine) onDelivered(pkt *model.Packet) {
	if pkt.Protocol != model.ProtocolARP {
		return
	}
	if pkt.SourceIP == "" || pkt.SourceMAC == "" {
		return
	}
	e.tables.LearnARP(pkt.TargetDeviceID, pkt.VLANID, pkt.SourceIP, pkt.SourceMAC, e.simTime)
}

func reversePath(path []string) []string {
	out := make([]string, len(path))
	for i, id := range path {
		out[len(path)-1-i] = id
	}
	return out
}
