package core

import (
	"github.com/iti/rngstream"

	"github.com/netlabworks/vlansim/model"
)

// flowState is the armed form of a traffic flow: the next tick it
// fires on and its own RNG stream for payload jitter. Per-flow streams
// keep runs reproducible regardless of how many flows are armed.
type flowState struct {
	flow     model.TrafficFlow
	nextFire uint64
	rng      *rngstream.RngStream
}

func newFlowStates(flows []model.TrafficFlow, seed string) []*flowState {
	out := make([]*flowState, 0, len(flows))
	for _, f := range flows {
		if f.IntervalTicks == 0 {
			f.IntervalTicks = 1
		}
		out = append(out, &flowState{
			flow: f,
			rng:  rngstream.New(seed + "/" + f.ID),
		})
	}
	return out
}

// generateFlowTraffic injects one packet per flow that is due this
// tick. Freshly generated packets are queued and processed in the same
// tick, just like packets injected by an external call before the tick.
func (e *Engine) generateFlowTraffic() []Event {
	var events []Event
	for _, fs := range e.flows {
		if e.tick < fs.nextFire {
			continue
		}
		fs.nextFire = e.tick + uint64(fs.flow.IntervalTicks)

		f := fs.flow
		vlanID := f.VLANID
		if vlanID == model.VLANNone {
			vlanID = e.res.InferVLAN(f.SourceDeviceID)
		}
		payload := f.PayloadBytes
		if payload <= 0 {
			payload = defaultPayloadBytes(f.Protocol)
		}
		if f.JitterBytes > 0 {
			payload += int(fs.rng.RandU01() * float64(f.JitterBytes))
		}

		pkt := e.newPacket(f.SourceDeviceID, f.TargetDeviceID, f.Protocol, vlanID, payload)
		pkt.Path = e.res.FindPath(f.SourceDeviceID, f.TargetDeviceID, vlanID)
		e.admit(pkt)
		events = append(events, Event{Type: EventPacketCreated, Tick: e.tick, Packet: pkt.Clone()})
	}
	return events
}
