package state

import (
	"errors"
	"sync"
	"testing"

	network "github.com/netlabworks/vlansim/core"
	"github.com/netlabworks/vlansim/model"
)

// buildLab assembles H1 -- S1 ==trunk== S2 -- H2 on VLAN 10 through
// the facade itself, so these tests cover the full write path.
func buildLab(t *testing.T, s *SimState) {
	t.Helper()
	mustCreateVLAN(t, s, 10)
	mustCreateDevice(t, s, "H1", model.KindEndHost)
	mustCreateDevice(t, s, "H2", model.KindEndHost)
	mustCreateDevice(t, s, "S1", model.KindSwitch)
	mustCreateDevice(t, s, "S2", model.KindSwitch)

	hostIface := func(id, dev, mac, ip string) {
		err := s.CreateInterface(&network.Interface{
			ID: id, DeviceID: dev, Status: network.InterfaceUp,
			MACAddress: mac, IPAddress: ip,
		})
		if err != nil {
			t.Fatalf("CreateInterface(%q): %v", id, err)
		}
	}
	hostIface("H1-eth0", "H1", "AA:00:00:00:00:01", "10.0.10.1")
	hostIface("H2-eth0", "H2", "AA:00:00:00:00:02", "10.0.10.2")
	mustCreateInterface(t, s, "S1-p1", "S1", network.VLANConfig{Mode: network.PortModeAccess, AccessVLAN: 10})
	mustCreateInterface(t, s, "S2-p1", "S2", network.VLANConfig{Mode: network.PortModeAccess, AccessVLAN: 10})
	mustCreateInterface(t, s, "S1-t1", "S1", network.VLANConfig{Mode: network.PortModeTrunk, AllowedVLANs: []uint16{10}, NativeVLAN: 10})
	mustCreateInterface(t, s, "S2-t1", "S2", network.VLANConfig{Mode: network.PortModeTrunk, AllowedVLANs: []uint16{10}, NativeVLAN: 10})

	err := s.CreateConnections(
		&network.Connection{ID: "L1", InterfaceA: "H1-eth0", InterfaceB: "S1-p1"},
		&network.Connection{ID: "L2", InterfaceA: "S1-t1", InterfaceB: "S2-t1"},
		&network.Connection{ID: "L3", InterfaceA: "S2-p1", InterfaceB: "H2-eth0"},
	)
	if err != nil {
		t.Fatalf("CreateConnections: %v", err)
	}
}

func TestStepOnlyAdvancesWhileRunning(t *testing.T) {
	s := newTestState(t)
	buildLab(t, s)

	s.Step()
	if got := s.Tick(); got != 0 {
		t.Fatalf("tick after stopped Step = %d, want 0", got)
	}

	s.Start(nil, "seed")
	s.Step()
	s.Step()
	if got := s.Tick(); got != 2 {
		t.Fatalf("tick = %d, want 2", got)
	}

	s.Stop()
	s.Step()
	if got := s.Tick(); got != 2 {
		t.Fatalf("tick advanced while stopped: %d", got)
	}

	// Single-step works while paused.
	s.StepOnce()
	if got := s.Tick(); got != 3 {
		t.Fatalf("tick after StepOnce = %d, want 3", got)
	}
}

func TestEndToEndDeliveryThroughFacade(t *testing.T) {
	s := newTestState(t)
	buildLab(t, s)

	pkt, err := s.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	if len(pkt.Path) != 4 {
		t.Fatalf("path = %v", pkt.Path)
	}

	s.Start(nil, "seed")
	for i := 0; i < 10; i++ {
		s.Step()
	}

	stats := s.Stats()
	if stats.PacketsDelivered == 0 {
		t.Fatalf("nothing delivered: %+v", stats)
	}

	mac, err := s.MACTable("S1")
	if err != nil {
		t.Fatalf("MACTable: %v", err)
	}
	if len(mac) == 0 {
		t.Fatal("S1 learned nothing")
	}
}

func TestCreateTestPacketRejectsInactiveVLAN(t *testing.T) {
	s := newTestState(t)
	buildLab(t, s)
	if err := s.CreateVLAN(&model.VLAN{ID: 30, Name: "off", Status: model.VLANShutdown}); err != nil {
		t.Fatalf("CreateVLAN: %v", err)
	}

	if _, err := s.CreateTestPacket("H1", "H2", model.ProtocolICMP, 30); !errors.Is(err, ErrVLANNotActive) {
		t.Fatalf("err = %v, want ErrVLANNotActive", err)
	}
	if _, err := s.CreateTestPacket("H1", "H2", model.ProtocolICMP, 99); !errors.Is(err, ErrVLANNotFound) {
		t.Fatalf("err = %v, want ErrVLANNotFound", err)
	}
}

func TestStopPreservesTablesAndStats(t *testing.T) {
	s := newTestState(t)
	buildLab(t, s)

	if _, err := s.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	s.Start(nil, "seed")
	for i := 0; i < 10; i++ {
		s.Step()
	}
	s.Stop()

	if s.Stats().PacketsDelivered == 0 {
		t.Fatal("expected deliveries before stop")
	}
	mac, err := s.MACTable("S1")
	if err != nil || len(mac) == 0 {
		t.Fatalf("tables should survive stop: %v, %d entries", err, len(mac))
	}

	s.ResetSim()
	if s.Stats().PacketsCreated != 0 {
		t.Fatal("reset should clear statistics")
	}
	if mac, _ := s.MACTable("S1"); len(mac) != 0 {
		t.Fatal("reset should clear learned tables")
	}
	if len(s.ListDevices()) == 0 {
		t.Fatal("reset must not touch topology")
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []network.Event
}

func (c *captureSink) Publish(events []network.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func TestEventSinkReceivesLifecycleEvents(t *testing.T) {
	sink := &captureSink{}
	s := newTestState(t, WithEventSink(sink))
	buildLab(t, s)

	if _, err := s.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	s.Start(nil, "seed")
	for i := 0; i < 10; i++ {
		s.Step()
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var moved, delivered bool
	for _, ev := range sink.events {
		switch ev.Type {
		case network.EventPacketMoved:
			moved = true
		case network.EventPacketDelivered:
			delivered = true
		}
	}
	if !moved || !delivered {
		t.Fatalf("sink missing events (moved=%v delivered=%v) out of %d", moved, delivered, len(sink.events))
	}
}

func TestTelemetryCountersFollowTraffic(t *testing.T) {
	s := newTestState(t)
	buildLab(t, s)

	if _, err := s.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	s.Start(nil, "seed")
	for i := 0; i < 10; i++ {
		s.Step()
	}

	all := s.Telemetry().ListAll()
	if len(all) == 0 {
		t.Fatal("no telemetry recorded")
	}
	c := s.Telemetry().Get("S1", "S1-p1")
	if c == nil || c.PacketsRx == 0 {
		t.Fatalf("S1-p1 counters = %+v", c)
	}
}

func TestConcurrentReadersDuringTicks(t *testing.T) {
	s := newTestState(t)
	buildLab(t, s)
	s.Start([]model.TrafficFlow{{
		ID:             "f1",
		SourceDeviceID: "H1",
		TargetDeviceID: "H2",
		Protocol:       model.ProtocolUDP,
		VLANID:         10,
		IntervalTicks:  1,
	}}, "seed")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = s.ActivePackets()
				_ = s.Stats()
				_, _ = s.MACTable("S1")
				_ = s.Snapshot()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		s.Step()
	}
	close(stop)
	wg.Wait()

	if s.Stats().PacketsCreated == 0 {
		t.Fatal("flow generated nothing under concurrent reads")
	}
}
