package core

import (
	"math"
	"testing"

	"github.com/netlabworks/vlansim/model"
)

func TestStatsDeliveryRateAndAverageLatency(t *testing.T) {
	s := NewStats()

	s.RecordCreated()
	s.RecordCreated()
	s.RecordCreated()
	s.RecordDelivered(10, 100)
	s.RecordDelivered(30, 100)
	s.RecordDropped(model.DropNoRoute)

	snap := s.Snapshot()
	if snap.PacketsCreated != 3 || snap.PacketsDelivered != 2 || snap.PacketsDropped != 1 {
		t.Fatalf("counters = %+v", snap)
	}
	if math.Abs(snap.DeliveryRate-2.0/3.0) > 1e-9 {
		t.Fatalf("delivery rate = %v, want 2/3", snap.DeliveryRate)
	}
	if math.Abs(snap.AvgLatencyMs-20) > 1e-9 {
		t.Fatalf("avg latency = %v, want 20", snap.AvgLatencyMs)
	}
	if snap.DroppedByReason[string(model.DropNoRoute)] != 1 {
		t.Fatalf("drop breakdown = %v", snap.DroppedByReason)
	}
}

func TestStatsThroughputUsesSimulatedTime(t *testing.T) {
	s := NewStats()

	s.RecordDelivered(5, 1000) // 8000 bits
	s.ObserveTick(1, 2.0, 0)   // 2 simulated seconds

	snap := s.Snapshot()
	if math.Abs(snap.ThroughputBps-4000) > 1e-9 {
		t.Fatalf("throughput = %v bps, want 4000", snap.ThroughputBps)
	}
}

func TestStatsUtilizationCounters(t *testing.T) {
	s := NewStats()

	s.RecordForwarded("S1", 10, 500)
	s.RecordForwarded("S1", 10, 250)
	s.RecordForwarded("S2", 20, 100)
	s.RecordForwarded("", 10, 100)  // anonymous hop still counts per VLAN
	s.RecordForwarded("S3", 0, 100) // untagged counts per device only

	snap := s.Snapshot()
	if snap.BytesByDevice["S1"] != 750 || snap.BytesByDevice["S2"] != 100 {
		t.Fatalf("per-device bytes = %v", snap.BytesByDevice)
	}
	if snap.BytesByVLAN[10] != 850 || snap.BytesByVLAN[20] != 100 {
		t.Fatalf("per-VLAN bytes = %v", snap.BytesByVLAN)
	}
	if _, ok := snap.BytesByVLAN[0]; ok {
		t.Fatal("untagged traffic must not appear in per-VLAN usage")
	}
}

func TestStatsPercentiles(t *testing.T) {
	s := NewStats()
	for i := 1; i <= 100; i++ {
		s.RecordDelivered(float64(i), 0)
	}

	snap := s.Snapshot()
	if snap.P50LatencyMs < 45 || snap.P50LatencyMs > 55 {
		t.Fatalf("p50 = %v, want around 50", snap.P50LatencyMs)
	}
	if snap.P95LatencyMs < 90 || snap.P95LatencyMs > 100 {
		t.Fatalf("p95 = %v, want around 95", snap.P95LatencyMs)
	}
}

func TestStatsReset(t *testing.T) {
	s := NewStats()
	s.RecordCreated()
	s.RecordDelivered(10, 10)
	s.RecordForwarded("S1", 10, 10)
	s.Reset()

	snap := s.Snapshot()
	if snap.PacketsCreated != 0 || snap.PacketsDelivered != 0 || len(snap.BytesByDevice) != 0 {
		t.Fatalf("reset left state behind: %+v", snap)
	}
}
