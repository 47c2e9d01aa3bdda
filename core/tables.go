package core

import (
	"sort"
	"sync"
	"time"
)

const (
	// MACAgingInterval is simulated time before a dynamic MAC entry
	// expires without a refresh.
	MACAgingInterval = 5 * time.Minute

	// ARPAgingInterval is simulated time before a dynamic ARP entry
	// expires without a refresh.
	ARPAgingInterval = 4 * time.Minute
)

// MACEntry is one row of a switch's forwarding table.
type MACEntry struct {
	VLANID      uint16    `json:"vlanId"`
	MACAddress  string    `json:"macAddress"`
	InterfaceID string    `json:"interfaceId"`
	Static      bool      `json:"static"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// ARPEntry is one row of a device's IP-to-MAC cache. Bindings are
// scoped to the VLAN they were learned in, so the same IP may map to
// different MACs in different VLANs.
type ARPEntry struct {
	VLANID      uint16    `json:"vlanId"`
	IPAddress   string    `json:"ipAddress"`
	MACAddress  string    `json:"macAddress"`
	Static      bool      `json:"static"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

type macKey struct {
	vlanID uint16
	mac    string
}

type arpKey struct {
	vlanID uint16
	ip     string
}

// TableStore holds the learned MAC tables (per switch, keyed by
// VLAN+MAC) and ARP caches (per device, keyed by VLAN+IP). Dynamic
// entries age out after their interval passes in simulated time;
// static entries never age.
type TableStore struct {
	mu  sync.RWMutex
	mac map[string]map[macKey]*MACEntry
	arp map[string]map[arpKey]*ARPEntry
}

// NewTableStore creates empty learning tables.
func NewTableStore() *TableStore {
	return &TableStore{
		mac: make(map[string]map[macKey]*MACEntry),
		arp: make(map[string]map[arpKey]*ARPEntry),
	}
}

// LearnMAC records that macAddress was seen on interfaceID within
// vlanID at deviceID, refreshing the timestamp if the entry already
// exists. Learning never overwrites a static entry's port binding.
func (s *TableStore) LearnMAC(deviceID string, vlanID uint16, macAddress, interfaceID string, now time.Time) {
	if deviceID == "" || macAddress == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.mac[deviceID]
	if !ok {
		table = make(map[macKey]*MACEntry)
		s.mac[deviceID] = table
	}
	key := macKey{vlanID: vlanID, mac: macAddress}
	if e, ok := table[key]; ok {
		if !e.Static {
			e.InterfaceID = interfaceID
			e.RefreshedAt = now
		}
		return
	}
	table[key] = &MACEntry{
		VLANID:      vlanID,
		MACAddress:  macAddress,
		InterfaceID: interfaceID,
		RefreshedAt: now,
	}
}

// AddStaticMAC pins a MAC to a port permanently. Static entries are
// exempt from aging and from dynamic relearning.
func (s *TableStore) AddStaticMAC(deviceID string, vlanID uint16, macAddress, interfaceID string, now time.Time) {
	if deviceID == "" || macAddress == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.mac[deviceID]
	if !ok {
		table = make(map[macKey]*MACEntry)
		s.mac[deviceID] = table
	}
	table[macKey{vlanID: vlanID, mac: macAddress}] = &MACEntry{
		VLANID:      vlanID,
		MACAddress:  macAddress,
		InterfaceID: interfaceID,
		Static:      true,
		RefreshedAt: now,
	}
}

// LookupMAC returns the entry for (vlanID, macAddress) at deviceID.
func (s *TableStore) LookupMAC(deviceID string, vlanID uint16, macAddress string) (MACEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.mac[deviceID][macKey{vlanID: vlanID, mac: macAddress}]; ok {
		return *e, true
	}
	return MACEntry{}, false
}

// LearnARP records an IP-to-MAC binding at deviceID within vlanID.
func (s *TableStore) LearnARP(deviceID string, vlanID uint16, ipAddress, macAddress string, now time.Time) {
	if deviceID == "" || ipAddress == "" || macAddress == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.arp[deviceID]
	if !ok {
		cache = make(map[arpKey]*ARPEntry)
		s.arp[deviceID] = cache
	}
	key := arpKey{vlanID: vlanID, ip: ipAddress}
	if e, ok := cache[key]; ok {
		if !e.Static {
			e.MACAddress = macAddress
			e.RefreshedAt = now
		}
		return
	}
	cache[key] = &ARPEntry{
		VLANID:      vlanID,
		IPAddress:   ipAddress,
		MACAddress:  macAddress,
		RefreshedAt: now,
	}
}

// AddStaticARP pins an IP-to-MAC binding permanently.
func (s *TableStore) AddStaticARP(deviceID string, vlanID uint16, ipAddress, macAddress string, now time.Time) {
	if deviceID == "" || ipAddress == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.arp[deviceID]
	if !ok {
		cache = make(map[arpKey]*ARPEntry)
		s.arp[deviceID] = cache
	}
	cache[arpKey{vlanID: vlanID, ip: ipAddress}] = &ARPEntry{
		VLANID:      vlanID,
		IPAddress:   ipAddress,
		MACAddress:  macAddress,
		Static:      true,
		RefreshedAt: now,
	}
}

// LookupARP returns the ARP binding for (vlanID, ipAddress) at deviceID.
func (s *TableStore) LookupARP(deviceID string, vlanID uint16, ipAddress string) (ARPEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.arp[deviceID][arpKey{vlanID: vlanID, ip: ipAddress}]; ok {
		return *e, true
	}
	return ARPEntry{}, false
}

// Age sweeps both tables, removing dynamic entries whose interval has
// strictly elapsed at now. Entries refreshed exactly one interval ago
// survive; they expire on the next sweep. Returns removed counts.
func (s *TableStore) Age(now time.Time) (macRemoved, arpRemoved int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for deviceID, table := range s.mac {
		for key, e := range table {
			if e.Static {
				continue
			}
			if now.Sub(e.RefreshedAt) > MACAgingInterval {
				delete(table, key)
				macRemoved++
			}
		}
		if len(table) == 0 {
			delete(s.mac, deviceID)
		}
	}
	for deviceID, cache := range s.arp {
		for key, e := range cache {
			if e.Static {
				continue
			}
			if now.Sub(e.RefreshedAt) > ARPAgingInterval {
				delete(cache, key)
				arpRemoved++
			}
		}
		if len(cache) == 0 {
			delete(s.arp, deviceID)
		}
	}
	return macRemoved, arpRemoved
}

// MACTable snapshots a switch's forwarding table sorted by VLAN then MAC.
func (s *TableStore) MACTable(deviceID string) []MACEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := s.mac[deviceID]
	out := make([]MACEntry, 0, len(table))
	for _, e := range table {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VLANID != out[j].VLANID {
			return out[i].VLANID < out[j].VLANID
		}
		return out[i].MACAddress < out[j].MACAddress
	})
	return out
}

// ARPTable snapshots a device's ARP cache sorted by VLAN then IP.
func (s *TableStore) ARPTable(deviceID string) []ARPEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cache := s.arp[deviceID]
	out := make([]ARPEntry, 0, len(cache))
	for _, e := range cache {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VLANID != out[j].VLANID {
			return out[i].VLANID < out[j].VLANID
		}
		return out[i].IPAddress < out[j].IPAddress
	})
	return out
}

// MACDeviceIDs lists the switches that currently hold MAC entries.
func (s *TableStore) MACDeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.mac))
	for id := range s.mac {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ARPDeviceIDs lists the devices that currently hold ARP entries.
func (s *TableStore) ARPDeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.arp))
	for id := range s.arp {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear drops all learned state.
func (s *TableStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mac = make(map[string]map[macKey]*MACEntry)
	s.arp = make(map[string]map[arpKey]*ARPEntry)
}
