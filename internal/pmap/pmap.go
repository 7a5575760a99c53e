// Package pmap stands in for the kernel's hardware page map (the
// pmap_enter/pmap_remove/pmap_get_address_range/pmap_kernel family from
// spec §6), an external collaborator this module does not implement in
// terms of real hardware. No example repo in the pack models an MMU or
// page table, so this is a deliberately plain mutex-protected map — the
// one external collaborator with no third-party grounding available.
package pmap

import "sync"

// Prot is the protection bits installed with a mapping.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// PMap is the hardware page-map contract the VM subsystem depends on.
type PMap interface {
	// Enter installs a va->pa mapping with the given protection.
	Enter(va, pa uintptr, prot Prot) error
	// Remove tears down every mapping in [vaBegin, vaEnd] inclusive.
	Remove(vaBegin, vaEnd uintptr)
	// AddressRange reports the virtual-address bounds this map governs.
	AddressRange() (begin, end uintptr)
}

// SimpleMap is an in-memory PMap over a bounded virtual-address range.
type SimpleMap struct {
	mu         sync.RWMutex
	begin, end uintptr
	entries    map[uintptr]mapping
}

type mapping struct {
	pa   uintptr
	prot Prot
}

// NewSimpleMap creates a PMap governing [begin, end] inclusive — the
// kernel's equivalent of pmap_kernel() plus pmap_get_address_range().
func NewSimpleMap(begin, end uintptr) *SimpleMap {
	return &SimpleMap{begin: begin, end: end, entries: make(map[uintptr]mapping)}
}

func (m *SimpleMap) Enter(va, pa uintptr, prot Prot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[va] = mapping{pa: pa, prot: prot}
	return nil
}

func (m *SimpleMap) Remove(vaBegin, vaEnd uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for va := range m.entries {
		if va >= vaBegin && va <= vaEnd {
			delete(m.entries, va)
		}
	}
}

func (m *SimpleMap) AddressRange() (uintptr, uintptr) { return m.begin, m.end }

// Lookup reports the physical address and protection mapped at va, if any.
// Exercised by tests to verify installed mappings.
func (m *SimpleMap) Lookup(va uintptr) (pa uintptr, prot Prot, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[va]
	return e.pa, e.prot, ok
}

// Len reports how many pages currently have an installed mapping.
func (m *SimpleMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
