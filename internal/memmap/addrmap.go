// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package memmap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yutatech/RPL4/hw"
)

var (
	ErrConflict = errors.New("address conflict")
	ErrUnmapped = errors.New("address isn't mapped")
)

// Entry is a mapped window at a device bus address.
type Entry struct {
	Name   string
	Bus    uint32
	Size   uint32
	Window *hw.Window
}

func (e *Entry) End() uint64 { return uint64(e.Bus) + uint64(e.Size) }

// Overlaps is true if any of the size bytes at bus are within the entry.
func (e *Entry) Overlaps(bus uint32, size uint32) bool {
	end := uint64(bus) + uint64(size)
	return uint64(e.Bus) < end && uint64(bus) < e.End()
}

// Contains is true if all of the size bytes at bus are within the entry.
func (e *Entry) Contains(bus uint32, size uint32) bool {
	return e.Bus <= bus && uint64(bus)+uint64(size) <= e.End()
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s: %#08x-%#08x", e.Name, e.Bus, e.End()-1)
}

// AddressMap is a sorted table of non-overlapping windows.
type AddressMap []*Entry

func (m AddressMap) Len() int           { return len(m) }
func (m AddressMap) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }
func (m AddressMap) Less(i, j int) bool { return m[i].Bus < m[j].Bus }

// Add the given window at its bus address.
func (m *AddressMap) Add(name string, w *hw.Window) error {
	if w == nil || w.Len() == 0 {
		return fmt.Errorf("%s: empty window", name)
	}
	if uint64(w.Bus())+uint64(w.Len()) > 1<<32 {
		return fmt.Errorf("%s: %v: exceeds 32 bit bus", name, w)
	}
	e := &Entry{
		Name:   name,
		Bus:    w.Bus(),
		Size:   uint32(w.Len()),
		Window: w,
	}
	for _, x := range *m {
		if x.Overlaps(e.Bus, e.Size) {
			return fmt.Errorf("%v: %w with %v", e, ErrConflict, x)
		}
	}
	*m = append(*m, e)
	sort.Sort(*m)
	return nil
}

// Lookup returns the window and offset of the n bytes at bus.
func (m AddressMap) Lookup(bus, n uint32) (*hw.Window, uint32, error) {
	i := sort.Search(len(m), func(i int) bool {
		return uint64(bus) < m[i].End()
	})
	if i < len(m) && m[i].Contains(bus, n) {
		return m[i].Window, bus - m[i].Bus, nil
	}
	return nil, 0, fmt.Errorf("%#08x+%#x: %w", bus, n, ErrUnmapped)
}

// Entry returns the named entry or nil.
func (m AddressMap) Entry(name string) *Entry {
	for _, e := range m {
		if e.Name == name {
			return e
		}
	}
	return nil
}
