// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package hw provides memory mapped register read/write.
//
// A Window is a named, bounds checked view of a mapped register block.
// Registers are addressed by byte offset from the start of the window and
// every access is a single 32 bit load or store.
package hw

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Reg32 is a 32 bit register inside a mapped window.
type Reg32 uint32

func (r *Reg32) Get() uint32        { return atomic.LoadUint32((*uint32)(r)) }
func (r *Reg32) Set(x uint32)       { atomic.StoreUint32((*uint32)(r), x) }
func (r *Reg32) SetBits(m uint32)   { r.Set(r.Get() | m) }
func (r *Reg32) ClearBits(m uint32) { r.Set(r.Get() &^ m) }

// CompareAndSwap stores x if the register still holds old.
func (r *Reg32) CompareAndSwap(old, x uint32) bool {
	return atomic.CompareAndSwapUint32((*uint32)(r), old, x)
}

// IsSet returns true if all bits of m are set.
func (r *Reg32) IsSet(m uint32) bool { return r.Get()&m == m }

// Field returns width bits starting at shift.
func (r *Reg32) Field(shift, width uint) uint32 {
	return (r.Get() >> shift) & Mask(width)
}

// SetField replaces width bits starting at shift with x; excess bits of x
// are discarded.
func (r *Reg32) SetField(shift, width uint, x uint32) {
	m := Mask(width) << shift
	r.Set(r.Get()&^m | (x<<shift)&m)
}

// Mask of the given width.
func Mask(width uint) uint32 {
	if width >= 32 {
		return ^uint32(0)
	}
	return 1<<width - 1
}

// Window of memory mapped registers.
type Window struct {
	name string
	bus  uint32
	b    []byte
}

// NewWindow returns a window named name whose first byte is at the given
// device bus address.
func NewWindow(name string, bus uint32, b []byte) *Window {
	return &Window{name: name, bus: bus, b: b}
}

func (w *Window) Name() string  { return w.name }
func (w *Window) Len() int      { return len(w.b) }
func (w *Window) Bus() uint32   { return w.bus }
func (w *Window) Bytes() []byte { return w.b }

func (w *Window) String() string {
	return fmt.Sprintf("%s: %#08x-%#08x", w.name, w.bus,
		w.bus+uint32(len(w.b))-1)
}

// BusAddress of the register at the given offset as seen by DMA masters.
func (w *Window) BusAddress(off uint32) uint32 { return w.bus + off }

// Reg returns the register at byte offset off.
// Offsets are constants of the register layout so a bad one is a bug.
func (w *Window) Reg(off uint32) *Reg32 {
	CheckRegAddr(w.name, off, len(w.b))
	return (*Reg32)(unsafe.Pointer(&w.b[off]))
}

// Sub returns the size byte window at the given offset.
func (w *Window) Sub(name string, off, size uint32) (*Window, error) {
	if off%4 != 0 || size%4 != 0 {
		return nil, fmt.Errorf("%s: %s: %#x+%#x: misaligned",
			w.name, name, off, size)
	}
	if uint64(off)+uint64(size) > uint64(len(w.b)) {
		return nil, fmt.Errorf("%s: %s: %#x+%#x: exceeds %#x",
			w.name, name, off, size, len(w.b))
	}
	return &Window{
		name: name,
		bus:  w.bus + off,
		b:    w.b[off : off+size : off+size],
	}, nil
}

// CheckRegAddr panics if off isn't a word aligned offset within n bytes.
func CheckRegAddr(name string, off uint32, n int) {
	if off%4 != 0 || uint64(off)+4 > uint64(n) {
		panic(fmt.Errorf("%s: register offset %#x out of range %#x",
			name, off, n))
	}
}
