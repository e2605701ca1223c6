// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package sim simulates the VideoCore memory firmware and the BCM2711 DMA
// engines over anonymous memory so DMA users run without a Raspberry Pi.
package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/yutatech/RPL4/platform"
)

const (
	// PhysBase is the physical address of the first simulated block.
	PhysBase = 0x10000000
	// BusAlias is or'd into a locked block's physical address, as the
	// firmware does for uncached memory.
	BusAlias = 0xc0000000

	pageSize = 4096
)

var ErrInjected = errors.New("injected failure")

type block struct {
	handle uint32
	phys   uint32
	b      []byte
	locked bool
}

func (blk *block) end() uint64 { return uint64(blk.phys) + uint64(len(blk.b)) }

func (blk *block) holds(p uintptr) bool {
	base := uintptr(unsafe.Pointer(&blk.b[0]))
	return base <= p && p < base+uintptr(len(blk.b))
}

// Firmware simulates the mailbox memory interface. It is also the
// platform.Mapper of its own blocks; ranges outside every block are mapped
// as fresh anonymous memory (simulated register windows).
type Firmware struct {
	mu     sync.Mutex
	anon   platform.Anonymous
	next   uint32
	handle uint32
	blocks []*block
	fail   map[string]int
	closed bool
}

func NewFirmware() *Firmware {
	return &Firmware{next: PhysBase, fail: make(map[string]int)}
}

// FailNext makes the next call of the named operation ("allocate", "lock",
// "unlock", "release" or "map") fail with ErrInjected.
func (fw *Firmware) FailNext(op string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.fail[op]++
}

func (fw *Firmware) injected(op string) error {
	if fw.fail[op] > 0 {
		fw.fail[op]--
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

func (fw *Firmware) find(handle uint32) (int, *block, error) {
	for i, blk := range fw.blocks {
		if blk.handle == handle {
			return i, blk, nil
		}
	}
	return -1, nil, fmt.Errorf("handle %d: not allocated", handle)
}

func (fw *Firmware) Allocate(size, align, flags uint32) (uint32, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return 0, errors.New("firmware is closed")
	}
	if err := fw.injected("allocate"); err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("allocate: zero size")
	}
	if align < pageSize {
		align = pageSize
	}
	n := (size + pageSize - 1) &^ (pageSize - 1)
	phys := (fw.next + align - 1) &^ (align - 1)
	b, err := fw.anon.Map(int64(phys), int(n))
	if err != nil {
		return 0, err
	}
	fw.handle++
	fw.blocks = append(fw.blocks, &block{
		handle: fw.handle,
		phys:   phys,
		b:      b,
	})
	// leave a guard page between blocks
	fw.next = phys + n + pageSize
	return fw.handle, nil
}

func (fw *Firmware) Lock(handle uint32) (uint32, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.injected("lock"); err != nil {
		return 0, err
	}
	_, blk, err := fw.find(handle)
	if err != nil {
		return 0, err
	}
	blk.locked = true
	return BusAlias | blk.phys, nil
}

func (fw *Firmware) Unlock(handle uint32) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.injected("unlock"); err != nil {
		return err
	}
	_, blk, err := fw.find(handle)
	if err != nil {
		return err
	}
	blk.locked = false
	return nil
}

func (fw *Firmware) Release(handle uint32) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.injected("release"); err != nil {
		return err
	}
	i, blk, err := fw.find(handle)
	if err != nil {
		return err
	}
	fw.blocks = append(fw.blocks[:i], fw.blocks[i+1:]...)
	return fw.anon.Unmap(blk.b)
}

// Close the mailbox; the simulated memory remains until Shutdown.
func (fw *Firmware) Close() error { return nil }

// Shutdown releases every block and unmaps every window.
func (fw *Firmware) Shutdown() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return nil
	}
	fw.closed = true
	fw.blocks = nil
	return fw.anon.Close()
}

// Map returns the memory of an allocated block or a new anonymous window.
func (fw *Firmware) Map(phys int64, size int) ([]byte, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.injected("map"); err != nil {
		return nil, err
	}
	if b, found := fw.memory(phys, size); found {
		return b, nil
	}
	return fw.anon.Map(phys, size)
}

func (fw *Firmware) Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	p := uintptr(unsafe.Pointer(&b[0]))
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, blk := range fw.blocks {
		if blk.holds(p) {
			return nil
		}
	}
	return fw.anon.Unmap(b)
}

func (fw *Firmware) memory(phys int64, size int) ([]byte, bool) {
	i := sort.Search(len(fw.blocks), func(i int) bool {
		return uint64(phys) < fw.blocks[i].end()
	})
	if i == len(fw.blocks) || size < 0 {
		return nil, false
	}
	blk := fw.blocks[i]
	if phys < int64(blk.phys) || uint64(phys)+uint64(size) > blk.end() {
		return nil, false
	}
	off := int(phys - int64(blk.phys))
	return blk.b[off : off+size : off+size], true
}

// Memory returns the size bytes of allocated memory at phys.
func (fw *Firmware) Memory(phys uint32, size int) ([]byte, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	b, found := fw.memory(int64(phys), size)
	if !found {
		return nil, fmt.Errorf("phys %#08x+%#x: not allocated", phys, size)
	}
	return b, nil
}

// Live returns the number of allocated and the number of locked blocks.
func (fw *Firmware) Live() (allocated, locked int) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, blk := range fw.blocks {
		allocated++
		if blk.locked {
			locked++
		}
	}
	return
}
