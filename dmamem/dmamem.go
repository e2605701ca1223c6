// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dmamem allocates uncached, physically contiguous memory that both
// the CPU and the DMA engines may address.
//
// Blocks are obtained from the VideoCore firmware (allocate, lock) and
// mapped through /dev/mem. A freed block returns to the allocator's pool and
// is reused by a later request of equal or smaller size; blocks are only
// unlocked and released by Close.
package dmamem

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/platform"
)

const (
	// Alignment of every returned buffer and the rounding of requests.
	Alignment = 32
	// PageSize is the firmware allocation granule.
	PageSize = 4096
	// DefaultBlockSize is the least size requested of the firmware.
	DefaultBlockSize = PageSize

	// PhysMask strips the VideoCore cache alias from a bus address.
	PhysMask = 0x3fffffff
)

var (
	ErrInvalidSize    = errors.New("invalid size")
	ErrClosed         = errors.New("allocator is closed")
	ErrUnknownAddress = errors.New("address isn't in an allocated block")
)

// Firmware allocates and locks VideoCore memory.
type Firmware interface {
	Allocate(size, align, flags uint32) (handle uint32, err error)
	// Lock returns the bus address of the locked memory.
	Lock(handle uint32) (bus uint32, err error)
	Unlock(handle uint32) error
	Release(handle uint32) error
	Close() error
}

// logErr reports firmware, mapping and translation failures.
var logErr = func(err error) { log.Print("err", "dmamem: ", err) }

type Config struct {
	// BlockSize is the least size of each firmware allocation; zero means
	// DefaultBlockSize.
	BlockSize int
}

type block struct {
	b      []byte
	handle uint32
	bus    uint32
	phys   uint32
	inUse  bool
}

func (blk *block) base() uintptr { return uintptr(unsafe.Pointer(&blk.b[0])) }

func (blk *block) contains(p uintptr) bool {
	base := blk.base()
	return base <= p && p < base+uintptr(len(blk.b))
}

func (blk *block) String() string {
	return fmt.Sprintf("handle %d phys %#08x size %#x", blk.handle,
		blk.phys, len(blk.b))
}

// Allocator of DMA memory. It is safe for concurrent use.
type Allocator struct {
	fw     Firmware
	mapper platform.Mapper
	cfg    Config
	owned  bool

	mu     sync.Mutex
	blocks []*block
	closed bool
}

func New(fw Firmware, m platform.Mapper, cfg Config) *Allocator {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	return &Allocator{fw: fw, mapper: m, cfg: cfg}
}

// Open an allocator using the firmware mailbox and /dev/mem.
func Open() (*Allocator, error) {
	fw, err := OpenMailbox()
	if err != nil {
		return nil, err
	}
	m, err := platform.OpenDevMem()
	if err != nil {
		fw.Close()
		return nil, err
	}
	a := New(fw, m, Config{})
	a.owned = true
	return a, nil
}

// Allocate returns size bytes of DMA memory aligned to Alignment.
// The contents are not cleared.
func (a *Allocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%d: %w", size, ErrInvalidSize)
	}
	n := (size + Alignment - 1) &^ (Alignment - 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	for _, blk := range a.blocks {
		if !blk.inUse && len(blk.b) >= n {
			blk.inUse = true
			return blk.b[:size:len(blk.b)], nil
		}
	}
	if n < a.cfg.BlockSize {
		n = a.cfg.BlockSize
	}
	n = (n + PageSize - 1) &^ (PageSize - 1)
	blk, err := a.allocateBlock(n)
	if err != nil {
		logErr(err)
		return nil, err
	}
	a.blocks = append(a.blocks, blk)
	log.Printf("debug", "dmamem: new block %v", blk)
	return blk.b[:size:len(blk.b)], nil
}

// allocateBlock runs the firmware allocate, lock and map sequence, undoing
// completed steps if a later one fails.
func (a *Allocator) allocateBlock(n int) (*block, error) {
	handle, err := a.fw.Allocate(uint32(n), PageSize, AllocFlags)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "allocate %#x", n)
	}
	if handle == 0 {
		return nil, fmt.Errorf("allocate %#x: firmware returned no handle", n)
	}
	bus, err := a.fw.Lock(handle)
	if err != nil {
		a.fw.Release(handle)
		return nil, pkgerrors.Wrapf(err, "lock handle %d", handle)
	}
	blk := &block{
		handle: handle,
		bus:    bus,
		phys:   bus & PhysMask,
		inUse:  true,
	}
	blk.b, err = a.mapper.Map(int64(blk.phys), n)
	if err != nil {
		a.fw.Unlock(handle)
		a.fw.Release(handle)
		return nil, pkgerrors.Wrapf(err, "map phys %#08x", blk.phys)
	}
	return blk, nil
}

// Free returns the block of b to the pool. b must be a slice returned by
// Allocate. Memory a DMA engine may still access must not be freed.
func (a *Allocator) Free(b []byte) { a.free(b, false) }

func (a *Allocator) free(b []byte, zero bool) {
	if len(b) == 0 {
		return
	}
	p := uintptr(unsafe.Pointer(&b[0]))
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, blk := range a.blocks {
		if blk.inUse && blk.base() == p {
			if zero {
				hw.ZeroWords(b)
			}
			blk.inUse = false
			return
		}
	}
	log.Printf("warn", "dmamem: free %#x: %v", p, ErrUnknownAddress)
}

// PhysicalAddress returns the physical address of p which must be within
// an allocated buffer.
func (a *Allocator) PhysicalAddress(p unsafe.Pointer) (uint32, error) {
	if p == nil {
		return 0, fmt.Errorf("nil: %w", ErrUnknownAddress)
	}
	x := uintptr(p)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, blk := range a.blocks {
		if blk.inUse && blk.contains(x) {
			return blk.phys + uint32(x-blk.base()), nil
		}
	}
	err := fmt.Errorf("%#x: %w", x, ErrUnknownAddress)
	logErr(err)
	return 0, err
}

// PhysicalAddressOf the first byte of b.
func (a *Allocator) PhysicalAddressOf(b []byte) (uint32, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("empty buffer: %w", ErrUnknownAddress)
	}
	return a.PhysicalAddress(unsafe.Pointer(&b[0]))
}

// Close unmaps, unlocks and releases every block then closes the
// firmware. Buffers returned by Allocate must no longer be used.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var err error
	keep := func(xerr error) {
		if xerr != nil && err == nil {
			err = xerr
		}
	}
	for _, blk := range a.blocks {
		keep(a.mapper.Unmap(blk.b))
		keep(a.fw.Unlock(blk.handle))
		keep(a.fw.Release(blk.handle))
	}
	a.blocks = nil
	keep(a.fw.Close())
	if a.owned {
		keep(a.mapper.Close())
	}
	return err
}

type Stats struct {
	Blocks int
	InUse  int
	Bytes  int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d blocks, %d in use, %d bytes", s.Blocks, s.InUse,
		s.Bytes)
}

func (a *Allocator) Stats() (s Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, blk := range a.blocks {
		s.Blocks++
		s.Bytes += len(blk.b)
		if blk.inUse {
			s.InUse++
		}
	}
	return
}

// AllocateObject returns a zeroed T in DMA memory. T must not contain Go
// pointers and its size must be a multiple of 4.
func AllocateObject[T any](a *Allocator) (*T, error) {
	var zero T
	n := int(unsafe.Sizeof(zero))
	if n == 0 || n%4 != 0 {
		return nil, fmt.Errorf("%T: size %d: %w", zero, n, ErrInvalidSize)
	}
	b, err := a.Allocate(n)
	if err != nil {
		return nil, err
	}
	hw.ZeroWords(b)
	return (*T)(unsafe.Pointer(&b[0])), nil
}

// FreeObject clears then frees an object from AllocateObject.
func FreeObject[T any](a *Allocator, x *T) {
	if x == nil {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(x)), unsafe.Sizeof(*x))
	a.free(b, true)
}
