// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dmamem_test

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/yutatech/RPL4/dmamem"
	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/internal/sim"
	"github.com/yutatech/RPL4/internal/test"
)

func newAllocator(t *testing.T) (*dmamem.Allocator, *sim.Firmware) {
	fw := sim.NewFirmware()
	a := dmamem.New(fw, fw, dmamem.Config{})
	t.Cleanup(func() {
		a.Close()
		fw.Shutdown()
	})
	return a, fw
}

func TestAllocate(t *testing.T) {
	assert := test.Assert{TB: t}
	a, _ := newAllocator(t)

	b, err := a.Allocate(100)
	assert.Nil(err)
	assert.True(len(b) == 100)
	assert.True(uintptr(unsafe.Pointer(&b[0]))%dmamem.Alignment == 0)
	phys, err := a.PhysicalAddressOf(b)
	assert.Nil(err)
	assert.True(phys != 0)
	assert.Reg(phys&(dmamem.PageSize-1), 0)
	assert.Reg(phys&^dmamem.PhysMask, 0)

	x, err := a.PhysicalAddress(unsafe.Pointer(&b[50]))
	assert.Nil(err)
	assert.Reg(x, phys+50)

	// the whole block translates, not just the requested bytes
	x, err = a.PhysicalAddress(unsafe.Pointer(&b[:cap(b)][cap(b)-1]))
	assert.Nil(err)
	assert.Reg(x, phys+uint32(cap(b))-1)

	hw.FillWords(b, func(i int) uint32 { return uint32(i * i) })
	assert.Reg(hw.LoadWord(b, 4*7), 49)

	s := a.Stats()
	assert.True(s.Blocks == 1 && s.InUse == 1 && s.Bytes == dmamem.PageSize)
}

func TestReuse(t *testing.T) {
	assert := test.Assert{TB: t}
	a, fw := newAllocator(t)

	b1, err := a.Allocate(256)
	assert.Nil(err)
	p1, _ := a.PhysicalAddressOf(b1)
	a.Free(b1)
	assert.True(a.Stats().InUse == 0)

	_, err = a.PhysicalAddressOf(b1)
	assert.Error(err, dmamem.ErrUnknownAddress)

	b2, err := a.Allocate(64)
	assert.Nil(err)
	p2, _ := a.PhysicalAddressOf(b2)
	assert.Reg(p2, p1)
	assert.True(unsafe.Pointer(&b1[0]) == unsafe.Pointer(&b2[0]))

	b3, err := a.Allocate(64)
	assert.Nil(err)
	p3, _ := a.PhysicalAddressOf(b3)
	assert.True(p3 != p1)

	n, locked := fw.Live()
	assert.True(n == 2 && locked == 2)
}

func TestLargeAllocation(t *testing.T) {
	assert := test.Assert{TB: t}
	a, _ := newAllocator(t)

	b, err := a.Allocate(3*dmamem.PageSize + 1)
	assert.Nil(err)
	assert.True(len(b) == 3*dmamem.PageSize+1)
	assert.True(a.Stats().Bytes == 4*dmamem.PageSize)
	a.Free(b)

	small, err := a.Allocate(dmamem.PageSize)
	assert.Nil(err)
	assert.True(unsafe.Pointer(&small[0]) == unsafe.Pointer(&b[0]))
	big, err := a.Allocate(5 * dmamem.PageSize)
	assert.Nil(err)
	assert.True(a.Stats().Blocks == 2)
	a.Free(small)
	a.Free(big)

	// the first free block is too small
	again, err := a.Allocate(5 * dmamem.PageSize)
	assert.Nil(err)
	assert.True(unsafe.Pointer(&again[0]) == unsafe.Pointer(&big[0]))
	assert.True(a.Stats().Blocks == 2)
}

func TestInvalidSize(t *testing.T) {
	assert := test.Assert{TB: t}
	a, _ := newAllocator(t)
	for _, n := range []int{0, -1} {
		b, err := a.Allocate(n)
		assert.Error(err, dmamem.ErrInvalidSize)
		assert.True(b == nil)
	}
	assert.True(a.Stats().Blocks == 0)
}

func TestUnknownAddress(t *testing.T) {
	assert := test.Assert{TB: t}
	a, _ := newAllocator(t)
	b, err := a.Allocate(32)
	assert.Nil(err)

	stack := make([]byte, 64)
	phys, err := a.PhysicalAddressOf(stack)
	assert.Error(err, dmamem.ErrUnknownAddress)
	assert.Reg(phys, 0)
	_, err = a.PhysicalAddress(nil)
	assert.Error(err, dmamem.ErrUnknownAddress)

	a.Free(stack)
	a.Free(nil)
	a.Free(b[4:])
	assert.True(a.Stats().InUse == 1)
}

type descriptor struct {
	ti, src, dst, length, stride, next uint32
	reserved                           [2]uint32
}

func TestObject(t *testing.T) {
	assert := test.Assert{TB: t}
	a, _ := newAllocator(t)

	dirty, err := a.Allocate(64)
	assert.Nil(err)
	hw.FillWords(dirty, func(int) uint32 { return 0xffffffff })
	a.Free(dirty)

	d, err := dmamem.AllocateObject[descriptor](a)
	assert.Nil(err)
	assert.True(*d == descriptor{})
	phys, err := a.PhysicalAddress(unsafe.Pointer(d))
	assert.Nil(err)
	assert.Reg(phys%32, 0)

	d.ti = 0x0c000318
	d.next = phys
	dmamem.FreeObject(a, d)
	assert.True(a.Stats().InUse == 0)
	b := unsafe.Slice((*byte)(unsafe.Pointer(d)), 32)
	assert.Reg(hw.LoadWord(b, 0), 0)
	assert.Reg(hw.LoadWord(b, 20), 0)

	_, err = dmamem.AllocateObject[[3]byte](a)
	assert.Error(err, dmamem.ErrInvalidSize)
	dmamem.FreeObject[descriptor](a, nil)
}

func TestRollback(t *testing.T) {
	assert := test.Assert{TB: t}
	a, fw := newAllocator(t)
	for _, op := range []string{"allocate", "lock", "map"} {
		fw.FailNext(op)
		_, err := a.Allocate(32)
		assert.Error(err, sim.ErrInjected)
		n, locked := fw.Live()
		assert.True(n == 0 && locked == 0)
	}
	assert.True(a.Stats().Blocks == 0)
	_, err := a.Allocate(32)
	assert.Nil(err)
}

func TestClose(t *testing.T) {
	assert := test.Assert{TB: t}
	a, fw := newAllocator(t)
	for i := 0; i < 3; i++ {
		_, err := a.Allocate(1000)
		assert.Nil(err)
	}
	n, _ := fw.Live()
	assert.True(n == 3)
	assert.Nil(a.Close())
	n, _ = fw.Live()
	assert.True(n == 0)
	_, err := a.Allocate(32)
	assert.Error(err, dmamem.ErrClosed)
	assert.Nil(a.Close())
}

func TestConcurrent(t *testing.T) {
	assert := test.Assert{TB: t}
	a, _ := newAllocator(t)
	const workers, held = 8, 3
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		live = make(map[uint32]int)
	)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				var bufs [held][]byte
				var phys [held]uint32
				for k := range bufs {
					b, err := a.Allocate(32 * (i + 1))
					if err != nil {
						errs <- err
						return
					}
					p, err := a.PhysicalAddressOf(b)
					if err != nil {
						errs <- err
						return
					}
					mu.Lock()
					owner, aliased := live[p]
					live[p] = i
					mu.Unlock()
					if aliased {
						errs <- fmt.Errorf("%#08x: held by %d and %d",
							p, owner, i)
						return
					}
					hw.FillWords(b, func(int) uint32 {
						return uint32(i<<8 | k)
					})
					bufs[k], phys[k] = b, p
				}
				runtime.Gosched()
				for k, b := range bufs {
					for off := 0; off+4 <= len(b); off += 4 {
						x := hw.LoadWord(b, off)
						if want := uint32(i<<8 | k); x != want {
							errs <- fmt.Errorf("%#08x: read %#x, wrote %#x",
								phys[k]+uint32(off), x, want)
							return
						}
					}
					mu.Lock()
					delete(live, phys[k])
					mu.Unlock()
					a.Free(b)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.Nil(err)
	}
	s := a.Stats()
	assert.True(s.InUse == 0 && s.Blocks <= workers*held)
}

func TestMailbox(t *testing.T) {
	assert := test.Assert{TB: t}
	assert.OnTarget()
	a, err := dmamem.Open()
	assert.Nil(err)
	defer a.Close()
	b, err := a.Allocate(4096)
	assert.Nil(err)
	phys, err := a.PhysicalAddressOf(b)
	assert.Nil(err)
	assert.True(phys != 0)
	hw.ZeroWords(b)
	a.Free(b)
}
