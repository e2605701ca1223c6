// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package sim

import (
	"bytes"
	"sync"
	"testing"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/internal/test"
)

func TestFirmware(t *testing.T) {
	assert := test.Assert{TB: t}
	fw := NewFirmware()
	defer fw.Shutdown()

	h, err := fw.Allocate(100, 32, 0x14)
	assert.Nil(err)
	bus, err := fw.Lock(h)
	assert.Nil(err)
	assert.Reg(bus, BusAlias|PhysBase)
	allocated, locked := fw.Live()
	assert.True(allocated == 1 && locked == 1)

	b, err := fw.Memory(PhysBase, 100)
	assert.Nil(err)
	m, err := fw.Map(PhysBase, 4096)
	assert.Nil(err)
	b[7] = 0x5a
	assert.True(m[7] == 0x5a)
	assert.Nil(fw.Unmap(m))

	assert.Nil(fw.Unlock(h))
	_, locked = fw.Live()
	assert.True(locked == 0)

	fw.FailNext("lock")
	_, err = fw.Lock(h)
	assert.Error(err, ErrInjected)
	_, err = fw.Lock(h)
	assert.Nil(err)

	h2, err := fw.Allocate(1, 0, 0)
	assert.Nil(err)
	bus2, err := fw.Lock(h2)
	assert.Nil(err)
	// page rounded with a guard page
	assert.Reg(bus2, BusAlias|(PhysBase+2*pageSize))

	assert.Nil(fw.Release(h))
	_, err = fw.Memory(PhysBase, 1)
	assert.True(err != nil)
	assert.True(fw.Release(h) != nil)
	_, err = fw.Allocate(0, 0, 0)
	assert.True(err != nil)

	assert.Nil(fw.Shutdown())
	_, err = fw.Allocate(1, 0, 0)
	assert.Match(err.Error(), "closed")
}

type rig struct {
	*Machine
	bus uint32
	mem []byte
}

func newRig(t *testing.T) *rig {
	m, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	m.Engine.Trace = *test.VV
	t.Cleanup(func() { m.Close() })
	h, err := m.Firmware.Allocate(4096, 32, 0)
	if err != nil {
		t.Fatal(err)
	}
	bus, err := m.Firmware.Lock(h)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := m.Firmware.Memory(bus&physMask, 4096)
	if err != nil {
		t.Fatal(err)
	}
	return &rig{m, bus, mem}
}

// cb stores a standard control block at off.
func (r *rig) cb(off int, ti, src, dst, n, next uint32) uint32 {
	for i, x := range []uint32{ti, src, dst, n, 0, next, 0, 0} {
		hw.StoreWord(r.mem, off+4*i, x)
	}
	return r.bus + uint32(off)
}

func (r *rig) start(ch int, cb uint32) {
	r.Platform.DMA.Reg(uint32(ch)<<8 | regConblkAd).Set(cb)
	r.Platform.DMA.Reg(uint32(ch) << 8).SetBits(csActive)
	r.Engine.Sync()
}

func TestCopy(t *testing.T) {
	assert := test.Assert{TB: t}
	r := newRig(t)
	for i := 0; i < 64; i++ {
		r.mem[0x100+i] = byte(i + 1)
	}
	cb := r.cb(0, tiSrcInc|tiDestInc|tiInten, r.bus+0x100, r.bus+0x200, 64,
		0)
	r.start(5, cb)

	cs := r.Platform.DMA.Reg(5 << 8).Get()
	assert.Reg(cs&(csActive|csEnd|csInt), csEnd|csInt)
	assert.True(bytes.Equal(r.mem[0x100:0x140], r.mem[0x200:0x240]))
	assert.Reg(r.Platform.DMA.Reg(5<<8|regConblkAd).Get(), 0)
	assert.Reg(r.Platform.DMA.Reg(5<<8|regTxfrLen).Get(), 64)
	assert.Reg(r.Platform.DMA.Reg(regIntStatus).Get()&(1<<5), 1<<5)
}

func TestTrace(t *testing.T) {
	assert := test.Assert{TB: t}
	var (
		mu    sync.Mutex
		lines []string
	)
	save := logTrace
	logTrace = func(s string) {
		mu.Lock()
		lines = append(lines, s)
		mu.Unlock()
	}
	defer func() { logTrace = save }()

	r := newRig(t)
	r.Engine.Trace = true
	cb := r.cb(0, tiSrcInc|tiDestInc, r.bus+0x100, r.bus+0x200, 64, 0)
	r.start(5, cb)

	mu.Lock()
	defer mu.Unlock()
	assert.True(len(lines) > 0)
	assert.Match(lines[0], "^dma5: cb 0x[0-9a-f]+ ti 0x0*110 0x[0-9a-f]+ -> "+
		"0x[0-9a-f]+ len 0x40 next 0x0+$")
}

func TestError(t *testing.T) {
	assert := test.Assert{TB: t}
	r := newRig(t)
	// unallocated source
	cb := r.cb(0, tiSrcInc|tiDestInc, 0xc8000000, r.bus+0x200, 4, 0)
	r.start(2, cb)
	cs := r.Platform.DMA.Reg(2 << 8).Get()
	assert.Reg(cs&(csActive|csError), csError)
	assert.Reg(r.Platform.DMA.Reg(2<<8|regDebug).Get()&debugReadError,
		debugReadError)
}

func TestDreqWrites(t *testing.T) {
	assert := test.Assert{TB: t}
	r := newRig(t)
	const fifo = 0x7e20c018
	for i := 0; i < 4; i++ {
		hw.StoreWord(r.mem, 0x100+4*i, uint32(10+i))
	}
	cb := r.cb(0, tiSrcInc|tiDestDreq, r.bus+0x100, fifo, 16, 0)
	r.start(0, cb)

	l := r.Engine.Writes(fifo)
	assert.True(len(l) == 4)
	for i, x := range l {
		assert.Reg(x, uint32(10+i))
	}
	assert.Reg(r.Platform.PWM.Reg(0x18).Get(), 13)
	assert.True(len(r.Engine.Writes(fifo+4)) == 0)
}

func TestAbortAndReset(t *testing.T) {
	assert := test.Assert{TB: t}
	r := newRig(t)
	cs := r.Platform.DMA.Reg(4 << 8)

	r.start(4, 0)
	assert.True(cs.IsSet(csActive))
	cs.SetBits(csAbort)
	r.Engine.Sync()
	assert.False(cs.IsSet(csActive))

	r.Platform.DMA.Reg(4<<8 | regConblkAd).Set(r.bus)
	cs.Set(csReset)
	r.Engine.Sync()
	assert.Reg(cs.Get(), 0)
	assert.Reg(r.Platform.DMA.Reg(4<<8|regConblkAd).Get(), 0)
}

func TestHold(t *testing.T) {
	assert := test.Assert{TB: t}
	r := newRig(t)
	cs := r.Platform.SPI.Reg(0x600)
	assert.True(cs.IsSet(spiReady))
	cs.ClearBits(spiReady)
	r.Engine.Sync()
	assert.True(cs.IsSet(spiReady))

	aux := r.Platform.Aux.Reg(0x88)
	r.Engine.Hold(aux, 1<<7)
	assert.True(aux.IsSet(1 << 7))
}
