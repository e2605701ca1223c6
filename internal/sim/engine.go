// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/platform"
)

// Hardware register model of the DMA block.
const (
	NumChannels = 15
	firstDMA4   = 11
	liteChannel = 7

	regIntStatus = 0xfe0
	regEnable    = 0xff0

	// standard and lite
	regCS        = 0x00
	regConblkAd  = 0x04
	regTI        = 0x08
	regSourceAd  = 0x0c
	regDestAd    = 0x10
	regTxfrLen   = 0x14
	regStride    = 0x18
	regNextConbk = 0x1c
	regDebug     = 0x20

	// dma4
	reg4CB     = 0x04
	reg4Debug  = 0x0c
	reg4TI     = 0x10
	reg4Src    = 0x14
	reg4SrcI   = 0x18
	reg4Dest   = 0x1c
	reg4DestI  = 0x20
	reg4Len    = 0x24
	reg4NextCB = 0x28
	reg4Debug2 = 0x2c

	csActive = 1 << 0
	csEnd    = 1 << 1
	csInt    = 1 << 2
	csError  = 1 << 8
	csAbort  = 1 << 30
	csReset  = 1 << 31
	cs4Error = 1 << 10
	cs4Halt  = 1 << 31

	tiInten    = 1 << 0
	tiTDMode   = 1 << 1
	tiDestInc  = 1 << 4
	tiDestDreq = 1 << 6
	tiDestIgn  = 1 << 7
	tiSrcInc   = 1 << 8
	tiSrcDreq  = 1 << 10
	tiSrcIgn   = 1 << 11

	ti4Inten  = 1 << 0
	ti4TDMode = 1 << 1
	ti4SDreq  = 1 << 14
	ti4DDreq  = 1 << 15
	xi4Inc    = 1 << 12
	xi4Ignore = 1 << 15

	debugReadError = 1 << 2
	debug4Reset    = 1 << 23

	// write-1-to-clear
	csW1C = csEnd | csInt

	periphBus  = 0x7e000000
	periphMask = 0xff000000
	physMask   = 0x3fffffff

	// control blocks run per channel per pass; the rest of a longer (or
	// circular) chain runs on later passes.
	cbPerPass = 64
	// words kept per peripheral address
	maxWrites = 4096
)

// Engine runs the DMA channels of a simulated platform. CPU writes of a
// W1C bit that is already set and whose CS word is otherwise unchanged
// aren't seen; the engine only detects writes that change CS.
type Engine struct {
	// Trace logs every control block run.
	Trace bool
	// Period between passes over the channels.
	Period time.Duration

	p  *platform.Platform
	fw *Firmware

	shadow [NumChannels]uint32

	mu      sync.Mutex
	cond    *sync.Cond
	passes  uint64
	stopped bool
	writes  map[uint32][]uint32
	holds   []hold
	stop    chan struct{}
	done    chan struct{}
}

// NewEngine starts an engine over the platform's DMA window; fw resolves
// the memory addresses in control blocks.
func NewEngine(p *platform.Platform, fw *Firmware) (*Engine, error) {
	if err := platform.Check(p); err != nil {
		return nil, err
	}
	e := &Engine{
		Period: 20 * time.Microsecond,
		p:      p,
		fw:     fw,
		writes: make(map[uint32][]uint32),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	// channels are enabled out of reset
	e.p.DMA.Reg(regEnable).Set(1<<NumChannels - 1)
	go e.run()
	return e, nil
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		for ch := 0; ch < NumChannels; ch++ {
			e.step(ch)
		}
		e.assertHolds()
		e.mu.Lock()
		e.passes++
		e.cond.Broadcast()
		e.mu.Unlock()
		time.Sleep(e.Period)
	}
}

// Sync waits for a complete pass over every channel that started after
// the call.
func (e *Engine) Sync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	target := e.passes + 2
	for e.passes < target && !e.stopped {
		e.cond.Wait()
	}
}

// Close stops the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.cond.Broadcast()
	e.mu.Unlock()
	close(e.stop)
	<-e.done
	return nil
}

// Writes returns the words written to the peripheral register at the bus
// address by DREQ paced transfers.
func (e *Engine) Writes(bus uint32) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint32(nil), e.writes[bus]...)
}

func (e *Engine) reg(ch int, off uint32) *hw.Reg32 {
	return e.p.DMA.Reg(uint32(ch)<<8 | off)
}

var logTrace = func(s string) { log.Print("debug", "sim: ", s) }

func (e *Engine) tracef(format string, args ...interface{}) {
	if e.Trace {
		logTrace(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) step(ch int) {
	cs := e.reg(ch, regCS)
	raw := cs.Get()
	x := raw
	if raw != e.shadow[ch] {
		x = raw&^csW1C | e.shadow[ch]&csW1C&^raw
	}
	is4 := ch >= firstDMA4
	switch {
	case !is4 && x&csReset != 0,
		is4 && e.reg(ch, reg4Debug).Get()&debug4Reset != 0:
		e.reset(ch)
		return
	case x&csAbort != 0:
		x &^= csAbort | csActive
		e.setCB(ch, 0)
	case x&csActive != 0 && e.enabled(ch):
		x = e.transfer(ch, x)
	}
	if x != raw && cs.CompareAndSwap(raw, x) {
		e.shadow[ch] = x
	} else if x == raw {
		e.shadow[ch] = raw
	}
	e.intStatus(ch, e.shadow[ch])
}

func (e *Engine) enabled(ch int) bool {
	return e.p.DMA.Reg(regEnable).Get()&(1<<ch) != 0
}

func (e *Engine) intStatus(ch int, cs uint32) {
	r := e.p.DMA.Reg(regIntStatus)
	if cs&csInt != 0 {
		r.SetBits(1 << ch)
	} else if r.Get()&(1<<ch) != 0 {
		r.ClearBits(1 << ch)
	}
}

func (e *Engine) reset(ch int) {
	last := uint32(regDebug)
	if ch >= firstDMA4 {
		last = reg4Debug2
	}
	for off := uint32(4); off <= last; off += 4 {
		e.reg(ch, off).Set(0)
	}
	e.reg(ch, regCS).Set(0)
	e.shadow[ch] = 0
	e.tracef("dma%d: reset", ch)
}

func (e *Engine) cb(ch int) uint32 {
	if ch >= firstDMA4 {
		return e.reg(ch, reg4CB).Get() << 5
	}
	return e.reg(ch, regConblkAd).Get()
}

func (e *Engine) setCB(ch int, phys uint32) {
	if ch >= firstDMA4 {
		e.reg(ch, reg4CB).Set(phys >> 5)
	} else {
		e.reg(ch, regConblkAd).Set(phys)
	}
}

// transfer runs control blocks until the chain ends, an error occurs or
// cbPerPass blocks ran.
func (e *Engine) transfer(ch int, cs uint32) uint32 {
	errBit := uint32(csError)
	if ch >= firstDMA4 {
		errBit = cs4Error
	}
	for n := 0; n < cbPerPass; n++ {
		addr := e.cb(ch)
		if addr == 0 {
			// nothing to load; the channel stays active
			return cs
		}
		x, err := e.run1(ch, addr)
		if err != nil {
			log.Printf("debug", "sim: dma%d: cb %#08x: %v", ch, addr, err)
			if ch < firstDMA4 {
				e.reg(ch, regDebug).SetBits(debugReadError)
			}
			return cs&^csActive | errBit
		}
		if x.inten {
			cs |= csInt
		}
		e.setCB(ch, x.next)
		if x.next == 0 {
			return cs&^csActive | csEnd
		}
	}
	return cs
}

type ran struct {
	next  uint32
	inten bool
}

// endpoint of one side of a transfer
type endpoint struct {
	b    []byte
	bus  uint32
	inc  bool
	dreq bool
	ign  bool
}

func (e *Engine) run1(ch int, addr uint32) (ran, error) {
	b, err := e.fw.Memory(addr&physMask, 32)
	if err != nil {
		return ran{}, err
	}
	var w [8]uint32
	for i := range w {
		w[i] = hw.LoadWord(b, 4*i)
	}
	if ch >= firstDMA4 {
		return e.run4(ch, addr, w)
	}
	ti, src, dst, length, stride, next := w[0], w[1], w[2], w[3], w[4], w[5]
	e.reg(ch, regTI).Set(ti)
	e.reg(ch, regSourceAd).Set(src)
	e.reg(ch, regDestAd).Set(dst)
	e.reg(ch, regTxfrLen).Set(length)
	e.reg(ch, regStride).Set(stride)
	e.reg(ch, regNextConbk).Set(next)
	xlen, ylen := length&0x3fffffff, uint32(1)
	switch {
	case ch == liteChannel:
		xlen = length & 0xffff
	case ti&tiTDMode != 0:
		xlen, ylen = length&0xffff, (length>>16)&0x3fff+1
	}
	e.tracef("dma%d: cb %#08x ti %#08x %#08x -> %#08x len %#x next %#08x",
		ch, addr, ti, src, dst, length, next)
	sstride := int32(int16(stride))
	dstride := int32(int16(stride >> 16))
	for y := uint32(0); y < ylen; y++ {
		s := endpoint{inc: ti&tiSrcInc != 0, dreq: ti&tiSrcDreq != 0,
			ign: ti&tiSrcIgn != 0}
		d := endpoint{inc: ti&tiDestInc != 0, dreq: ti&tiDestDreq != 0,
			ign: ti&tiDestIgn != 0}
		if err = e.copy(uint64(src), uint64(dst), xlen, &s, &d); err != nil {
			return ran{}, err
		}
		if s.inc {
			src += xlen
		}
		if d.inc {
			dst += xlen
		}
		src = uint32(int32(src) + sstride)
		dst = uint32(int32(dst) + dstride)
	}
	return ran{next: next, inten: ti&tiInten != 0}, nil
}

func (e *Engine) run4(ch int, addr uint32, w [8]uint32) (ran, error) {
	ti, src, srci, dst, dsti, length, next := w[0], w[1], w[2], w[3], w[4],
		w[5], w[6]
	e.reg(ch, reg4TI).Set(ti)
	e.reg(ch, reg4Src).Set(src)
	e.reg(ch, reg4SrcI).Set(srci)
	e.reg(ch, reg4Dest).Set(dst)
	e.reg(ch, reg4DestI).Set(dsti)
	e.reg(ch, reg4Len).Set(length)
	e.reg(ch, reg4NextCB).Set(next)
	xlen, ylen := length&0x3fffffff, uint32(1)
	if ti&ti4TDMode != 0 {
		xlen, ylen = length&0xffff, (length>>16)&0x3fff+1
	}
	s40 := uint64(srci&0xff)<<32 | uint64(src)
	d40 := uint64(dsti&0xff)<<32 | uint64(dst)
	e.tracef("dma%d: cb %#08x ti %#08x %#010x -> %#010x len %#x next %#08x",
		ch, addr, ti, s40, d40, length, next<<5)
	sstride := int64(int16(srci >> 16))
	dstride := int64(int16(dsti >> 16))
	for y := uint32(0); y < ylen; y++ {
		s := endpoint{inc: srci&xi4Inc != 0, dreq: ti&ti4SDreq != 0,
			ign: srci&xi4Ignore != 0}
		d := endpoint{inc: dsti&xi4Inc != 0, dreq: ti&ti4DDreq != 0,
			ign: dsti&xi4Ignore != 0}
		if err := e.copy(s40, d40, xlen, &s, &d); err != nil {
			return ran{}, err
		}
		if s.inc {
			s40 += uint64(xlen)
		}
		if d.inc {
			d40 += uint64(xlen)
		}
		s40 = uint64(int64(s40) + sstride)
		d40 = uint64(int64(d40) + dstride)
	}
	return ran{next: next << 5, inten: ti&ti4Inten != 0}, nil
}

// resolve an engine address to simulated memory or a mapped peripheral
// register.
func (e *Engine) resolve(a uint64, n uint32, x *endpoint) error {
	if !x.inc {
		n = 4
	}
	lo := uint32(a)
	switch hi := a >> 32; {
	case hi == 0 && lo&periphMask == periphBus,
		hi == 4 && lo >= 0x7c000000:
		w, off, err := e.p.Map.Lookup(lo, n)
		if err != nil {
			return err
		}
		x.b = w.Bytes()[off : off+n]
		x.bus = lo
		return nil
	case hi == 0:
		b, err := e.fw.Memory(lo&physMask, int(n))
		if err != nil {
			return err
		}
		x.b = b
		return nil
	}
	return fmt.Errorf("%#010x: unmapped", a)
}

func (e *Engine) copy(src, dst uint64, n uint32, s, d *endpoint) error {
	if n == 0 {
		return nil
	}
	if !s.ign {
		if err := e.resolve(src, n, s); err != nil {
			return err
		}
	}
	if !d.ign {
		if err := e.resolve(dst, n, d); err != nil {
			return err
		}
	}
	if s.inc && d.inc && !s.ign && !d.ign {
		m := hw.CopyWords(d.b, s.b)
		copy(d.b[m:], s.b[m:])
		return nil
	}
	for off := 0; off < int(n); off += 4 {
		var x uint32
		if !s.ign {
			soff := 0
			if s.inc {
				soff = off
			}
			if soff+4 <= len(s.b) {
				x = hw.LoadWord(s.b, soff)
			}
		}
		if d.ign {
			continue
		}
		doff := 0
		if d.inc {
			doff = off
		}
		if doff+4 <= len(d.b) {
			hw.StoreWord(d.b, doff, x)
		}
		if d.dreq && d.bus != 0 {
			e.record(d.bus, x)
		}
	}
	return nil
}

func (e *Engine) record(bus, x uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := append(e.writes[bus], x)
	if len(l) > maxWrites {
		l = l[len(l)-maxWrites:]
	}
	e.writes[bus] = l
}
