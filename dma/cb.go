// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma

import (
	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/hw"
)

// Control blocks live in uncached DMA memory (see dmamem.AllocateObject);
// every field is written with a single aligned word store.

// ControlBlock of a standard channel.
type ControlBlock struct {
	TI       uint32
	Source   uint32
	Dest     uint32
	Length   uint32
	Stride   uint32
	Next     uint32
	reserved [2]uint32
}

// LiteControlBlock has the standard layout. Length is limited to 16 bits
// and there is no 2D mode.
type LiteControlBlock ControlBlock

// ControlBlock4 of a DMA4 channel. SourceInfo and DestInfo carry the upper
// 8 bits of the 40 bit addresses; Next is in 32 byte units.
type ControlBlock4 struct {
	TI         uint32
	Source     uint32
	SourceInfo uint32
	Dest       uint32
	DestInfo   uint32
	Length     uint32
	Next       uint32
	reserved   uint32
}

func word(p *uint32) *hw.Reg32 { return (*hw.Reg32)(p) }

func nilBlock(op string) { log.Print("err", "dma: ", op, ": nil control block") }

// Split40 returns the low 32 and high 8 bits of a 40 bit address; higher
// bits are dropped.
func Split40(a uint64) (lo uint32, hi uint8) { return uint32(a), uint8(a >> 32) }

func Combine40(lo uint32, hi uint8) uint64 { return uint64(hi)<<32 | uint64(lo) }

func (cb *ControlBlock) clear() {
	for _, p := range []*uint32{&cb.TI, &cb.Source, &cb.Dest, &cb.Length,
		&cb.Stride, &cb.Next, &cb.reserved[0], &cb.reserved[1]} {
		word(p).Set(0)
	}
}

func (cb *ControlBlock) configure(ti, src, dst, length uint32) {
	cb.clear()
	word(&cb.Source).Set(src)
	word(&cb.Dest).Set(dst)
	word(&cb.Length).Set(length & lengthMask)
	word(&cb.TI).Set(ti)
}

// ConfigureMemoryToMemory zeroes the block then sets an incrementing copy
// of length bytes.
func (cb *ControlBlock) ConfigureMemoryToMemory(src, dst, length uint32) {
	if cb == nil {
		nilBlock("memory to memory")
		return
	}
	cb.configure(tiSrcInc|tiDestInc|tiWaitResp|tiNoWideBursts,
		src, dst, length)
}

// ConfigureMemoryToPeripheral paces writes to a fixed peripheral register
// with dreq.
func (cb *ControlBlock) ConfigureMemoryToPeripheral(src, dst, length uint32, dreq DREQ) {
	if cb == nil {
		nilBlock("memory to peripheral")
		return
	}
	cb.configure(tiSrcInc|tiDestDreq|tiWaitResp|tiNoWideBursts|
		dreq.permap(tiPermapShift), src, dst, length)
}

// ConfigurePeripheralToMemory paces reads of a fixed peripheral register
// with dreq.
func (cb *ControlBlock) ConfigurePeripheralToMemory(src, dst, length uint32, dreq DREQ) {
	if cb == nil {
		nilBlock("peripheral to memory")
		return
	}
	cb.configure(tiSrcDreq|tiDestInc|tiWaitResp|tiNoWideBursts|
		dreq.permap(tiPermapShift), src, dst, length)
}

// SetNext links the physical address of the next block; 0 ends the chain.
func (cb *ControlBlock) SetNext(phys uint32) {
	if cb == nil {
		nilBlock("next")
		return
	}
	word(&cb.Next).Set(phys)
}

// SetTD selects 2D mode: rows transfers of xlen bytes, each followed by
// the signed strides.
func (cb *ControlBlock) SetTD(xlen, rows uint16, srcStride, dstStride int16) {
	if cb == nil {
		nilBlock("2D")
		return
	}
	if rows == 0 {
		rows = 1
	}
	word(&cb.Length).Set(uint32(rows-1)<<16 | uint32(xlen))
	word(&cb.Stride).Set(uint32(uint16(dstStride))<<16 |
		uint32(uint16(srcStride)))
	word(&cb.TI).SetBits(tiTDMode)
}

// SetBurstLength sets the number of words per burst, at most 15.
func (cb *ControlBlock) SetBurstLength(n uint8) {
	if cb == nil {
		nilBlock("burst")
		return
	}
	word(&cb.TI).SetField(tiBurstShift, tiBurstWidth, clamp(n, 15))
}

// SetWaits adds up to 31 dummy cycles after each write.
func (cb *ControlBlock) SetWaits(n uint8) {
	if cb == nil {
		nilBlock("waits")
		return
	}
	word(&cb.TI).SetField(tiWaitsShift, tiWaitsWidth, clamp(n, 31))
}

// SetInterruptEnable raises CS.INT when this block completes.
func (cb *ControlBlock) SetInterruptEnable(on bool) {
	if cb == nil {
		nilBlock("interrupt")
		return
	}
	setBit(&cb.TI, tiInten, on)
}

func (cb *LiteControlBlock) std() *ControlBlock { return (*ControlBlock)(cb) }

func liteLength(length uint32) uint32 {
	if length > MaxLiteLength {
		log.Printf("warn", "dma: lite length %d truncated to %d",
			length, length&MaxLiteLength)
	}
	return length & MaxLiteLength
}

func (cb *LiteControlBlock) ConfigureMemoryToMemory(src, dst, length uint32) {
	cb.std().ConfigureMemoryToMemory(src, dst, liteLength(length))
}

func (cb *LiteControlBlock) ConfigureMemoryToPeripheral(src, dst, length uint32, dreq DREQ) {
	cb.std().ConfigureMemoryToPeripheral(src, dst, liteLength(length), dreq)
}

func (cb *LiteControlBlock) ConfigurePeripheralToMemory(src, dst, length uint32, dreq DREQ) {
	cb.std().ConfigurePeripheralToMemory(src, dst, liteLength(length), dreq)
}

func (cb *LiteControlBlock) SetNext(phys uint32)        { cb.std().SetNext(phys) }
func (cb *LiteControlBlock) SetBurstLength(n uint8)     { cb.std().SetBurstLength(n) }
func (cb *LiteControlBlock) SetWaits(n uint8)           { cb.std().SetWaits(n) }
func (cb *LiteControlBlock) SetInterruptEnable(on bool) { cb.std().SetInterruptEnable(on) }

func (cb *ControlBlock4) clear() {
	for _, p := range []*uint32{&cb.TI, &cb.Source, &cb.SourceInfo,
		&cb.Dest, &cb.DestInfo, &cb.Length, &cb.Next, &cb.reserved} {
		word(p).Set(0)
	}
}

func (cb *ControlBlock4) configure(ti uint32, src, dst uint64, srci, dsti, length uint32) {
	cb.clear()
	lo, hi := Split40(src)
	word(&cb.Source).Set(lo)
	word(&cb.SourceInfo).Set(srci | uint32(hi))
	lo, hi = Split40(dst)
	word(&cb.Dest).Set(lo)
	word(&cb.DestInfo).Set(dsti | uint32(hi))
	word(&cb.Length).Set(length & lengthMask)
	word(&cb.TI).Set(ti)
}

func (cb *ControlBlock4) ConfigureMemoryToMemory(src, dst uint64, length uint32) {
	if cb == nil {
		nilBlock("memory to memory")
		return
	}
	cb.configure(ti4WaitResp, src, dst, xi4Inc, xi4Inc, length)
}

func (cb *ControlBlock4) ConfigureMemoryToPeripheral(src, dst uint64, length uint32, dreq DREQ) {
	if cb == nil {
		nilBlock("memory to peripheral")
		return
	}
	cb.configure(ti4WaitResp|ti4DestDreq|dreq.permap(ti4PermapShift),
		src, dst, xi4Inc, 0, length)
}

func (cb *ControlBlock4) ConfigurePeripheralToMemory(src, dst uint64, length uint32, dreq DREQ) {
	if cb == nil {
		nilBlock("peripheral to memory")
		return
	}
	cb.configure(ti4WaitResp|ti4SrcDreq|dreq.permap(ti4PermapShift),
		src, dst, 0, xi4Inc, length)
}

// SetNext links the next block; its address must be 32 byte aligned.
func (cb *ControlBlock4) SetNext(phys uint64) {
	if cb == nil {
		nilBlock("next")
		return
	}
	word(&cb.Next).Set(uint32(phys >> 5))
}

func (cb *ControlBlock4) NextAddress() uint64 {
	return uint64(word(&cb.Next).Get()) << 5
}

func (cb *ControlBlock4) SourceAddress() uint64 {
	return Combine40(word(&cb.Source).Get(),
		uint8(word(&cb.SourceInfo).Get()&xi4AddrMask))
}

func (cb *ControlBlock4) DestAddress() uint64 {
	return Combine40(word(&cb.Dest).Get(),
		uint8(word(&cb.DestInfo).Get()&xi4AddrMask))
}

// SetTD selects 2D mode; the strides go to the upper halves of SourceInfo
// and DestInfo.
func (cb *ControlBlock4) SetTD(xlen, rows uint16, srcStride, dstStride int16) {
	if cb == nil {
		nilBlock("2D")
		return
	}
	if rows == 0 {
		rows = 1
	}
	word(&cb.Length).Set(uint32(rows-1)<<16 | uint32(xlen))
	word(&cb.SourceInfo).SetField(xi4StrideShift, 16,
		uint32(uint16(srcStride)))
	word(&cb.DestInfo).SetField(xi4StrideShift, 16,
		uint32(uint16(dstStride)))
	word(&cb.TI).SetBits(ti4TDMode)
}

func (cb *ControlBlock4) SetBurstLength(n uint8) {
	if cb == nil {
		nilBlock("burst")
		return
	}
	x := clamp(n, 15)
	word(&cb.SourceInfo).SetField(xi4BurstShift, xi4BurstWidth, x)
	word(&cb.DestInfo).SetField(xi4BurstShift, xi4BurstWidth, x)
}

// SetWaits sets both the read and write wait cycles.
func (cb *ControlBlock4) SetWaits(n uint8) {
	if cb == nil {
		nilBlock("waits")
		return
	}
	word(&cb.TI).SetField(ti4SWaitsShift, ti4WaitsWidth, uint32(n))
	word(&cb.TI).SetField(ti4DWaitsShift, ti4WaitsWidth, uint32(n))
}

func (cb *ControlBlock4) SetInterruptEnable(on bool) {
	if cb == nil {
		nilBlock("interrupt")
		return
	}
	setBit(&cb.TI, ti4Inten, on)
}

func clamp(n, max uint8) uint32 {
	if n > max {
		n = max
	}
	return uint32(n)
}

func setBit(p *uint32, m uint32, on bool) {
	if on {
		word(p).SetBits(m)
	} else {
		word(p).ClearBits(m)
	}
}
