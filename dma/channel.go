// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/hw"
)

var (
	ErrInvalidChannel = errors.New("invalid channel")
	ErrChannelFamily  = fmt.Errorf("%w: wrong family", ErrInvalidChannel)
	ErrTimeout        = errors.New("timeout")
	ErrTransfer       = errors.New("transfer error")
)

const (
	resetDelay   = time.Millisecond
	pollInterval = 10 * time.Microsecond
)

// Timeouts of a busy channel tend to repeat.
var timeouts = log.NewLimited(100)

// Channel of the DMA controller, F selects its register layout. Handles
// come from a Registry; there is at most one per channel.
type Channel[F Family] struct {
	id int
	r  *Registry
	w  *hw.Window
	l  *layout
	cs *hw.Reg32
}

func newChannel[F Family](r *Registry, id int, w *hw.Window) *Channel[F] {
	var f F
	c := &Channel[F]{
		id: id,
		r:  r,
		w:  w,
		l:  f.layout(),
		cs: w.Reg(regCS),
	}
	c.Reset()
	return c
}

func (c *Channel[F]) ID() int { return c.id }

// Name of the channel family, e.g. "DMA4".
func (c *Channel[F]) Name() string { return c.l.name }

func (c *Channel[F]) String() string { return fmt.Sprint(c.l.name, " channel ", c.id) }

// Enable sets the channel's bit in the global enable register.
func (c *Channel[F]) Enable() { c.r.enable(c.id, true) }

func (c *Channel[F]) Disable() { c.r.enable(c.id, false) }

// Reset the channel and wait for it to settle.
func (c *Channel[F]) Reset() {
	c.w.Reg(c.l.resetReg).Set(c.l.reset)
	time.Sleep(resetDelay)
}

// SetControlBlockAddress loads the physical address of the first block.
func (c *Channel[F]) SetControlBlockAddress(phys uint32) {
	c.w.Reg(c.l.cb).Set(phys >> c.l.cbShift)
}

// ControlBlockAddress returns the physical address of the current block.
func (c *Channel[F]) ControlBlockAddress() uint32 {
	return c.w.Reg(c.l.cb).Get() << c.l.cbShift
}

// Start the channel. Writing back a set END or INT clears it.
func (c *Channel[F]) Start() { c.cs.SetBits(csActive) }

// Abort the current block; it doesn't wait for the channel to stop.
func (c *Channel[F]) Abort() { c.cs.SetBits(csAbort) }

func (c *Channel[F]) IsActive() bool { return c.cs.IsSet(csActive) }

// IsComplete is true once the chain has ended and the channel is idle. An
// END left over from the previous transfer doesn't count while ACTIVE.
func (c *Channel[F]) IsComplete() bool {
	return c.cs.Get()&(csEnd|csActive) == csEnd
}

func (c *Channel[F]) HasError() bool { return c.cs.IsSet(c.l.err) }

// ClearInterrupt writes 1 to clear CS.INT and CS.END.
func (c *Channel[F]) ClearInterrupt() { c.cs.Set(c.cs.Get() | csEnd | csInt) }

// SetPriority of AXI transactions, at most MaxPriority.
func (c *Channel[F]) SetPriority(p uint8) {
	c.cs.SetField(csPriorityShift, csPriorityWidth, clamp(p, MaxPriority))
}

// SetPanicPriority is used while the AXI panic signal is raised.
func (c *Channel[F]) SetPanicPriority(p uint8) {
	c.cs.SetField(csPanicPriorityShift, csPriorityWidth,
		clamp(p, MaxPriority))
}

func (c *Channel[F]) Priority() (priority, panicPriority uint8) {
	return uint8(c.cs.Field(csPriorityShift, csPriorityWidth)),
		uint8(c.cs.Field(csPanicPriorityShift, csPriorityWidth))
}

// WaitForCompletion polls until the channel ends, fails or the timeout
// elapses; 0 waits forever.
func (c *Channel[F]) WaitForCompletion(timeout time.Duration) error {
	return c.wait(context.Background(), timeout)
}

// WaitForCompletionMs is WaitForCompletion with a millisecond timeout
// that reports success.
func (c *Channel[F]) WaitForCompletionMs(ms uint32) bool {
	return c.wait(context.Background(),
		time.Duration(ms)*time.Millisecond) == nil
}

// WaitForCompletionContext polls until the channel ends, fails or ctx is
// done.
func (c *Channel[F]) WaitForCompletionContext(ctx context.Context) error {
	return c.wait(ctx, 0)
}

func (c *Channel[F]) wait(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	for {
		if c.HasError() {
			err := fmt.Errorf("%v: debug %#x: %w", c,
				c.w.Reg(c.l.debug).Get(), ErrTransfer)
			log.Print("err", err)
			return err
		}
		if c.IsComplete() {
			return nil
		}
		if timeout > 0 && time.Since(start) >= timeout {
			timeouts.Printf("warn", "%v: %v after %v", c, ErrTimeout,
				timeout)
			return fmt.Errorf("%v: %w", c, ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		time.Sleep(pollInterval)
	}
}

// AbortAndWait aborts then waits up to timeout for the channel to go
// idle.
func (c *Channel[F]) AbortAndWait(timeout time.Duration) error {
	c.Abort()
	start := time.Now()
	for c.IsActive() {
		if time.Since(start) >= timeout {
			return fmt.Errorf("%v: abort: %w", c, ErrTimeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// Status is a snapshot of the channel registers.
type Status struct {
	CS, Debug, TI    uint32
	Source, Dest     uint64
	Length           uint32
	ControlBlock     uint32
	NextControlBlock uint32
}

func (s Status) String() string {
	return fmt.Sprintf("cs %#08x debug %#08x ti %#08x %#x -> %#x len %#x cb %#08x next %#08x",
		s.CS, s.Debug, s.TI, s.Source, s.Dest, s.Length,
		s.ControlBlock, s.NextControlBlock)
}

// DebugStatus reads the channel registers.
func (c *Channel[F]) DebugStatus() Status {
	s := Status{
		CS:               c.cs.Get(),
		Debug:            c.w.Reg(c.l.debug).Get(),
		TI:               c.w.Reg(c.l.ti).Get(),
		Source:           uint64(c.w.Reg(c.l.src).Get()),
		Dest:             uint64(c.w.Reg(c.l.dst).Get()),
		Length:           c.w.Reg(c.l.length).Get(),
		ControlBlock:     c.ControlBlockAddress(),
		NextControlBlock: c.w.Reg(c.l.next).Get() << c.l.nextShift,
	}
	if c.l == &dma4Layout {
		s.Source |= uint64(c.w.Reg(reg4SrcI).Get()&xi4AddrMask) << 32
		s.Dest |= uint64(c.w.Reg(reg4DestI).Get()&xi4AddrMask) << 32
	}
	return s
}
