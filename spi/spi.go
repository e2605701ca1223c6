// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package spi drives the SPI masters SPI0 and SPI3 through SPI6 with
// polled, byte at a time transfers.
package spi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/platform"
)

type Port int

const (
	SPI0 Port = iota
	SPI3
	SPI4
	SPI5
	SPI6
	NumPorts
)

var portNames = [NumPorts]string{"spi0", "spi3", "spi4", "spi5", "spi6"}
var portOffsets = [NumPorts]uint32{0x000, 0x600, 0x800, 0xa00, 0xc00}

func (port Port) String() string {
	if port >= 0 && port < NumPorts {
		return portNames[port]
	}
	return fmt.Sprint("port", int(port))
}

// ChipSelect line asserted during a transfer.
type ChipSelect uint32

const (
	CS0 ChipSelect = iota
	CS1
	CS2
)

// Phase of SCLK: transitions in the middle or at the beginning of a bit.
type Phase uint32

const (
	Middle Phase = iota
	Beginning
)

// Polarity of SCLK in the idle state or of a chip select when active.
type Polarity uint32

const (
	Low Polarity = iota
	High
)

var (
	ErrInvalidPort  = errors.New("invalid port")
	ErrInvalidChip  = errors.New("invalid chip select")
	ErrTimeout      = errors.New("timeout")
	ErrShortReceive = errors.New("receive buffer shorter than transmit")
)

const (
	portSize = 0x18

	regCS   = 0x00
	regFIFO = 0x04
	regCLK  = 0x08

	csChipShift  = 0
	csChipMask   = 3
	csCpha       = 1 << 2
	csCpol       = 1 << 3
	csClearTx    = 1 << 4
	csClearRx    = 1 << 5
	csTA         = 1 << 7
	csDmaen      = 1 << 8
	csRen        = 1 << 12
	csDone       = 1 << 16
	csRxd        = 1 << 17
	csTxd        = 1 << 18
	csPolShift   = 21
	csClearBoth  = csClearTx | csClearRx
	maxChipValue = 2

	clkMask = 0xffff
)

// Timeout bounds each wait on a FIFO or the done flag.
var Timeout = 100 * time.Millisecond

var timeouts = log.NewLimited(100)

// SPI master.
type SPI struct {
	port Port
	w    *hw.Window
	// CS read-modify-write
	mu sync.Mutex
	// one transfer at a time
	xfer sync.Mutex
}

// New binds the registers of a port.
func New(p *platform.Platform, port Port) (*SPI, error) {
	if port < 0 || port >= NumPorts {
		return nil, fmt.Errorf("%v: %w", port, ErrInvalidPort)
	}
	if err := platform.Check(p); err != nil {
		return nil, err
	}
	w, err := p.SPI.Sub(port.String(), portOffsets[port], portSize)
	if err != nil {
		return nil, err
	}
	return &SPI{port: port, w: w}, nil
}

func (spi *SPI) Port() Port     { return spi.port }
func (spi *SPI) String() string { return spi.port.String() }

func (spi *SPI) cs(m uint32, on bool) {
	spi.mu.Lock()
	defer spi.mu.Unlock()
	r := spi.w.Reg(regCS)
	if on {
		r.SetBits(m)
	} else {
		r.ClearBits(m)
	}
}

// SetChipSelect selects the line asserted by the next transfer.
func (spi *SPI) SetChipSelect(chip ChipSelect) error {
	if chip > maxChipValue {
		return fmt.Errorf("%v: cs%d: %w", spi, chip, ErrInvalidChip)
	}
	spi.mu.Lock()
	defer spi.mu.Unlock()
	spi.w.Reg(regCS).SetField(csChipShift, 2, uint32(chip)&csChipMask)
	return nil
}

func (spi *SPI) ChipSelect() ChipSelect {
	return ChipSelect(spi.w.Reg(regCS).Field(csChipShift, 2))
}

func (spi *SPI) SetClockPhase(ph Phase) { spi.cs(csCpha, ph == Beginning) }

func (spi *SPI) ClockPhase() Phase {
	if spi.w.Reg(regCS).IsSet(csCpha) {
		return Beginning
	}
	return Middle
}

func (spi *SPI) SetClockPolarity(pol Polarity) { spi.cs(csCpol, pol == High) }

func (spi *SPI) ClockPolarity() Polarity {
	if spi.w.Reg(regCS).IsSet(csCpol) {
		return High
	}
	return Low
}

// SetChipSelectPolarity sets the active level of a chip select line.
func (spi *SPI) SetChipSelectPolarity(chip ChipSelect, pol Polarity) error {
	if chip > maxChipValue {
		return fmt.Errorf("%v: cs%d: %w", spi, chip, ErrInvalidChip)
	}
	spi.cs(1<<(csPolShift+uint(chip)), pol == High)
	return nil
}

// SetReadEnable turns MOSI around for bidirectional mode.
func (spi *SPI) SetReadEnable(on bool) { spi.cs(csRen, on) }

func (spi *SPI) EnableDma()  { spi.cs(csDmaen, true) }
func (spi *SPI) DisableDma() { spi.cs(csDmaen, false) }

// SetClockDivider sets SCLK to the core clock divided by div; 0 and 1
// select 65536.
func (spi *SPI) SetClockDivider(div uint16) {
	spi.w.Reg(regCLK).Set(uint32(div) & clkMask)
}

func (spi *SPI) ClockDivider() uint16 { return uint16(spi.w.Reg(regCLK).Get()) }

func (spi *SPI) ClearTxFifo()   { spi.cs(csClearTx, true) }
func (spi *SPI) ClearRxFifo()   { spi.cs(csClearRx, true) }
func (spi *SPI) ClearFifos()    { spi.cs(csClearBoth, true) }
func (spi *SPI) start()         { spi.cs(csTA, true) }
func (spi *SPI) end()           { spi.cs(csTA, false) }
func (spi *SPI) IsDone() bool   { return spi.w.Reg(regCS).IsSet(csDone) }
func (spi *SPI) CanWrite() bool { return spi.w.Reg(regCS).IsSet(csTxd) }
func (spi *SPI) CanRead() bool  { return spi.w.Reg(regCS).IsSet(csRxd) }

// FifoBusAddress is the FIFO address for DMA control blocks.
func (spi *SPI) FifoBusAddress() uint32 { return spi.w.BusAddress(regFIFO) }

func (spi *SPI) wait(ctx context.Context, what string, ready func() bool) error {
	b := &backoff.Backoff{
		Min:    time.Microsecond,
		Max:    100 * time.Microsecond,
		Factor: 2,
	}
	start := time.Now()
	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(start) >= Timeout {
			timeouts.Printf("warn", "%v: %s: timeout", spi, what)
			return fmt.Errorf("%v: %s: %w", spi, what, ErrTimeout)
		}
		time.Sleep(b.Duration())
	}
	return nil
}

// Transfer shifts out tx while shifting rx in, one byte at a time with
// the transfer active throughout. A nil rx discards the received bytes.
func (spi *SPI) Transfer(ctx context.Context, tx, rx []byte) error {
	if rx != nil && len(rx) < len(tx) {
		return fmt.Errorf("%v: %w", spi, ErrShortReceive)
	}
	spi.xfer.Lock()
	defer spi.xfer.Unlock()
	spi.start()
	defer spi.end()
	fifo := spi.w.Reg(regFIFO)
	for i, x := range tx {
		spi.ClearFifos()
		if err := spi.wait(ctx, "tx", spi.CanWrite); err != nil {
			return err
		}
		fifo.Set(uint32(x))
		if err := spi.wait(ctx, "done", spi.IsDone); err != nil {
			return err
		}
		if err := spi.wait(ctx, "rx", spi.CanRead); err != nil {
			return err
		}
		y := byte(fifo.Get())
		if rx != nil {
			rx[i] = y
		}
	}
	log.Printf("debug", "%v: transferred %d bytes", spi, len(tx))
	return nil
}
