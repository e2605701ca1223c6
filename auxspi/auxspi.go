// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package auxspi drives the auxiliary SPI masters, SPI1 and SPI2.
//
// The shift registers are 32 bits wide. Bytes written to the FIFO and
// read back are aligned by a shift that depends on the bit order, clock
// polarity, sampling edge and bit length; see DataShift.
package auxspi

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
	SPI1 Port = iota
	SPI2
	NumPorts
)

func (port Port) String() string { return fmt.Sprint("spi", int(port)+1) }

// ChipSelect line asserted during a transfer.
type ChipSelect uint32

const (
	CS0 ChipSelect = iota
	CS1
	CS2
)

type BitOrder uint32

const (
	LSBFirst BitOrder = iota
	MSBFirst
)

// Edge of SCLK that shifts data out or samples data in.
type Edge uint32

const (
	Falling Edge = iota
	Rising
)

// Polarity of SCLK in the idle state.
type Polarity uint32

const (
	Low Polarity = iota
	High
)

var (
	ErrInvalidPort = errors.New("invalid port")
	ErrRange       = errors.New("out of range")
	ErrTimeout     = errors.New("timeout")
	ErrShortRx     = errors.New("receive buffer shorter than transmit")
)

const (
	MaxClockDivider = 4095
	MaxCsHighCycles = 7
	MaxBitLength    = 32

	auxEnables = 0x04
	portBase   = 0x80
	portStride = 0x40

	regCNTL0   = 0x00
	regCNTL1   = 0x04
	regSTAT    = 0x08
	regPEEK    = 0x0c
	regIO      = 0x20
	regTxHold  = 0x30
	fifoDepth  = 4
	portEnable = 1 << 1

	cntl0LenShift   = 0
	cntl0LenWidth   = 6
	cntl0OutMSB     = 1 << 6
	cntl0InvertClk  = 1 << 7
	cntl0OutRising  = 1 << 8
	cntl0Clear      = 1 << 9
	cntl0InRising   = 1 << 10
	cntl0Enable     = 1 << 11
	cntl0CSShift    = 17
	cntl0CSWidth    = 3
	cntl0SpeedShift = 20
	cntl0SpeedWidth = 12

	cntl1InMSB       = 1 << 1
	cntl1CsHighShift = 8
	cntl1CsHighWidth = 3

	statBusy    = 1 << 6
	statRxEmpty = 1 << 7
	statTxFull  = 1 << 10
)

// Timeout bounds a transfer that makes no progress.
var Timeout = 100 * time.Millisecond

// patterns driven on the three CS lines; the selected line is low.
var csPatterns = [...]uint32{CS0: 0b110, CS1: 0b101, CS2: 0b011}

// AUX ENABLES is shared by both ports and the mini UART.
var enables sync.Mutex

// SPI is an auxiliary SPI master.
type SPI struct {
	port Port
	aux  *hw.Reg32
	w    *hw.Window
	// CNTL0 and CNTL1 read-modify-write
	mu   sync.Mutex
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
	w, err := p.Aux.Sub(port.String(), portBase+uint32(port)*portStride,
		portStride)
	if err != nil {
		return nil, err
	}
	return &SPI{port: port, aux: p.Aux.Reg(auxEnables), w: w}, nil
}

func (spi *SPI) Port() Port     { return spi.port }
func (spi *SPI) String() string { return spi.port.String() }

func (spi *SPI) set(off uint32, m uint32, on bool) {
	spi.mu.Lock()
	defer spi.mu.Unlock()
	r := spi.w.Reg(off)
	if on {
		r.SetBits(m)
	} else {
		r.ClearBits(m)
	}
}

func (spi *SPI) field(off uint32, shift, width uint, x uint32) {
	spi.mu.Lock()
	defer spi.mu.Unlock()
	spi.w.Reg(off).SetField(shift, width, x)
}

// Enable the port in AUX ENABLES and its CNTL0.
func (spi *SPI) Enable() {
	enables.Lock()
	spi.aux.SetBits(portEnable << uint(spi.port))
	enables.Unlock()
	spi.set(regCNTL0, cntl0Enable, true)
}

func (spi *SPI) Disable() {
	spi.set(regCNTL0, cntl0Enable, false)
	enables.Lock()
	spi.aux.ClearBits(portEnable << uint(spi.port))
	enables.Unlock()
}

func (spi *SPI) IsEnabled() bool {
	return spi.aux.IsSet(portEnable<<uint(spi.port)) &&
		spi.w.Reg(regCNTL0).IsSet(cntl0Enable)
}

func (spi *SPI) SetChipSelect(chip ChipSelect) error {
	if int(chip) >= len(csPatterns) {
		return spi.rangeError("chip select", int(chip))
	}
	spi.field(regCNTL0, cntl0CSShift, cntl0CSWidth, csPatterns[chip])
	return nil
}

// SetMisoClockPhase sets the edge that samples MISO.
func (spi *SPI) SetMisoClockPhase(e Edge) { spi.set(regCNTL0, cntl0InRising, e == Rising) }

// SetMosiClockPhase sets the edge that shifts MOSI out.
func (spi *SPI) SetMosiClockPhase(e Edge) { spi.set(regCNTL0, cntl0OutRising, e == Rising) }

func (spi *SPI) SetClockPolarity(pol Polarity) {
	spi.set(regCNTL0, cntl0InvertClk, pol == High)
}

func (spi *SPI) SetMosiBitOrder(o BitOrder) { spi.set(regCNTL0, cntl0OutMSB, o == MSBFirst) }
func (spi *SPI) SetMisoBitOrder(o BitOrder) { spi.set(regCNTL1, cntl1InMSB, o == MSBFirst) }

func (spi *SPI) MisoClockPhase() Edge {
	return edge(spi.w.Reg(regCNTL0).IsSet(cntl0InRising))
}

func (spi *SPI) MosiClockPhase() Edge {
	return edge(spi.w.Reg(regCNTL0).IsSet(cntl0OutRising))
}

func (spi *SPI) ClockPolarity() Polarity {
	if spi.w.Reg(regCNTL0).IsSet(cntl0InvertClk) {
		return High
	}
	return Low
}

func edge(rising bool) Edge {
	if rising {
		return Rising
	}
	return Falling
}

func (spi *SPI) rangeError(what string, x int) error {
	err := fmt.Errorf("%v: %s %d: %w", spi, what, x, ErrRange)
	log.Print("err", err)
	return err
}

// SetClockDivider sets SCLK to the system clock / (2 * (div + 1)).
func (spi *SPI) SetClockDivider(div uint16) error {
	if div > MaxClockDivider {
		return spi.rangeError("clock divider", int(div))
	}
	spi.field(regCNTL0, cntl0SpeedShift, cntl0SpeedWidth, uint32(div))
	return nil
}

// SetCsHighCycles sets the extra bit times CS stays high between
// transfers.
func (spi *SPI) SetCsHighCycles(n uint8) error {
	if n > MaxCsHighCycles {
		return spi.rangeError("cs high cycles", int(n))
	}
	spi.field(regCNTL1, cntl1CsHighShift, cntl1CsHighWidth, uint32(n))
	return nil
}

// SetBitLength sets the bits shifted per FIFO word.
func (spi *SPI) SetBitLength(n uint8) error {
	if n < 1 || n > MaxBitLength {
		return spi.rangeError("bit length", int(n))
	}
	spi.field(regCNTL0, cntl0LenShift, cntl0LenWidth, uint32(n))
	return nil
}

func (spi *SPI) BitLength() uint8 {
	return uint8(spi.w.Reg(regCNTL0).Field(cntl0LenShift, cntl0LenWidth))
}

// ClearFifos empties both FIFOs.
func (spi *SPI) ClearFifos() {
	spi.set(regCNTL0, cntl0Clear, true)
	spi.set(regCNTL0, cntl0Clear, false)
}

// Peek returns the next received word without taking it from the FIFO.
func (spi *SPI) Peek() uint32 { return spi.w.Reg(regPEEK).Get() }

func (spi *SPI) IsBusy() bool   { return spi.w.Reg(regSTAT).IsSet(statBusy) }
func (spi *SPI) CanWrite() bool { return !spi.w.Reg(regSTAT).IsSet(statTxFull) }
func (spi *SPI) CanRead() bool  { return !spi.w.Reg(regSTAT).IsSet(statRxEmpty) }

// DataShift returns the left shift of transmitted bytes and the right
// shift of received words for the current configuration.
func (spi *SPI) DataShift() (tx, rx uint) {
	c0 := spi.w.Reg(regCNTL0).Get()
	c1 := spi.w.Reg(regCNTL1).Get()
	n := int(c0 & hw.Mask(cntl0LenWidth))
	high := c0&cntl0InvertClk != 0
	// true when the data edge is the clock's first
	out := high == (c0&cntl0OutRising == 0)
	in := high == (c0&cntl0InRising == 0)

	var t, r int
	switch {
	case c0&cntl0OutMSB == 0 && out:
		t = 1
	case c0&cntl0OutMSB == 0:
		t = 0
	case out:
		t = 31 - n
	default:
		t = 32 - n
	}
	switch {
	case c1&cntl1InMSB != 0 && in:
		r = 0
	case c1&cntl1InMSB != 0:
		r = 1
	case in:
		r = 32 - n
	default:
		r = 31 - n
	}
	if t < 0 {
		t = 0
	}
	if r < 0 {
		r = 0
	}
	return uint(t), uint(r)
}

// Transfer shifts tx out while shifting rx in. Every byte but the last
// goes through TXHOLD so CS stays asserted. A nil rx discards the
// received bytes.
func (spi *SPI) Transfer(ctx context.Context, tx, rx []byte) error {
	if rx != nil && len(rx) < len(tx) {
		return fmt.Errorf("%v: %w", spi, ErrShortRx)
	}
	spi.xfer.Lock()
	defer spi.xfer.Unlock()
	io := spi.w.Reg(regIO)
	for i := 0; i < fifoDepth && spi.CanRead(); i++ {
		io.Get()
	}
	txShift, rxShift := spi.DataShift()
	b := &backoff.Backoff{
		Min:    time.Microsecond,
		Max:    100 * time.Microsecond,
		Factor: 2,
	}
	n := len(tx)
	last := time.Now()
	for ntx, nrx := 0, 0; nrx < n; {
		progress := false
		if ntx == nrx && ntx < n && spi.CanWrite() {
			x := uint32(tx[ntx]) << txShift
			if ntx == n-1 {
				io.Set(x)
			} else {
				spi.w.Reg(regTxHold).Set(x)
			}
			ntx++
			progress = true
		}
		if nrx < ntx && spi.CanRead() {
			y := byte(io.Get() >> rxShift)
			if rx != nil {
				rx[nrx] = y
			}
			nrx++
			progress = true
		}
		if progress {
			last = time.Now()
			b.Reset()
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(last) >= Timeout {
			log.Printf("warn", "%v: stalled after %d of %d bytes", spi,
				nrx, n)
			return fmt.Errorf("%v: %w", spi, ErrTimeout)
		}
		time.Sleep(b.Duration())
	}
	log.Printf("debug", "%v: transferred %d bytes", spi, n)
	return nil
}
