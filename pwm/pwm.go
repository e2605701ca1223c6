// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pwm drives the two PWM controllers. Each has two channels, a
// shared FIFO and a DMA request for feeding it (see dma.DreqPWM0).
package pwm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/clock"
	"github.com/yutatech/RPL4/gpio"
	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/platform"
)

type Port int

const (
	PWM0 Port = iota
	PWM1
	NumPorts
)

func (port Port) String() string { return fmt.Sprint("pwm", int(port)) }

type Channel int

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
)

type Mode uint32

const (
	PWMMode        Mode = 0
	SerializerMode Mode = 1
)

type Polarity uint32

const (
	Normal   Polarity = 0
	Inverted Polarity = 1
)

// DefaultClockHz is the controller clock set on first use.
const DefaultClockHz = 25000000.0

var (
	ErrInvalidPort    = errors.New("invalid port")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrNoFunction     = errors.New("pin has no PWM function")
)

const (
	portStride = 0x800
	portSize   = 0x28

	regCTL  = 0x00
	regSTA  = 0x04
	regDMAC = 0x08
	regRNG1 = 0x10
	regDAT1 = 0x14
	regFIF1 = 0x18
	regRNG2 = 0x20
	regDAT2 = 0x24

	// CTL bits of channel 1; channel 2 is 8 bits up
	ctlPwen = 1 << 0
	ctlMode = 1 << 1
	ctlRptl = 1 << 2
	ctlSbit = 1 << 3
	ctlPola = 1 << 4
	ctlUsef = 1 << 5
	ctlClrf = 1 << 6
	ctlMsen = 1 << 7

	staFull  = 1 << 0
	staEmpty = 1 << 1

	dmacDreqShift  = 0
	dmacPanicShift = 8
	dmacEnab       = 1 << 31

	maxThreshold = 15
)

// FifoTimeout bounds the wait for room in a full FIFO.
var FifoTimeout = 100 * time.Millisecond

// PWM controller.
type PWM struct {
	port Port
	w    *hw.Window
	clk  *clock.Manager
	hz   float64
	// CTL read-modify-write
	mu sync.Mutex
}

var instances struct {
	sync.Mutex
	m map[*platform.Platform]*[NumPorts]*PWM
}

// Get the controller of a port, initializing its clock on first use.
func Get(p *platform.Platform, port Port) (*PWM, error) {
	if port < 0 || port >= NumPorts {
		return nil, fmt.Errorf("%v: %w", port, ErrInvalidPort)
	}
	if err := platform.Check(p); err != nil {
		return nil, err
	}
	instances.Lock()
	defer instances.Unlock()
	if instances.m == nil {
		instances.m = make(map[*platform.Platform]*[NumPorts]*PWM)
	}
	l := instances.m[p]
	if l == nil {
		l = new([NumPorts]*PWM)
		instances.m[p] = l
	}
	if l[port] != nil {
		return l[port], nil
	}
	w, err := p.PWM.Sub(port.String(), uint32(port)*portStride, portSize)
	if err != nil {
		return nil, err
	}
	clk, err := clock.New(p)
	if err != nil {
		return nil, err
	}
	pwm := &PWM{port: port, w: w, clk: clk}
	if err = pwm.InitializeClock(DefaultClockHz); err != nil {
		return nil, err
	}
	l[port] = pwm
	return pwm, nil
}

// Release forgets the controllers of a closed platform.
func Release(p *platform.Platform) {
	instances.Lock()
	defer instances.Unlock()
	delete(instances.m, p)
}

func (pwm *PWM) Port() Port { return pwm.port }

func (pwm *PWM) String() string { return pwm.port.String() }

// InitializeClock runs the PWM clock from the oscillator at hz. Both
// ports share it.
func (pwm *PWM) InitializeClock(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("%v: %v Hz: %w", pwm, hz, clock.ErrDivisor)
	}
	err := pwm.clk.Configure(clock.PWM, clock.OSC, clock.OscillatorHz/hz, 1)
	if err != nil {
		return fmt.Errorf("%v: %w", pwm, err)
	}
	pwm.hz = hz
	return nil
}

// ClockHz is the rate set by InitializeClock.
func (pwm *PWM) ClockHz() float64 { return pwm.hz }

func shift(ch Channel) (uint, error) {
	switch ch {
	case Channel1:
		return 0, nil
	case Channel2:
		return 8, nil
	}
	return 0, fmt.Errorf("channel %d: %w", int(ch), ErrInvalidChannel)
}

func (pwm *PWM) ctl(ch Channel, m uint32, on bool) error {
	s, err := shift(ch)
	if err != nil {
		return err
	}
	pwm.mu.Lock()
	defer pwm.mu.Unlock()
	r := pwm.w.Reg(regCTL)
	if on {
		r.SetBits(m << s)
	} else {
		r.ClearBits(m << s)
	}
	return nil
}

func (pwm *PWM) Enable(ch Channel) error  { return pwm.ctl(ch, ctlPwen, true) }
func (pwm *PWM) Disable(ch Channel) error { return pwm.ctl(ch, ctlPwen, false) }

func (pwm *PWM) SetMode(ch Channel, mode Mode) error {
	return pwm.ctl(ch, ctlMode, mode == SerializerMode)
}

func (pwm *PWM) SetPolarity(ch Channel, pol Polarity) error {
	return pwm.ctl(ch, ctlPola, pol == Inverted)
}

// SetMSMode selects mark-space output instead of the PWM algorithm.
func (pwm *PWM) SetMSMode(ch Channel, on bool) error {
	return pwm.ctl(ch, ctlMsen, on)
}

// SetRepeatLast repeats the last FIFO word while the FIFO is empty.
func (pwm *PWM) SetRepeatLast(ch Channel, on bool) error {
	return pwm.ctl(ch, ctlRptl, on)
}

func (pwm *PWM) EnableFifo(ch Channel) error  { return pwm.ctl(ch, ctlUsef, true) }
func (pwm *PWM) DisableFifo(ch Channel) error { return pwm.ctl(ch, ctlUsef, false) }

func (pwm *PWM) regs(ch Channel) (rng, dat *hw.Reg32, err error) {
	switch ch {
	case Channel1:
		return pwm.w.Reg(regRNG1), pwm.w.Reg(regDAT1), nil
	case Channel2:
		return pwm.w.Reg(regRNG2), pwm.w.Reg(regDAT2), nil
	}
	return nil, nil, fmt.Errorf("channel %d: %w", int(ch), ErrInvalidChannel)
}

func (pwm *PWM) SetRange(ch Channel, x uint32) error {
	rng, _, err := pwm.regs(ch)
	if err == nil {
		rng.Set(x)
	}
	return err
}

func (pwm *PWM) SetData(ch Channel, x uint32) error {
	_, dat, err := pwm.regs(ch)
	if err == nil {
		dat.Set(x)
	}
	return err
}

func (pwm *PWM) Range(ch Channel) (uint32, error) {
	rng, _, err := pwm.regs(ch)
	if err != nil {
		return 0, err
	}
	return rng.Get(), nil
}

func (pwm *PWM) Data(ch Channel) (uint32, error) {
	_, dat, err := pwm.regs(ch)
	if err != nil {
		return 0, err
	}
	return dat.Get(), nil
}

// SetFrequency sets the range for a period of 1/hz.
func (pwm *PWM) SetFrequency(ch Channel, hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("%v: %v Hz: invalid frequency", pwm, hz)
	}
	return pwm.SetRange(ch, uint32(pwm.hz/hz))
}

// SetDutyCycle sets data to a fraction of the range; duty is clamped to
// [0, 1].
func (pwm *PWM) SetDutyCycle(ch Channel, duty float64) error {
	if duty < 0 {
		duty = 0
	} else if duty > 1 {
		duty = 1
	}
	rng, err := pwm.Range(ch)
	if err != nil {
		return err
	}
	return pwm.SetData(ch, uint32(float64(rng)*duty))
}

func (pwm *PWM) ClearFifo() {
	pwm.mu.Lock()
	defer pwm.mu.Unlock()
	pwm.w.Reg(regCTL).SetBits(ctlClrf)
}

func (pwm *PWM) IsFifoFull() bool  { return pwm.w.Reg(regSTA).IsSet(staFull) }
func (pwm *PWM) IsFifoEmpty() bool { return pwm.w.Reg(regSTA).IsSet(staEmpty) }

// WriteFifo waits, with backoff, for room in the FIFO then writes x.
func (pwm *PWM) WriteFifo(ctx context.Context, x uint32) error {
	b := &backoff.Backoff{
		Min:    time.Microsecond,
		Max:    time.Millisecond,
		Factor: 2,
		Jitter: true,
	}
	start := time.Now()
	for pwm.IsFifoFull() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(start) >= FifoTimeout {
			return fmt.Errorf("%v: fifo full", pwm)
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	pwm.w.Reg(regFIF1).Set(x)
	return nil
}

// EnableDma raises the DMA request while the FIFO has fewer than dreq
// words and the panic signal below panicLevel words; both are clamped to
// 15.
func (pwm *PWM) EnableDma(dreq, panicLevel uint8) {
	if dreq > maxThreshold {
		dreq = maxThreshold
	}
	if panicLevel > maxThreshold {
		panicLevel = maxThreshold
	}
	pwm.w.Reg(regDMAC).Set(dmacEnab | uint32(panicLevel)<<dmacPanicShift |
		uint32(dreq)<<dmacDreqShift)
}

func (pwm *PWM) DisableDma() { pwm.w.Reg(regDMAC).ClearBits(dmacEnab) }

// FifoBusAddress is the FIF1 address for DMA control blocks.
func (pwm *PWM) FifoBusAddress() uint32 { return pwm.w.BusAddress(regFIF1) }

// ConfigureGpioPin selects the PWM function of a pin.
func ConfigureGpioPin(bank *gpio.Bank, pin int) error {
	var f gpio.Function
	switch pin {
	case 12, 13, 40, 41, 45:
		f = gpio.Alt0
	case 18, 19:
		f = gpio.Alt5
	default:
		log.Printf("err", "gpio%d: %v", pin, ErrNoFunction)
		return fmt.Errorf("gpio%d: %w", pin, ErrNoFunction)
	}
	return bank.SetFunction(pin, f)
}
