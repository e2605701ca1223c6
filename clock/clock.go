// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package clock programs the general purpose clocks of the clock manager.
//
// Every CTL and DIV write carries the manager password. A clock is
// disabled and must go idle before its source or divisor change.
package clock

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/platform"
)

type Source uint8

const (
	GND  Source = 0
	OSC  Source = 1
	PLLA Source = 4
	PLLC Source = 5
	PLLD Source = 6
	HDMI Source = 7
)

// OscillatorHz is the rate of the OSC source.
const OscillatorHz = 54000000

var sourceNames = map[Source]string{
	GND:  "gnd",
	OSC:  "osc",
	PLLA: "plla",
	PLLC: "pllc",
	PLLD: "plld",
	HDMI: "hdmi",
}

func (s Source) String() string {
	if name, found := sourceNames[s]; found {
		return name
	}
	return fmt.Sprint("src", uint8(s))
}

var (
	ErrBusy    = errors.New("clock busy")
	ErrDivisor = errors.New("divisor out of range")
)

const (
	password = 0x5a << 24

	ctlSrcMask   = 0xf
	ctlEnab      = 1 << 4
	ctlKill      = 1 << 5
	ctlBusy      = 1 << 7
	ctlMashShift = 9
	ctlMashMask  = 3
	ctlMask      = 0xffef

	divIShift = 12
	divMask   = 0xfff
	divScale  = 4096
)

// BusyTimeout bounds the wait for a disabled clock to stop.
var BusyTimeout = 10 * time.Millisecond

// Configure the clock controlled by the ctl and div registers.
func Configure(ctl, div *hw.Reg32, src Source, divisor float64, mash uint8) error {
	return configure(ctl, div, src, divisor, mash, BusyTimeout)
}

func configure(ctl, div *hw.Reg32, src Source, divisor float64, mash uint8, timeout time.Duration) error {
	if divisor < 1 || divisor >= divScale {
		return fmt.Errorf("%v: %w", divisor, ErrDivisor)
	}
	divi := uint32(divisor) & divMask
	divf := uint32((divisor-float64(divi))*divScale) & divMask

	ctl.Set(password | ctl.Get()&ctlMask&^ctlEnab)
	if err := waitIdle(ctl, timeout); err != nil {
		return err
	}
	ctl.Set(password | uint32(src)&ctlSrcMask |
		uint32(mash&ctlMashMask)<<ctlMashShift)
	div.Set(password | divi<<divIShift | divf)
	ctl.Set(password | ctl.Get()&ctlMask | ctlEnab)
	log.Printf("debug", "clock: %v / %d.%04d mash %d", src, divi,
		divf*10000/divScale, mash)
	return nil
}

func waitIdle(ctl *hw.Reg32, timeout time.Duration) error {
	b := &backoff.Backoff{
		Min:    time.Microsecond,
		Max:    time.Millisecond,
		Factor: 2,
		Jitter: true,
	}
	start := time.Now()
	for ctl.IsSet(ctlBusy) {
		if time.Since(start) >= timeout {
			return ErrBusy
		}
		time.Sleep(b.Duration())
	}
	return nil
}

// Control names the CTL and DIV registers of a clock.
type Control struct {
	Name     string
	CTL, DIV uint32
}

var (
	GP0 = Control{"gp0", 0x70, 0x74}
	GP1 = Control{"gp1", 0x78, 0x7c}
	GP2 = Control{"gp2", 0x80, 0x84}
	PCM = Control{"pcm", 0x98, 0x9c}
	PWM = Control{"pwm", 0xa0, 0xa4}

	Controls = []Control{GP0, GP1, GP2, PCM, PWM}
)

// Manager of the clocks in the clock window.
type Manager struct {
	w *hw.Window
	// Timeout of the busy wait; BusyTimeout if zero.
	Timeout time.Duration
}

func New(p *platform.Platform) (*Manager, error) {
	if err := platform.Check(p); err != nil {
		return nil, err
	}
	return &Manager{w: p.Clock}, nil
}

func (m *Manager) regs(c Control) (ctl, div *hw.Reg32) {
	return m.w.Reg(c.CTL), m.w.Reg(c.DIV)
}

// Configure the clock c.
func (m *Manager) Configure(c Control, src Source, divisor float64, mash uint8) error {
	timeout := m.Timeout
	if timeout == 0 {
		timeout = BusyTimeout
	}
	ctl, div := m.regs(c)
	if err := configure(ctl, div, src, divisor, mash, timeout); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

// Stop disables c and waits for it to go idle.
func (m *Manager) Stop(c Control) error {
	ctl, _ := m.regs(c)
	ctl.Set(password | ctl.Get()&ctlMask&^ctlEnab)
	if err := waitIdle(ctl, BusyTimeout); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

// Status of a clock.
type Status struct {
	Source  Source
	Enabled bool
	Busy    bool
	Mash    uint8
	Divisor float64
}

func (s Status) String() string {
	return fmt.Sprintf("%v/%g mash %d enabled %t busy %t", s.Source,
		s.Divisor, s.Mash, s.Enabled, s.Busy)
}

func (m *Manager) Status(c Control) Status {
	ctl, div := m.regs(c)
	x, d := ctl.Get(), div.Get()
	return Status{
		Source:  Source(x & ctlSrcMask),
		Enabled: x&ctlEnab != 0,
		Busy:    x&ctlBusy != 0,
		Mash:    uint8(x>>ctlMashShift) & ctlMashMask,
		Divisor: float64(d>>divIShift&divMask) +
			float64(d&divMask)/divScale,
	}
}

// Rate of c in Hz; 0 unless c runs from the oscillator.
func (m *Manager) Rate(c Control) float64 {
	s := m.Status(c)
	if s.Source != OSC || s.Divisor == 0 {
		return 0
	}
	return OscillatorHz / s.Divisor
}
