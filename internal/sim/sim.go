// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package sim

import (
	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/platform"
)

// SPI CS status bits that a polled transfer waits on.
const spiReady = 1<<16 | 1<<17 | 1<<18

var spiPorts = []uint32{0x000, 0x600, 0x800, 0xa00, 0xc00}

// Machine is a simulated board: firmware, mapped windows and DMA engine.
type Machine struct {
	Firmware *Firmware
	Platform *platform.Platform
	Engine   *Engine
}

// Open a simulated board with every peripheral window mapped over
// anonymous memory.
func Open() (*Machine, error) {
	fw := NewFirmware()
	p, err := platform.Init(platform.Config{
		Mapper: fw,
		Base:   platform.DefaultBase,
	})
	if err != nil {
		fw.Shutdown()
		return nil, err
	}
	e, err := NewEngine(p, fw)
	if err != nil {
		p.Close()
		fw.Shutdown()
		return nil, err
	}
	for _, off := range spiPorts {
		e.Hold(p.SPI.Reg(off), spiReady)
	}
	return &Machine{fw, p, e}, nil
}

func (m *Machine) Close() error {
	m.Engine.Close()
	err := m.Platform.Close()
	if xerr := m.Firmware.Shutdown(); err == nil {
		err = xerr
	}
	return err
}

type hold struct {
	r    *hw.Reg32
	bits uint32
}

// Hold keeps the given status bits of a peripheral register set; the
// simulated peripheral is always ready.
func (e *Engine) Hold(r *hw.Reg32, bits uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.holds = append(e.holds, hold{r, bits})
	r.SetBits(bits)
}

func (e *Engine) assertHolds() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.holds {
		if !h.r.IsSet(h.bits) {
			h.r.SetBits(h.bits)
		}
	}
}
