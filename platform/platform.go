// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package platform maps the BCM2711 peripheral register windows.
//
// Init returns a *Platform holding a typed window per peripheral block.
// Every peripheral driver is constructed from that result so a driver can't
// exist before its registers are mapped.
package platform

import (
	"errors"
	"fmt"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/internal/memmap"
)

var (
	ErrNotInitialized = errors.New("platform isn't initialized")
	ErrNotAvailable   = errors.New("not a BCM2711")
)

// Region is a register block at Offset from the peripheral base.
type Region struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Regions mapped by Init.
var Regions = []Region{
	{"dma", 0x007000, 0x1000},
	{"clock", 0x101000, 0x1000},
	{"gpio", 0x200000, 0x100},
	{"spi", 0x204000, 0x1000},
	{"pwm", 0x20c000, 0x1000},
	{"aux", 0x215000, 0x100},
}

// Windows of each mapped region.
type Windows struct {
	DMA   *hw.Window
	Clock *hw.Window
	GPIO  *hw.Window
	SPI   *hw.Window
	PWM   *hw.Window
	Aux   *hw.Window
}

func (w *Windows) set(name string, x *hw.Window) {
	switch name {
	case "dma":
		w.DMA = x
	case "clock":
		w.Clock = x
	case "gpio":
		w.GPIO = x
	case "spi":
		w.SPI = x
	case "pwm":
		w.PWM = x
	case "aux":
		w.Aux = x
	}
}

type Config struct {
	// Mapper of physical memory; nil opens /dev/mem.
	Mapper Mapper
	// Base is the ARM physical address of the peripheral block; zero
	// detects it from the device tree.
	Base int64

	DeviceTree string
	ProcDT     string
	CPUInfo    string
}

func (cfg *Config) defaults() {
	if len(cfg.DeviceTree) == 0 {
		cfg.DeviceTree = DeviceTree
	}
	if len(cfg.ProcDT) == 0 {
		cfg.ProcDT = ProcDT
	}
	if len(cfg.CPUInfo) == 0 {
		cfg.CPUInfo = CPUInfo
	}
}

type Platform struct {
	Windows
	// Map of bus addresses to windows.
	Map   memmap.AddressMap
	Board *Board
	Base  int64

	mu     sync.Mutex
	mapper Mapper
	owned  bool
	closed bool
	maps   [][]byte
}

// Init maps every region of the peripheral block.
func Init(cfg Config) (*Platform, error) {
	cfg.defaults()
	p := &Platform{Base: cfg.Base}
	if p.Base == 0 {
		board, err := Detect(cfg)
		if err != nil {
			return nil, err
		}
		p.Board = board
		p.Base = board.Base
	}
	p.mapper = cfg.Mapper
	if p.mapper == nil {
		m, err := OpenDevMem()
		if err != nil {
			return nil, err
		}
		p.mapper = m
		p.owned = true
	}
	for _, r := range Regions {
		b, err := p.mapper.Map(p.Base+int64(r.Offset), int(r.Size))
		if err != nil {
			p.Close()
			return nil, pkgerrors.Wrapf(err, "map %s", r.Name)
		}
		p.maps = append(p.maps, b)
		w := hw.NewWindow(r.Name, BusBase+r.Offset, b)
		if err = p.Map.Add(r.Name, w); err != nil {
			p.Close()
			return nil, err
		}
		p.Windows.set(r.Name, w)
	}
	log.Printf("debug", "peripherals@%#x mapped %d windows", p.Base,
		len(p.Map))
	return p, nil
}

// Check returns ErrNotInitialized unless p is mapped.
func Check(p *Platform) error {
	if p == nil {
		return ErrNotInitialized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrNotInitialized
	}
	return nil
}

// Window returns the named sub-window of the named region.
func (p *Platform) Window(region, name string, off, size uint32) (*hw.Window, error) {
	if err := Check(p); err != nil {
		return nil, err
	}
	e := p.Map.Entry(region)
	if e == nil {
		return nil, fmt.Errorf("%s: no such region", region)
	}
	return e.Window.Sub(name, off, size)
}

// Close unmaps all windows. Drivers using them must be done.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	for _, b := range p.maps {
		if xerr := p.mapper.Unmap(b); xerr != nil && err == nil {
			err = xerr
		}
	}
	p.maps = nil
	if p.owned {
		if xerr := p.mapper.Close(); xerr != nil && err == nil {
			err = xerr
		}
	}
	return err
}
