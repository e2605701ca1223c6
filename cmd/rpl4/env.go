// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/yutatech/RPL4/dma"
	"github.com/yutatech/RPL4/dmamem"
	"github.com/yutatech/RPL4/internal/sim"
	"github.com/yutatech/RPL4/platform"
	"github.com/yutatech/RPL4/pwm"
)

var useSim bool

// env is the mapped platform, real or simulated, of one command.
type env struct {
	p *platform.Platform
	r *dma.Registry
	m *sim.Machine
	a *dmamem.Allocator
}

func open() (*env, error) {
	if useSim {
		m, err := sim.Open()
		if err != nil {
			return nil, err
		}
		return &env{p: m.Platform, r: dma.NewRegistry(m.Platform), m: m}, nil
	}
	p, err := platform.Init(platform.Config{})
	if err != nil {
		return nil, err
	}
	return &env{p: p, r: dma.NewRegistry(p)}, nil
}

func (e *env) allocator() (*dmamem.Allocator, error) {
	if e.a != nil {
		return e.a, nil
	}
	if e.m != nil {
		e.a = dmamem.New(e.m.Firmware, e.m.Firmware, dmamem.Config{})
		return e.a, nil
	}
	a, err := dmamem.Open()
	if err != nil {
		return nil, err
	}
	e.a = a
	return a, nil
}

// sync waits for the simulated engine to see prior register writes.
func (e *env) sync() {
	if e.m != nil {
		e.m.Engine.Sync()
	}
}

func (e *env) Close() error {
	var err error
	if e.a != nil {
		err = e.a.Close()
	}
	pwm.Release(e.p)
	var xerr error
	if e.m != nil {
		xerr = e.m.Close()
	} else {
		xerr = e.p.Close()
	}
	if err == nil {
		err = xerr
	}
	return err
}

// number parses a decimal, 0x hex, or 0 octal parameter; empty is def.
func number(name, s string, def, max uint64) (uint64, error) {
	if len(s) == 0 {
		return def, nil
	}
	x, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if x > max {
		return 0, fmt.Errorf("%s: %d: exceeds %d", name, x, max)
	}
	return x, nil
}

func bytesOf(args []string) ([]byte, error) {
	b := make([]byte, 0, len(args))
	for _, s := range args {
		x, err := number("byte", s, 0, 0xff)
		if err != nil {
			return nil, err
		}
		b = append(b, byte(x))
	}
	return b, nil
}
