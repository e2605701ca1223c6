// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dma drives the BCM2711 DMA controller: standard, lite and DMA4
// (40 bit) channels, their control blocks and the DREQ table.
//
// A transfer is a chain of control blocks in DMA memory (see dmamem).
// Load the physical address of the first with SetControlBlockAddress,
// Start the channel and poll with WaitForCompletion.
package dma

import (
	"fmt"
	"sync"

	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/platform"
)

// Registry hands out one channel handle per channel id.
type Registry struct {
	p *platform.Platform

	mu       sync.Mutex
	channels [NumChannels]interface{}
}

func NewRegistry(p *platform.Platform) *Registry {
	return &Registry{p: p}
}

// Get returns the channel id of family F, resetting it on first use.
func Get[F Family](r *Registry, id int) (*Channel[F], error) {
	var f F
	l := f.layout()
	if id < 0 || id >= NumChannels {
		return nil, fmt.Errorf("%s channel %d: %w", l.name, id,
			ErrInvalidChannel)
	}
	if !l.has(id) {
		return nil, fmt.Errorf("%s channel %d is %s: %w", l.name, id,
			FamilyOf(id), ErrChannelFamily)
	}
	if r == nil {
		return nil, platform.ErrNotInitialized
	}
	if err := platform.Check(r.p); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.channels[id].(*Channel[F]); ok {
		return c, nil
	}
	w, err := r.p.DMA.Sub(fmt.Sprint("dma", id), uint32(id)*channelStride,
		channelSize)
	if err != nil {
		return nil, err
	}
	c := newChannel[F](r, id, w)
	r.channels[id] = c
	log.Printf("debug", "%v: %v", c, w)
	return c, nil
}

func (r *Registry) enable(id int, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	enable := r.p.DMA.Reg(regEnable)
	if on {
		enable.SetBits(1 << id)
	} else {
		enable.ClearBits(1 << id)
	}
}

// Enabled returns the global enable register.
func (r *Registry) Enabled() uint32 { return r.p.DMA.Reg(regEnable).Get() }

// InterruptStatus returns a bit per channel with CS.INT raised.
func (r *Registry) InterruptStatus() uint32 {
	return r.p.DMA.Reg(regIntStatus).Get()
}
