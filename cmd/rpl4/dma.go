// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/platinasystems/parms"

	"github.com/yutatech/RPL4/dma"
	"github.com/yutatech/RPL4/dmamem"
	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/internal/goes"
)

// defaultWait bounds a transfer without a -timeout.
const defaultWait = time.Second

// channel methods common to every family
type channel interface {
	fmt.Stringer
	SetPriority(uint8)
	SetControlBlockAddress(uint32)
	Start()
	WaitForCompletionContext(context.Context) error
	AbortAndWait(time.Duration) error
	DebugStatus() dma.Status
}

var defaultChannel = map[string]int{
	"standard": 5,
	"lite":     7,
	"dma4":     11,
}

func dmaCmd(ctx context.Context, args ...string) error {
	types := []string{"standard", "lite", "dma4", "all"}
	if goes.Helper(ctx, args, types,
		"[-type standard|lite|dma4|all] [-ch ID] [-n SIZE]\n",
		"Copy memory to memory on a DMA channel and verify the result.\n") {
		return nil
	}
	parm, args := parms.New(args, "-type", "-ch", "-n")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	n, err := number("-n", parm.ByName["-n"], 4096, dma.MaxLiteLength)
	if err != nil {
		return err
	}
	if n == 0 || n%4 != 0 {
		return fmt.Errorf("-n: %d: not a positive multiple of 4", n)
	}
	family := parm.ByName["-type"]
	if len(family) == 0 {
		family = "standard"
	}
	var families []string
	if family == "all" {
		families = types[:3]
	} else if _, found := defaultChannel[family]; found {
		families = []string{family}
	} else {
		return fmt.Errorf("-type: %q: unknown", family)
	}
	if len(families) > 1 && len(parm.ByName["-ch"]) > 0 {
		return fmt.Errorf("-ch: ambiguous with -type all")
	}
	if _, found := ctx.Deadline(); !found {
		t, cancel := context.WithTimeout(ctx, defaultWait)
		defer cancel()
		ctx = t
	}
	e, err := open()
	if err != nil {
		return err
	}
	defer e.Close()
	a, err := e.allocator()
	if err != nil {
		return err
	}
	for _, family := range families {
		id, err := number("-ch", parm.ByName["-ch"],
			uint64(defaultChannel[family]), dma.NumChannels-1)
		if err != nil {
			return err
		}
		if err = dmaCopy(ctx, e, a, family, int(id), int(n)); err != nil {
			return err
		}
	}
	return nil
}

func dmaCopy(ctx context.Context, e *env, a *dmamem.Allocator, family string, id, n int) error {
	src, err := a.Allocate(n)
	if err != nil {
		return err
	}
	defer a.Free(src)
	dst, err := a.Allocate(n)
	if err != nil {
		return err
	}
	defer a.Free(dst)
	hw.FillWords(src, func(i int) uint32 { return 0xa5000000 | uint32(i) })
	hw.ZeroWords(dst)
	srcPhys, err := a.PhysicalAddressOf(src)
	if err != nil {
		return err
	}
	dstPhys, err := a.PhysicalAddressOf(dst)
	if err != nil {
		return err
	}

	var c channel
	var cb unsafe.Pointer
	switch family {
	case "standard":
		x, err := dma.Get[dma.Standard](e.r, id)
		if err != nil {
			return err
		}
		p, err := dmamem.AllocateObject[dma.ControlBlock](a)
		if err != nil {
			return err
		}
		defer dmamem.FreeObject(a, p)
		p.ConfigureMemoryToMemory(srcPhys, dstPhys, uint32(n))
		c, cb = x, unsafe.Pointer(p)
	case "lite":
		x, err := dma.Get[dma.Lite](e.r, id)
		if err != nil {
			return err
		}
		p, err := dmamem.AllocateObject[dma.LiteControlBlock](a)
		if err != nil {
			return err
		}
		defer dmamem.FreeObject(a, p)
		p.ConfigureMemoryToMemory(srcPhys, dstPhys, uint32(n))
		c, cb = x, unsafe.Pointer(p)
	case "dma4":
		x, err := dma.Get[dma.DMA4](e.r, id)
		if err != nil {
			return err
		}
		p, err := dmamem.AllocateObject[dma.ControlBlock4](a)
		if err != nil {
			return err
		}
		defer dmamem.FreeObject(a, p)
		p.ConfigureMemoryToMemory(uint64(srcPhys), uint64(dstPhys),
			uint32(n))
		c, cb = x, unsafe.Pointer(p)
	}
	cbPhys, err := a.PhysicalAddress(cb)
	if err != nil {
		return err
	}
	e.sync()
	start := time.Now()
	c.SetPriority(8)
	c.SetControlBlockAddress(cbPhys)
	c.Start()
	if err = c.WaitForCompletionContext(ctx); err != nil {
		return abandon(c, err)
	}
	elapsed := time.Since(start)
	if !bytes.Equal(src, dst) {
		return fmt.Errorf("%v: %s", c, c.DebugStatus())
	}
	goes.OutputOf(ctx).Printf("%v: %d bytes %#08x -> %#08x in %v\n", c, n,
		srcPhys, dstPhys, elapsed)
	return nil
}

// abandon aborts a failed transfer, reporting the abort failure with its
// cause.
func abandon(c channel, err error) error {
	if aerr := c.AbortAndWait(defaultWait); aerr != nil {
		return fmt.Errorf("%v: %w; %v", c, err, aerr)
	}
	return fmt.Errorf("%v: %w", c, err)
}
