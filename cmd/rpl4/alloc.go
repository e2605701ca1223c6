// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/platinasystems/parms"

	"github.com/yutatech/RPL4/dmamem"
	"github.com/yutatech/RPL4/hw"
	"github.com/yutatech/RPL4/internal/goes"
)

func allocCmd(ctx context.Context, args ...string) error {
	if goes.Helper(ctx, args, []string{"-n", "-count"},
		"[-n SIZE] [-count N]\n",
		"Allocate, translate, verify and free DMA memory.\n") {
		return nil
	}
	parm, args := parms.New(args, "-n", "-count")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	size, err := number("-n", parm.ByName["-n"], 4096, 1<<26)
	if err != nil {
		return err
	}
	count, err := number("-count", parm.ByName["-count"], 4, 1024)
	if err != nil {
		return err
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
	o := goes.OutputOf(ctx)
	var bufs [][]byte
	defer func() {
		for _, b := range bufs {
			a.Free(b)
		}
	}()
	for i := 0; i < int(count); i++ {
		b, err := a.Allocate(int(size))
		if err != nil {
			return err
		}
		bufs = append(bufs, b)
		phys, err := a.PhysicalAddressOf(b)
		if err != nil {
			return err
		}
		if phys%dmamem.Alignment != 0 {
			return fmt.Errorf("%#08x: misaligned", phys)
		}
		seed := uint32(i) << 24
		hw.FillWords(b, func(j int) uint32 { return seed | uint32(j) })
		for j := 0; j+4 <= len(b); j += 4 {
			if x := hw.LoadWord(b, j); x != seed|uint32(j/4) {
				return fmt.Errorf("%#08x: read %#08x", phys+uint32(j), x)
			}
		}
		o.Printf("%d: %d bytes @ %#08x\n", i, size, phys)
	}
	o.Println(a.Stats())
	return ctx.Err()
}
