// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"context"

	"github.com/platinasystems/log"

	"github.com/yutatech/RPL4/dma"
	"github.com/yutatech/RPL4/internal/goes"
)

func infoCmd(ctx context.Context, args ...string) error {
	if goes.Helper(ctx, args, nil, "\n",
		"Print the board, peripheral windows, DMA channel state and\n",
		"the kernel drivers claiming the windows.\n") {
		return nil
	}
	e, err := open()
	if err != nil {
		return err
	}
	defer e.Close()
	o := goes.OutputOf(ctx)
	if e.p.Board != nil {
		o.Println("board:", e.p.Board)
	}
	o.Printf("peripherals: %#x\n", e.p.Base)
	for _, x := range e.p.Map {
		o.Println(" ", x)
	}
	o.Printf("dma: enabled %#04x interrupts %#04x\n", e.r.Enabled(),
		e.r.InterruptStatus())
	for id := 0; id < dma.NumChannels; id++ {
		o.Printf("  %2d %s\n", id, dma.FamilyOf(id))
	}
	if e.m != nil {
		return ctx.Err()
	}
	claims, err := e.p.Claims("")
	if err != nil {
		log.Print("warn", "claims: ", err)
		return ctx.Err()
	}
	for _, c := range claims {
		o.Printf("%s: %v\n", c.Window, c.Region)
	}
	return ctx.Err()
}
