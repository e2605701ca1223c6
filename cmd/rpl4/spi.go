// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"github.com/yutatech/RPL4/auxspi"
	"github.com/yutatech/RPL4/internal/goes"
	"github.com/yutatech/RPL4/spi"
)

var spiPorts = map[string]spi.Port{
	"0": spi.SPI0,
	"3": spi.SPI3,
	"4": spi.SPI4,
	"5": spi.SPI5,
	"6": spi.SPI6,
}

func hex(b []byte) string {
	var sb strings.Builder
	for i, x := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", x)
	}
	return sb.String()
}

func spiCmd(ctx context.Context, args ...string) error {
	if goes.Helper(ctx, args, []string{"-port", "-cs", "-div", "-cpha",
		"-cpol"},
		"[-port 0|3|4|5|6] [-cs 0|1|2] [-div N] [-cpha] [-cpol] BYTE...\n",
		"Transfer bytes on a SPI master and print those received.\n") {
		return nil
	}
	flag, args := flags.New(args, "-cpha", "-cpol")
	parm, args := parms.New(args, "-port", "-cs", "-div")
	tx, err := bytesOf(args)
	if err != nil {
		return err
	}
	name := parm.ByName["-port"]
	if len(name) == 0 {
		name = "0"
	}
	port, found := spiPorts[name]
	if !found {
		return fmt.Errorf("-port: %s: %w", name, spi.ErrInvalidPort)
	}
	cs, err := number("-cs", parm.ByName["-cs"], 0, 2)
	if err != nil {
		return err
	}
	div, err := number("-div", parm.ByName["-div"], 500, 0xffff)
	if err != nil {
		return err
	}
	e, err := open()
	if err != nil {
		return err
	}
	defer e.Close()
	s, err := spi.New(e.p, port)
	if err != nil {
		return err
	}
	if err = s.SetChipSelect(spi.ChipSelect(cs)); err != nil {
		return err
	}
	phase, pol := spi.Middle, spi.Low
	if flag.ByName["-cpha"] {
		phase = spi.Beginning
	}
	if flag.ByName["-cpol"] {
		pol = spi.High
	}
	s.SetClockPhase(phase)
	s.SetClockPolarity(pol)
	s.SetClockDivider(uint16(div))
	rx := make([]byte, len(tx))
	if err = s.Transfer(ctx, tx, rx); err != nil {
		return err
	}
	goes.OutputOf(ctx).Printf("%v: %s\n", s, hex(rx))
	return nil
}

func auxspiCmd(ctx context.Context, args ...string) error {
	if goes.Helper(ctx, args, []string{"-port", "-cs", "-div", "-bits",
		"-cpol", "-lsb"},
		"[-port 1|2] [-cs 0|1|2] [-div N] [-bits N] [-cpol] [-lsb] BYTE...\n",
		"Transfer bytes on an auxiliary SPI master and print those\n",
		"received.\n") {
		return nil
	}
	flag, args := flags.New(args, "-cpol", "-lsb")
	parm, args := parms.New(args, "-port", "-cs", "-div", "-bits")
	tx, err := bytesOf(args)
	if err != nil {
		return err
	}
	port, err := number("-port", parm.ByName["-port"], 1, 2)
	if err != nil {
		return err
	}
	if port == 0 {
		return fmt.Errorf("-port: 0: %w", auxspi.ErrInvalidPort)
	}
	cs, err := number("-cs", parm.ByName["-cs"], 0, 2)
	if err != nil {
		return err
	}
	div, err := number("-div", parm.ByName["-div"], 1024,
		auxspi.MaxClockDivider)
	if err != nil {
		return err
	}
	bits, err := number("-bits", parm.ByName["-bits"], 8,
		auxspi.MaxBitLength)
	if err != nil {
		return err
	}
	e, err := open()
	if err != nil {
		return err
	}
	defer e.Close()
	s, err := auxspi.New(e.p, auxspi.Port(port-1))
	if err != nil {
		return err
	}
	s.Enable()
	defer s.Disable()
	order, pol := auxspi.MSBFirst, auxspi.Low
	if flag.ByName["-lsb"] {
		order = auxspi.LSBFirst
	}
	if flag.ByName["-cpol"] {
		pol = auxspi.High
	}
	s.SetMosiBitOrder(order)
	s.SetMisoBitOrder(order)
	s.SetClockPolarity(pol)
	s.SetMosiClockPhase(auxspi.Falling)
	s.SetMisoClockPhase(auxspi.Rising)
	for _, f := range []func() error{
		func() error { return s.SetChipSelect(auxspi.ChipSelect(cs)) },
		func() error { return s.SetClockDivider(uint16(div)) },
		func() error { return s.SetBitLength(uint8(bits)) },
	} {
		if err = f(); err != nil {
			return err
		}
	}
	rx := make([]byte, len(tx))
	if err = s.Transfer(ctx, tx, rx); err != nil {
		return err
	}
	goes.OutputOf(ctx).Printf("%v: %s\n", s, hex(rx))
	return nil
}
