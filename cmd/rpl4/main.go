// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Rpl4 exercises the BCM2711 peripherals: DMA channels and memory, PWM,
// GPIO and the SPI masters.
//
//	rpl4 [-sim] [-timeout DURATION] COMMAND [OPTION]...
//
// With -sim, every command runs against simulated hardware.
package main

import (
	"os"

	"github.com/platinasystems/flags"

	"github.com/yutatech/RPL4/internal/goes"
)

var commands = goes.Selection{
	"alloc":   allocCmd,
	"auxspi":  auxspiCmd,
	"dma":     dmaCmd,
	"gpio":    gpioCmd,
	"info":    infoCmd,
	"pwm":     pwmCmd,
	"pwm-dma": pwmDmaCmd,
	"spi":     spiCmd,
}

func main() {
	flag, args := flags.New(os.Args[1:], "-sim")
	useSim = flag.ByName["-sim"]
	os.Args = append(os.Args[:1], args...)
	commands.Main()
}
