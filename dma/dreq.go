// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma

import "fmt"

// DREQ selects the peripheral that paces a transfer (TI.PERMAP).
type DREQ uint8

const (
	DreqNone DREQ = iota
	DreqDSI0
	DreqPCMTX
	DreqPCMRX
	DreqSMI
	DreqPWM0
	DreqSPI0TX
	DreqSPI0RX
	DreqBSCSPISlaveTX
	DreqBSCSPISlaveRX
	_
	DreqEMMC
	DreqUART0TX
	DreqSDHost
	DreqUART0RX
	DreqDSI1
	DreqSPI1TX
	DreqHDMI
	DreqSPI1RX
	DreqSPI4TX
	DreqSPI4RX
	DreqSPI5TX
	DreqSPI5RX
	DreqSPI6TX
	DreqSPI6RX

	// PWM1 shares its DREQ with DSI0.
	DreqPWM1 = DreqDSI0
)

var dreqNames = [...]string{
	DreqNone:          "none",
	DreqDSI0:          "dsi0/pwm1",
	DreqPCMTX:         "pcm-tx",
	DreqPCMRX:         "pcm-rx",
	DreqSMI:           "smi",
	DreqPWM0:          "pwm0",
	DreqSPI0TX:        "spi0-tx",
	DreqSPI0RX:        "spi0-rx",
	DreqBSCSPISlaveTX: "bsc/spi-slave-tx",
	DreqBSCSPISlaveRX: "bsc/spi-slave-rx",
	DreqEMMC:          "emmc",
	DreqUART0TX:       "uart0-tx",
	DreqSDHost:        "sdhost",
	DreqUART0RX:       "uart0-rx",
	DreqDSI1:          "dsi1",
	DreqSPI1TX:        "spi1-tx",
	DreqHDMI:          "hdmi",
	DreqSPI1RX:        "spi1-rx",
	DreqSPI4TX:        "spi4-tx",
	DreqSPI4RX:        "spi4-rx",
	DreqSPI5TX:        "spi5-tx",
	DreqSPI5RX:        "spi5-rx",
	DreqSPI6TX:        "spi6-tx",
	DreqSPI6RX:        "spi6-rx",
}

func (d DREQ) String() string {
	if int(d) < len(dreqNames) && len(dreqNames[d]) > 0 {
		return dreqNames[d]
	}
	return fmt.Sprintf("dreq%d", uint8(d))
}

func (d DREQ) permap(shift uint) uint32 { return uint32(d) & 0x1f << shift }
