// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma

// Family of DMA channels. The register layout of a channel is fixed by
// its family type parameter.
type Family interface {
	Standard | Lite | DMA4
	layout() *layout
}

type (
	Standard struct{}
	Lite     struct{}
	DMA4     struct{}
)

type layout struct {
	name      string
	channels  []int
	cb        uint32
	cbShift   uint
	debug     uint32
	reset     uint32
	resetReg  uint32
	err       uint32
	ti        uint32
	src       uint32
	dst       uint32
	length    uint32
	next      uint32
	nextShift uint
}

var (
	standardLayout = layout{
		name:     "Standard DMA",
		channels: []int{0, 1, 2, 3, 4, 5, 6, 8, 9, 10},
		cb:       regConblkAd,
		debug:    regDebug,
		reset:    csReset,
		resetReg: regCS,
		err:      csError,
		ti:       regTI,
		src:      regSourceAd,
		dst:      regDestAd,
		length:   regTxfrLen,
		next:     regNextConbk,
	}
	liteLayout = layout{
		name:     "DMA Lite",
		channels: []int{7},
		cb:       regConblkAd,
		debug:    regDebug,
		reset:    csReset,
		resetReg: regCS,
		err:      csError,
		ti:       regTI,
		src:      regSourceAd,
		dst:      regDestAd,
		length:   regTxfrLen,
		next:     regNextConbk,
	}
	dma4Layout = layout{
		name:      "DMA4",
		channels:  []int{11, 12, 13, 14},
		cb:        reg4CB,
		cbShift:   5,
		debug:     reg4Debug,
		reset:     debug4Reset,
		resetReg:  reg4Debug,
		err:       cs4Error,
		ti:        reg4TI,
		src:       reg4Src,
		dst:       reg4Dest,
		length:    reg4Len,
		next:      reg4NextCB,
		nextShift: 5,
	}
	layouts = []*layout{&standardLayout, &liteLayout, &dma4Layout}
)

func (Standard) layout() *layout { return &standardLayout }
func (Lite) layout() *layout     { return &liteLayout }
func (DMA4) layout() *layout     { return &dma4Layout }

func (l *layout) has(id int) bool {
	for _, x := range l.channels {
		if x == id {
			return true
		}
	}
	return false
}

// FamilyOf returns the family name of channel id, or "" if there is no
// such channel.
func FamilyOf(id int) string {
	for _, l := range layouts {
		if l.has(id) {
			return l.name
		}
	}
	return ""
}

// Channels of the named family.
func Channels[F Family]() []int {
	var f F
	return append([]int(nil), f.layout().channels...)
}
