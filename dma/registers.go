// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma

// Offsets within the DMA window.
const (
	NumChannels = 15

	channelStride = 0x100
	channelSize   = 0x100

	regIntStatus = 0xfe0
	regEnable    = 0xff0
)

// Standard and lite channel registers.
const (
	regCS        = 0x00
	regConblkAd  = 0x04
	regTI        = 0x08
	regSourceAd  = 0x0c
	regDestAd    = 0x10
	regTxfrLen   = 0x14
	regStride    = 0x18
	regNextConbk = 0x1c
	regDebug     = 0x20
)

// DMA4 channel registers.
const (
	reg4CS     = 0x00
	reg4CB     = 0x04
	reg4Debug  = 0x0c
	reg4TI     = 0x10
	reg4Src    = 0x14
	reg4SrcI   = 0x18
	reg4Dest   = 0x1c
	reg4DestI  = 0x20
	reg4Len    = 0x24
	reg4NextCB = 0x28
	reg4Debug2 = 0x2c
)

// CS, control and status.
const (
	csActive                = 1 << 0
	csEnd                   = 1 << 1
	csInt                   = 1 << 2
	csDreq                  = 1 << 3
	csPaused                = 1 << 4
	csError                 = 1 << 8
	csPriorityShift         = 16
	csPanicPriorityShift    = 20
	csPriorityWidth         = 4
	csWaitOutstandingWrites = 1 << 28
	csDisDebug              = 1 << 29
	csAbort                 = 1 << 30
	csReset                 = 1 << 31

	cs4Error = 1 << 10
	cs4Halt  = 1 << 31

	// the highest priority and panic priority
	MaxPriority = 15
)

// TI, transfer information, of standard and lite control blocks.
const (
	tiInten        = 1 << 0
	tiTDMode       = 1 << 1
	tiWaitResp     = 1 << 3
	tiDestInc      = 1 << 4
	tiDestWidth    = 1 << 5
	tiDestDreq     = 1 << 6
	tiDestIgnore   = 1 << 7
	tiSrcInc       = 1 << 8
	tiSrcWidth     = 1 << 9
	tiSrcDreq      = 1 << 10
	tiSrcIgnore    = 1 << 11
	tiBurstShift   = 12
	tiBurstWidth   = 4
	tiPermapShift  = 16
	tiPermapWidth  = 5
	tiWaitsShift   = 21
	tiWaitsWidth   = 5
	tiNoWideBursts = 1 << 26
)

// TI and SRCI/DESTI of DMA4 control blocks.
const (
	ti4Inten       = 1 << 0
	ti4TDMode      = 1 << 1
	ti4WaitResp    = 1 << 2
	ti4WaitRdResp  = 1 << 3
	ti4PermapShift = 9
	ti4PermapWidth = 5
	ti4SrcDreq     = 1 << 14
	ti4DestDreq    = 1 << 15
	ti4SWaitsShift = 16
	ti4DWaitsShift = 24
	ti4WaitsWidth  = 8

	xi4AddrMask    = 0xff
	xi4BurstShift  = 8
	xi4BurstWidth  = 4
	xi4Inc         = 1 << 12
	xi4Size128     = 2 << 13
	xi4Ignore      = 1 << 15
	xi4StrideShift = 16

	debug4Reset = 1 << 23
)

const (
	// Lite channels transfer at most this many bytes per control block.
	MaxLiteLength = 0xffff
	// Length of standard and DMA4 transfers.
	lengthMask = 0x3fffffff
)
