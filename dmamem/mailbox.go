// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dmamem

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const VCIO = "/dev/vcio"

// Memory allocation flags.
const (
	FlagDiscardable     = 1 << 0
	FlagNormal          = 0 << 2
	FlagDirect          = 1 << 2
	FlagCoherent        = 2 << 2
	FlagL1NonAllocating = FlagDirect | FlagCoherent
	FlagZero            = 1 << 4
	FlagNoInit          = 1 << 5
	FlagHintPermalock   = 1 << 6

	// AllocFlags requests uncached memory that the firmware clears.
	AllocFlags = FlagDirect | FlagZero
)

const (
	requestCode     = 0x00000000
	responseSuccess = 0x80000000
	responseError   = 0x80000001

	tagAllocate = 0x0003000c
	tagLock     = 0x0003000d
	tagUnlock   = 0x0003000e
	tagRelease  = 0x0003000f
)

// From the linux asm-generic/ioctl.h file.
const (
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = iocNrShift + 8
	iocSizeShift = iocTypeShift + 8
	iocDirShift  = iocSizeShift + 14
)

func iowr(typ, nr, size uintptr) uintptr {
	return (iocRead|iocWrite)<<iocDirShift |
		typ<<iocTypeShift |
		nr<<iocNrShift |
		size<<iocSizeShift
}

// IoctlProperty is the vcio property interface request, _IOWR(100, 0, char *).
var IoctlProperty = iowr(100, 0, unsafe.Sizeof(uintptr(0)))

// Mailbox is the VideoCore firmware property interface.
type Mailbox struct {
	mu    sync.Mutex
	f     *os.File
	ioctl func(msg []uint32) error
}

func OpenMailbox() (*Mailbox, error) {
	f, err := os.OpenFile(VCIO, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open "+VCIO)
	}
	m := &Mailbox{f: f}
	m.ioctl = m.property
	return m, nil
}

func (m *Mailbox) property(msg []uint32) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, m.f.Fd(), IoctlProperty,
		uintptr(unsafe.Pointer(&msg[0])))
	if e != 0 {
		return e
	}
	return nil
}

// call sends a single tag with the given request words and returns the
// first response word.
func (m *Mailbox) call(tag uint32, req ...uint32) (uint32, error) {
	msg := make([]uint32, 6+len(req))
	msg[0] = uint32(4 * len(msg))
	msg[1] = requestCode
	msg[2] = tag
	msg[3] = uint32(4 * len(req))
	msg[4] = uint32(4 * len(req))
	copy(msg[5:], req)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ioctl == nil {
		return 0, os.ErrClosed
	}
	if err := m.ioctl(msg); err != nil {
		return 0, errors.Wrapf(err, "vcio tag %#x", tag)
	}
	if msg[1] != responseSuccess {
		return 0, fmt.Errorf("vcio tag %#x: response %#x", tag, msg[1])
	}
	return msg[5], nil
}

func (m *Mailbox) Allocate(size, align, flags uint32) (uint32, error) {
	return m.call(tagAllocate, size, align, flags)
}

func (m *Mailbox) Lock(handle uint32) (uint32, error) {
	bus, err := m.call(tagLock, handle)
	if err == nil && bus == 0 {
		err = fmt.Errorf("vcio lock %d: failed", handle)
	}
	return bus, err
}

func (m *Mailbox) Unlock(handle uint32) error {
	return m.status("unlock", tagUnlock, handle)
}

func (m *Mailbox) Release(handle uint32) error {
	return m.status("release", tagRelease, handle)
}

func (m *Mailbox) status(what string, tag, handle uint32) error {
	status, err := m.call(tag, handle)
	if err == nil && status != 0 {
		err = fmt.Errorf("vcio %s %d: status %#x", what, handle, status)
	}
	return err
}

func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ioctl = nil
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}
