// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package platform

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const DevMemName = "/dev/mem"

// A Mapper maps CPU physical address ranges into the process.
type Mapper interface {
	Map(phys int64, size int) ([]byte, error)
	Unmap(b []byte) error
	Close() error
}

// mappings remembers the page aligned mapping behind each returned slice.
type mappings struct {
	mu sync.Mutex
	m  map[uintptr]mmap.MMap
}

func (p *mappings) add(b []byte, mm mmap.MMap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[uintptr]mmap.MMap)
	}
	p.m[uintptr(unsafe.Pointer(&b[0]))] = mm
}

func (p *mappings) unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	k := uintptr(unsafe.Pointer(&b[0]))
	p.mu.Lock()
	mm, found := p.m[k]
	delete(p.m, k)
	p.mu.Unlock()
	if !found {
		return fmt.Errorf("%#x: not mapped", k)
	}
	return errors.Wrap(mm.Unmap(), "munmap")
}

func (p *mappings) unmapAll() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, mm := range p.m {
		if xerr := mm.Unmap(); xerr != nil && err == nil {
			err = errors.Wrap(xerr, "munmap")
		}
		delete(p.m, k)
	}
	return
}

func pageRound(phys int64, size int) (start int64, delta, n int) {
	pg := int64(unix.Getpagesize())
	start = phys &^ (pg - 1)
	delta = int(phys - start)
	n = int((int64(delta+size) + pg - 1) &^ (pg - 1))
	return
}

// DevMem maps physical memory through /dev/mem with O_SYNC so that the
// kernel maps it uncached.
type DevMem struct {
	f *os.File
	mappings
}

func OpenDevMem() (*DevMem, error) {
	f, err := os.OpenFile(DevMemName, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open "+DevMemName)
	}
	return &DevMem{f: f}, nil
}

func (m *DevMem) Map(phys int64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%#x: invalid size %d", phys, size)
	}
	start, delta, n := pageRound(phys, size)
	mm, err := mmap.MapRegion(m.f, n, mmap.RDWR, 0, start)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %s@%#x", DevMemName, phys)
	}
	b := mm[delta : delta+size : delta+size]
	m.add(b, mm)
	return b, nil
}

func (m *DevMem) Unmap(b []byte) error { return m.unmap(b) }

func (m *DevMem) Close() error {
	err := m.unmapAll()
	if xerr := m.f.Close(); err == nil {
		err = xerr
	}
	return err
}

// Anonymous provides zeroed shared memory in place of each physical range.
// It backs register windows when there is no hardware (tests and
// simulation).
type Anonymous struct {
	mappings
}

func (m *Anonymous) Map(phys int64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%#x: invalid size %d", phys, size)
	}
	_, delta, n := pageRound(phys, size)
	mm, err := mmap.MapRegion(nil, n, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, errors.Wrap(err, "mmap anonymous")
	}
	b := mm[delta : delta+size : delta+size]
	m.add(b, mm)
	return b, nil
}

func (m *Anonymous) Unmap(b []byte) error { return m.unmap(b) }
func (m *Anonymous) Close() error         { return m.unmapAll() }
