// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package platform

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/log"
)

const (
	// BusBase is the VideoCore bus address of the peripheral block; DMA
	// descriptors address peripherals with it.
	BusBase = 0x7e000000
	// DefaultBase is the ARM physical address of the peripheral block in
	// the BCM2711 low peripheral mode.
	DefaultBase = 0xfe000000

	Compatible = "brcm,bcm2711"

	fdtMagic = 0xd00dfeed
)

var (
	DeviceTree = "/sys/firmware/fdt"
	ProcDT     = "/proc/device-tree"
	CPUInfo    = "/proc/cpuinfo"
)

// Board describes the detected SoC.
type Board struct {
	Model      string
	Compatible []string
	// Base is the ARM physical address of the peripheral block.
	Base int64
}

func (b *Board) String() string {
	return fmt.Sprintf("%s (%s) peripherals@%#x", b.Model,
		strings.Join(b.Compatible, ", "), b.Base)
}

// IsBCM2711 is true if the board's device tree names the BCM2711.
func (b *Board) IsBCM2711() bool {
	for _, s := range b.Compatible {
		if s == Compatible {
			return true
		}
	}
	return false
}

// Detect the board from the flattened device tree, the /proc device tree,
// and finally /proc/cpuinfo.
func Detect(cfg Config) (*Board, error) {
	cfg.defaults()
	b, err := detectFdt(cfg.DeviceTree)
	if err == nil {
		return b, nil
	}
	log.Print("debug", cfg.DeviceTree, ": ", err)
	if b, err = detectProcDT(cfg.ProcDT); err == nil {
		return b, nil
	}
	log.Print("debug", cfg.ProcDT, ": ", err)
	hardware, err := cpuinfoHardware(cfg.CPUInfo)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(hardware, "BCM2835") &&
		!strings.HasPrefix(hardware, "BCM2711") {
		return nil, fmt.Errorf("%s: %q: %w", cfg.CPUInfo, hardware,
			ErrNotAvailable)
	}
	log.Print("warn", "no device tree, assuming peripherals at ",
		fmt.Sprintf("%#x", DefaultBase))
	return &Board{Model: hardware, Base: DefaultBase}, nil
}

// IsAvailable is true if this looks like a BCM2711 (or another BCM2835
// family member that reports itself the same way in /proc/cpuinfo).
func IsAvailable() bool {
	_, err := Detect(Config{})
	return err == nil
}

func detectFdt(fn string) (*Board, error) {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	if len(buf) < 40 || binary.BigEndian.Uint32(buf) != fdtMagic {
		return nil, fmt.Errorf("not a flattened device tree")
	}
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err = t.Parse(buf); err != nil {
		return nil, err
	}
	if t.RootNode == nil {
		return nil, fmt.Errorf("empty device tree")
	}
	b := &Board{}
	if v, found := t.RootNode.Properties["model"]; found {
		b.Model = cstring(v)
	}
	if v, found := t.RootNode.Properties["compatible"]; found {
		b.Compatible = cstrings(v)
	}
	parent := cells(t, t.RootNode, "#address-cells", 2)
	t.MatchNode("soc", func(n *fdt.Node) {
		if b.Base != 0 {
			return
		}
		ranges, found := n.Properties["ranges"]
		if !found {
			return
		}
		child := cells(t, n, "#address-cells", 1)
		size := cells(t, n, "#size-cells", 1)
		b.Base = socBase(t.PropUint32Slice(ranges), child, parent, size)
	})
	if b.Base == 0 {
		return nil, fmt.Errorf("soc: no ranges for %#x", BusBase)
	}
	return b, nil
}

func detectProcDT(dir string) (*Board, error) {
	ranges, err := os.ReadFile(dir + "/soc/ranges")
	if err != nil {
		return nil, err
	}
	b := &Board{}
	if v, err := os.ReadFile(dir + "/model"); err == nil {
		b.Model = cstring(v)
	}
	if v, err := os.ReadFile(dir + "/compatible"); err == nil {
		b.Compatible = cstrings(v)
	}
	l := make([]uint32, len(ranges)/4)
	for i := range l {
		l[i] = binary.BigEndian.Uint32(ranges[4*i:])
	}
	// BCM2711 has two parent cells, older SoCs one.
	if b.Base = socBase(l, 1, 2, 1); b.Base == 0 {
		b.Base = socBase(l, 1, 1, 1)
	}
	if b.Base == 0 {
		return nil, fmt.Errorf("soc/ranges: no ranges for %#x", BusBase)
	}
	return b, nil
}

// socBase returns the parent address of the range whose child address is
// BusBase.
func socBase(l []uint32, child, parent, size int) int64 {
	n := child + parent + size
	if child < 1 || parent < 1 || parent > 2 || len(l) < n {
		return 0
	}
	for i := 0; i+n <= len(l); i += n {
		if l[i+child-1] != BusBase {
			continue
		}
		var base int64
		for _, c := range l[i+child : i+child+parent] {
			base = base<<32 | int64(c)
		}
		return base
	}
	return 0
}

func cells(t *fdt.Tree, n *fdt.Node, name string, dflt int) int {
	if v, found := n.Properties[name]; found && len(v) == 4 {
		return int(t.PropUint32(v))
	}
	return dflt
}

func cstring(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

func cstrings(b []byte) []string {
	s := cstring(b)
	if len(s) == 0 {
		return nil
	}
	return strings.Split(s, "\x00")
}

func cpuinfoHardware(fn string) (string, error) {
	f, err := os.Open(fn)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		k, v, found := strings.Cut(scan.Text(), ":")
		if found && strings.TrimSpace(k) == "Hardware" {
			return strings.TrimSpace(v), nil
		}
	}
	if err = scan.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%s: no Hardware: %w", fn, ErrNotAvailable)
}
