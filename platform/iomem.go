// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package platform

import (
	"sort"

	"github.com/yutatech/RPL4/internal/memmap"
)

var ProcIomem = "/proc/iomem"

// Claim is a kernel /proc/iomem region within a mapped window.
type Claim struct {
	Window string
	memmap.Region
}

// Claims lists the kernel drivers that claim parts of the mapped windows.
// These are the drivers that this process may race with.
func (p *Platform) Claims(fn string) ([]Claim, error) {
	if err := Check(p); err != nil {
		return nil, err
	}
	if len(fn) == 0 {
		fn = ProcIomem
	}
	m, err := memmap.FileToMap(fn)
	if err != nil {
		return nil, err
	}
	var l []Claim
	for _, r := range Regions {
		start := uintptr(p.Base) + uintptr(r.Offset)
		end := start + uintptr(r.Size) - 1
		for _, reg := range m.Overlapping(start, end) {
			l = append(l, Claim{r.Name, reg})
		}
	}
	sort.Slice(l, func(i, j int) bool {
		if l[i].Window != l[j].Window {
			return l[i].Window < l[j].Window
		}
		return l[i].What < l[j].What
	})
	return l, nil
}
