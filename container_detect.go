package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

var luksMagic = []byte{'L', 'U', 'K', 'S', 0xBA, 0xBE}

const mdraidMagic = 0xA92B4EFC

// detectContainer looks for a volume container at the start of a
// partition of sizeBytes bytes: LUKS, an LVM2 physical volume or an
// MD RAID member. It returns "" when none is found.
func detectContainer(r io.ReaderAt, offset, sizeBytes int64) string {
	buf := make([]byte, 512)

	if _, err := r.ReadAt(buf[:8], offset); err == nil && bytes.Equal(buf[:6], luksMagic) {
		return fmt.Sprintf("LUKS%d", binary.BigEndian.Uint16(buf[6:8]))
	}

	// The LVM label lives in one of the first four sectors.
	for sector := int64(0); sector < 4; sector++ {
		if _, err := r.ReadAt(buf, offset+sector*sectorBytes); err != nil {
			break
		}
		if bytes.Equal(buf[:8], []byte("LABELONE")) {
			if bytes.Contains(buf, []byte("LVM2 001")) {
				return "LVM2 PV"
			}
			return "LVM label"
		}
	}

	// MD superblocks sit 4K or 8K into the member (1.1/1.2), or 64K from
	// the end rounded down to 64K (0.90/1.0).
	candidates := []int64{4096, 8192}
	if sizeBytes >= 128<<10 {
		candidates = append(candidates, (sizeBytes&^(64<<10-1))-64<<10)
	}
	for _, off := range candidates {
		if _, err := r.ReadAt(buf[:4], offset+off); err != nil {
			continue
		}
		if binary.LittleEndian.Uint32(buf[:4]) == mdraidMagic || binary.BigEndian.Uint32(buf[:4]) == mdraidMagic {
			return "MD RAID"
		}
	}
	return ""
}

// probeContent names the filesystem or container found at offset.
func probeContent(r io.ReaderAt, offset, sizeBytes int64) string {
	if fs := detectFileSystem(r, offset); fs != "Unknown" {
		return fs
	}
	if c := detectContainer(r, offset, sizeBytes); c != "" {
		return c
	}
	return "Unknown"
}
