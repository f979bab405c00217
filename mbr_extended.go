package main

import (
	"encoding/binary"
	"fmt"
	"io"
)

// isExtendedType checks if a partition type is an extended partition type
func isExtendedType(t byte) bool {
	switch t {
	case 0x05, 0x0F, 0x85:
		return true
	default:
		return false
	}
}

// parseMBREntryFromBytes parses an MBR entry from raw bytes
func parseMBREntryFromBytes(b []byte) mbrPartition {
	return mbrPartition{
		Status:      b[0],
		Type:        b[4],
		FirstSector: binary.LittleEndian.Uint32(b[8:12]),
		Sectors:     binary.LittleEndian.Uint32(b[12:16]),
	}
}

// readEBRChain follows the extended boot record chain starting at baseLBA
// and returns the logical partitions with absolute start LBAs. Entries
// reaching past maxLBA (when nonzero) are dropped.
func readEBRChain(r io.ReaderAt, maxLBA, lbaSize uint64, baseLBA uint32) ([]mbrPartition, error) {
	var logicalPartitions []mbrPartition
	nextEBR := uint64(baseLBA)
	const maxHops = 128

	buf := make([]byte, lbaSize)
	for hops := 0; hops < maxHops; hops++ {
		if _, err := r.ReadAt(buf, int64(nextEBR*lbaSize)); err != nil {
			return nil, fmt.Errorf("read EBR at LBA %d failed: %w", nextEBR, err)
		}
		if len(buf) < 512 || buf[510] != 0x55 || buf[511] != 0xAA {
			return nil, fmt.Errorf("EBR signature missing at LBA %d", nextEBR)
		}

		entries := buf[446 : 446+32]
		e1 := parseMBREntryFromBytes(entries[0:16])
		e2 := parseMBREntryFromBytes(entries[16:32])

		// First entry is the logical partition, relative to its EBR.
		if e1.Type != 0x00 && e1.Sectors != 0 {
			startLBA := nextEBR + uint64(e1.FirstSector)
			endLBA := startLBA + uint64(e1.Sectors)
			if maxLBA == 0 || endLBA <= maxLBA {
				logicalPartitions = append(logicalPartitions, mbrPartition{
					Status:      e1.Status,
					Type:        e1.Type,
					FirstSector: uint32(startLBA),
					Sectors:     e1.Sectors,
				})
			}
		}

		// Second entry links to the next EBR, relative to the first one.
		if e2.Type == 0x00 || e2.Sectors == 0 || !isExtendedType(e2.Type) {
			break
		}
		nextEBR = uint64(baseLBA) + uint64(e2.FirstSector)
	}

	return logicalPartitions, nil
}
