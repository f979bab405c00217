package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoPartitions is returned when the driver reports an empty partition list.
var ErrNoPartitions = errors.New("device reported no partitions")

// Table is the normalized partition table in display order.
type Table []Partition

// BuildTable extends the raw driver list with the synthetic __head__ and
// __all__ entries. Driver order is preserved.
func BuildTable(raw []RawPartition) (Table, error) {
	if len(raw) == 0 {
		return nil, ErrNoPartitions
	}

	maxEnd := raw[0].Offset + raw[0].Size
	minOffset := raw[0].Offset
	for _, r := range raw[1:] {
		maxEnd = max(maxEnd, r.Offset+r.Size)
		minOffset = min(minOffset, r.Offset)
	}

	table := make(Table, 0, len(raw)+2)
	if minOffset != 0 {
		table = append(table, Partition{Name: headPartition, Offset: 0, Size: minOffset})
	}
	for _, r := range raw {
		table = append(table, Partition{Name: r.Name, Offset: r.Offset, Size: r.Size})
	}
	table = append(table, Partition{Name: allPartition, Offset: 0, Size: maxEnd})
	return table, nil
}

// Real returns the entries that came from the driver.
func (t Table) Real() []Partition {
	var parts []Partition
	for _, p := range t {
		if !p.Synthetic() {
			parts = append(parts, p)
		}
	}
	return parts
}

// PartitionInfo is a table entry with its layout diagnostics.
type PartitionInfo struct {
	Partition
	Unaligned bool
	// Gap is the distance in sectors from the end of the previous entry.
	// Negative values mean overlap.
	Gap     int64
	ShowGap bool
}

// Annotate computes alignment and gap diagnostics in table order.
func (t Table) Annotate() []PartitionInfo {
	infos := make([]PartitionInfo, 0, len(t))
	var lastEnd uint64
	for _, p := range t {
		gap := int64(p.Offset) - int64(lastEnd)
		lastEnd = p.End()
		infos = append(infos, PartitionInfo{
			Partition: p,
			Unaligned: !p.Aligned(),
			Gap:       gap,
			ShowGap:   gap != 0 && p.Name != allPartition,
		})
	}
	return infos
}

// Tags renders the annotation suffix of a partition-list line.
func (i PartitionInfo) Tags() string {
	var b strings.Builder
	if i.Unaligned {
		b.WriteString(" unaligned")
	}
	if i.ShowGap {
		fmt.Fprintf(&b, " gap=%.1fkB", float64(i.Gap)*sectorBytes/kb)
	}
	return b.String()
}

// printPartitions writes the partition listing.
func printPartitions(w io.Writer, t Table) {
	fmt.Fprintln(w, "Partitions:")
	for _, info := range t.Annotate() {
		fmt.Fprintf(w, " %-20s (0x%08X @ 0x%08X, %6.1f MB)%s\n",
			info.Name, info.Size, info.Offset,
			float64(info.Size)*sectorBytes/mb, info.Tags())
	}
}

// printDevices writes the device listing.
func printDevices(w io.Writer, devices []Device) {
	fmt.Fprintln(w, "Devices:")
	for _, d := range devices {
		fmt.Fprintf(w, " Device at %d:%d has type 0x%04x:0x%04x\n", d.Bus, d.Dev, d.Vendor, d.Product)
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found")
	}
}
