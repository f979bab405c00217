package main

var appversion = "0.3.2"

const (
	kb = 1 << 10
	mb = 1 << 20
)

const (
	// sectorBytes is the unit of every offset and size in partition tables.
	sectorBytes = 512

	// alignmentBlocks is 4 MiB expressed in sectors.
	alignmentBlocks = 4 * mb / sectorBytes

	// chunkSectors is the transfer unit of the disk driver (1 MiB).
	chunkSectors = mb / sectorBytes
)

// Synthetic partition names.
const (
	allPartition  = "__all__"
	headPartition = "__head__"

	wildcard = "*"
	stdioArg = "-"
)

// Device is a flash device as reported by a Driver.
type Device struct {
	Bus     int
	Dev     int
	Vendor  uint16
	Product uint16
	Path    string
}

// RawPartition is one entry of the driver's partition list, in sectors.
type RawPartition struct {
	Size   uint64
	Offset uint64
	Name   string
}

// Partition is one entry of the normalized table, in sectors.
type Partition struct {
	Name   string
	Offset uint64
	Size   uint64
}

func (p Partition) End() uint64 {
	return p.Offset + p.Size
}

func (p Partition) Aligned() bool {
	return p.Offset%alignmentBlocks == 0
}

func (p Partition) Synthetic() bool {
	return p.Name == allPartition || p.Name == headPartition
}

// Target is one resolved unit of work.
type Target struct {
	Offset   uint64
	Size     uint64
	Name     string
	Filename string

	// Staged targets get a temporary file from Stage right before use.
	Staged bool
}
