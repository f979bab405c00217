package main

import (
	"bytes"
	"encoding/binary"
	"io"
)

// filesystemList holds the signatures probed at the start of a partition.
// Flash images mostly carry read-only or flash-aware filesystems.
var filesystemList = []fileSystemStruct{
	{Name: "SquashFS", Signature: []byte("hsqs"), Offset: 0},
	{Name: "CramFS", Signature: []byte{0x45, 0x3d, 0xcd, 0x28}, Offset: 0},
	{Name: "RomFS", Signature: []byte("-rom1fs-"), Offset: 0},
	{Name: "UBI", Signature: []byte("UBI#"), Offset: 0},
	{Name: "UBIFS", Signature: []byte{0x31, 0x18, 0x10, 0x06}, Offset: 0},
	{Name: "JFFS2", Signature: []byte{0x85, 0x19}, Offset: 0},
	{Name: "Android boot image", Signature: []byte("ANDROID!"), Offset: 0},
	{Name: "Rockchip KRNL", Signature: []byte("KRNL"), Offset: 0},
	{Name: "Rockchip parameter", Signature: []byte("PARM"), Offset: 0},
	{Name: "XFS", Signature: []byte("XFSB"), Offset: 0},
	{Name: "exFAT", Signature: []byte("EXFAT"), Offset: 3},
	{Name: "NTFS", Signature: []byte("NTFS"), Offset: 3},
	{Name: "Btrfs", Signature: []byte("_BHRfS_M"), Offset: 0x40},
	{Name: "F2FS", Signature: []byte{0x10, 0x20, 0xF5, 0xF2}, Offset: 0x400},
	{Name: "EROFS", Signature: []byte{0xE2, 0xE1, 0xF5, 0xE0}, Offset: 0x400},
	{Name: "Swap (Linux)", Signature: []byte("SWAPSPACE2"), Offset: 0xFF6},
	{Name: "FAT", Signature: []byte{0x55, 0xaa}, Offset: 0x1fe},
}

// detectFileSystem detects the filesystem type by reading and matching signatures
func detectFileSystem(r io.ReaderAt, offset int64) string {
	buffer := make([]byte, 0x1000)
	if n, err := r.ReadAt(buffer, offset); err != nil && n < len(buffer) {
		if n == 0 {
			return "Unknown"
		}
		buffer = buffer[:n]
	}

	for _, fs := range filesystemList {
		end := fs.Offset + int64(len(fs.Signature))
		if int64(len(buffer)) >= end && bytes.Equal(buffer[fs.Offset:end], fs.Signature) {
			return fs.Name
		}
	}

	return detectExtFilesystem(r, offset)
}

// detectExtFilesystem detects ext2/ext3/ext4 filesystems by reading superblock
func detectExtFilesystem(r io.ReaderAt, offset int64) string {
	const superblockOffset = 0x400
	buffer := make([]byte, 0x70)

	if _, err := r.ReadAt(buffer, offset+superblockOffset); err != nil {
		return "Unknown"
	}

	magic := binary.LittleEndian.Uint16(buffer[0x38:0x3a])
	compatibleFeatures := binary.LittleEndian.Uint32(buffer[0x5c:0x60])

	if magic != 0xEF53 {
		return "Unknown"
	}

	if (compatibleFeatures & 0x40) == 0x40 {
		return "ext4"
	} else if (compatibleFeatures & 0x4) == 0x4 {
		return "ext3"
	}

	return "ext2"
}
