package main

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"unicode/utf16"
)

// decodeUTF16LE decodes UTF-16LE encoded partition names
func decodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		v := binary.LittleEndian.Uint16(b[i : i+2])
		if v == 0 {
			break
		}
		u16 = append(u16, v)
	}
	return string(utf16.Decode(u16))
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// validateGPTHeaderCRC validates the CRC32 of a GPT header
func validateGPTHeaderCRC(headerBytes []byte, headerSize uint32) error {
	if len(headerBytes) < int(headerSize) {
		return fmt.Errorf("header too small for validation")
	}

	origCRC := binary.LittleEndian.Uint32(headerBytes[16:20])
	if calculated := gptHeaderCRC(headerBytes, headerSize); calculated != origCRC {
		return fmt.Errorf("GPT header CRC mismatch: calculated 0x%08X, expected 0x%08X", calculated, origCRC)
	}
	return nil
}

// gptHeaderCRC computes the header checksum with the CRC field zeroed.
func gptHeaderCRC(headerBytes []byte, headerSize uint32) uint32 {
	tmp := make([]byte, headerSize)
	copy(tmp, headerBytes[:headerSize])
	clear(tmp[16:20])
	return crc32.ChecksumIEEE(tmp)
}

// validateGPTEntriesCRC validates the CRC32 of GPT partition entries
func validateGPTEntriesCRC(entries []byte, expectedCRC uint32) error {
	calculatedCRC := crc32.ChecksumIEEE(entries)
	if calculatedCRC != expectedCRC {
		return fmt.Errorf("GPT entries CRC mismatch: calculated 0x%08X, expected 0x%08X", calculatedCRC, expectedCRC)
	}
	return nil
}
