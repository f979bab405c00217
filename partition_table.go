package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrPartTableNotFound is returned when no GPT, parameter block or MBR is found.
var ErrPartTableNotFound = errors.New("partition table not found")

// maxGPTTableBytes bounds the entry array read from a GPT header.
const maxGPTTableBytes = 1 * mb

// readPartitionTable discovers the raw partition list of a device whose
// logical block size is lbaSize and whose size is totalSectors 512-byte
// sectors. It returns the list and the kind of table it came from.
func readPartitionTable(r io.ReaderAt, lbaSize, totalSectors uint64) ([]RawPartition, string, error) {
	if isGPTDisk(r, lbaSize) {
		parts, err := readGPTPartitions(r, lbaSize)
		return parts, "gpt", err
	}

	for _, sector := range parameterSectors {
		block := make([]byte, 16*sectorBytes)
		n, err := r.ReadAt(block, int64(sector*sectorBytes))
		if n < 8 || !bytes.Equal(block[:4], parameterMagic) {
			continue
		}
		if err != nil && err != io.EOF {
			return nil, "", fmt.Errorf("read parameter block: %w", err)
		}
		parts, err := parseParameterBlock(block[:n], totalSectors)
		return parts, "parameter", err
	}

	mbr := mbrStruct{}
	buf := make([]byte, sectorBytes)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, "", fmt.Errorf("read MBR: %w", err)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &mbr); err != nil {
		return nil, "", fmt.Errorf("parse MBR: %w", err)
	}
	if mbr.Signature != 0xAA55 {
		return nil, "", ErrPartTableNotFound
	}
	parts, err := readMBRPartitions(r, mbr, lbaSize, totalSectors)
	return parts, "mbr", err
}

func isGPTDisk(r io.ReaderAt, lbaSize uint64) bool {
	sig := make([]byte, 8)
	if _, err := r.ReadAt(sig, int64(lbaSize)); err != nil {
		return false
	}
	return string(sig) == "EFI PART"
}

// lbaToSectors converts a count of device blocks to 512-byte sectors.
func lbaToSectors(lba, lbaSize uint64) uint64 {
	return lba * lbaSize / sectorBytes
}

func readGPTPartitions(r io.ReaderAt, lbaSize uint64) ([]RawPartition, error) {
	headerBytes := make([]byte, lbaSize)
	if _, err := r.ReadAt(headerBytes, int64(lbaSize)); err != nil {
		return nil, fmt.Errorf("read GPT header: %w", err)
	}

	header := gptHeader{}
	if err := binary.Read(bytes.NewReader(headerBytes), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("parse GPT header: %w", err)
	}
	if header.HeaderSize < 92 || uint64(header.HeaderSize) > lbaSize {
		return nil, fmt.Errorf("invalid GPT header size: %d", header.HeaderSize)
	}
	if err := validateGPTHeaderCRC(headerBytes, header.HeaderSize); err != nil {
		tracer.Warn().Err(err).Msg("gpt header")
	}
	if header.PartEntrySize < 128 || uint64(header.PartEntrySize) > lbaSize || header.NumPartEntries > 4096 ||
		uint64(header.NumPartEntries)*uint64(header.PartEntrySize) > maxGPTTableBytes {
		return nil, fmt.Errorf("invalid GPT entry layout: %d entries of %d bytes", header.NumPartEntries, header.PartEntrySize)
	}

	table := make([]byte, uint64(header.NumPartEntries)*uint64(header.PartEntrySize))
	if _, err := r.ReadAt(table, int64(header.PartitionEntryLBA*lbaSize)); err != nil {
		return nil, fmt.Errorf("read GPT entries: %w", err)
	}
	if err := validateGPTEntriesCRC(table, header.PartEntryArrayCRC32); err != nil {
		tracer.Warn().Err(err).Msg("gpt entries")
	}

	var parts []RawPartition
	for i := uint32(0); i < header.NumPartEntries; i++ {
		off := uint64(i) * uint64(header.PartEntrySize)
		entry := gptPartition{}
		if err := binary.Read(bytes.NewReader(table[off:off+uint64(header.PartEntrySize)]), binary.LittleEndian, &entry); err != nil {
			return nil, fmt.Errorf("parse GPT entry %d: %w", i, err)
		}
		if isAllZero(entry.TypeGUID[:]) || entry.LastLBA < entry.FirstLBA {
			continue
		}

		name := decodeUTF16LE(entry.PartitionName[:])
		if name == "" {
			name = fmt.Sprintf("part%d", i+1)
		}
		parts = append(parts, RawPartition{
			Size:   lbaToSectors(entry.LastLBA-entry.FirstLBA+1, lbaSize),
			Offset: lbaToSectors(entry.FirstLBA, lbaSize),
			Name:   name,
		})
	}
	return parts, nil
}

func readMBRPartitions(r io.ReaderAt, mbr mbrStruct, lbaSize, totalSectors uint64) ([]RawPartition, error) {
	maxLBA := totalSectors * sectorBytes / lbaSize

	var parts []RawPartition
	partNum := 1
	add := func(p mbrPartition) {
		parts = append(parts, RawPartition{
			Size:   lbaToSectors(uint64(p.Sectors), lbaSize),
			Offset: lbaToSectors(uint64(p.FirstSector), lbaSize),
			Name:   fmt.Sprintf("part%d", partNum),
		})
		partNum++
	}

	for _, part := range mbr.Partitions {
		// 0xEE is the protective entry of a damaged GPT.
		if part.Sectors == 0 || part.Type == 0x00 || part.Type == 0xEE {
			continue
		}
		if !isExtendedType(part.Type) {
			add(part)
			continue
		}

		logical, err := readEBRChain(r, maxLBA, lbaSize, part.FirstSector)
		if err != nil {
			tracer.Warn().Err(err).Msg("extended partition chain")
			continue
		}
		for _, lp := range logical {
			add(lp)
		}
	}
	return parts, nil
}
