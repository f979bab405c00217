package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Rockchip parameter block: "PARM", a little endian text length, then
// KEY:value lines. The CMDLINE line carries an mtdparts= list.
var parameterMagic = []byte("PARM")

// parameterSectors are the sectors probed for a parameter block:
// the start of NAND and the start of the eMMC loader area.
var parameterSectors = []uint64{0, 0x2000}

var errNoMtdParts = errors.New("no mtdparts= in parameter block")

// parseParameterBlock extracts the partition list of a parameter block.
// totalSectors sizes a trailing "-" (grow) partition.
func parseParameterBlock(block []byte, totalSectors uint64) ([]RawPartition, error) {
	if len(block) < 8 || !bytes.Equal(block[:4], parameterMagic) {
		return nil, fmt.Errorf("missing PARM magic")
	}
	length := binary.LittleEndian.Uint32(block[4:8])
	text := block[8:]
	if uint64(length) <= uint64(len(text)) {
		text = text[:length]
	}

	for _, line := range strings.Split(string(text), "\n") {
		line = strings.TrimSpace(line)
		_, rest, ok := strings.Cut(line, "mtdparts=")
		if !ok {
			continue
		}
		if i := strings.IndexAny(rest, " \t\r"); i >= 0 {
			rest = rest[:i]
		}
		return parseMtdParts(rest, totalSectors)
	}
	return nil, errNoMtdParts
}

// parseMtdParts parses "id:size@offset(name),..." with sizes and offsets in
// sectors. Only the first device of a ";" separated list is used.
func parseMtdParts(s string, totalSectors uint64) ([]RawPartition, error) {
	s, _, _ = strings.Cut(s, ";")
	_, list, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("mtdparts %q: missing device id", s)
	}

	var parts []RawPartition
	var next uint64
	for _, def := range strings.Split(list, ",") {
		open := strings.IndexByte(def, '(')
		if open < 0 || !strings.HasSuffix(def, ")") {
			return nil, fmt.Errorf("mtdparts entry %q: missing name", def)
		}
		name, _, _ := strings.Cut(def[open+1:len(def)-1], ":")
		sizeStr, offStr, hasOffset := strings.Cut(def[:open], "@")

		offset := next
		if hasOffset {
			v, err := strconv.ParseUint(offStr, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("mtdparts entry %q: bad offset: %w", def, err)
			}
			offset = v
		}

		var size uint64
		if sizeStr == "-" {
			if totalSectors <= offset {
				return nil, fmt.Errorf("mtdparts entry %q: device size unknown or too small", def)
			}
			size = totalSectors - offset
		} else {
			v, err := strconv.ParseUint(sizeStr, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("mtdparts entry %q: bad size: %w", def, err)
			}
			size = v
		}

		parts = append(parts, RawPartition{Size: size, Offset: offset, Name: name})
		next = offset + size
	}
	return parts, nil
}
