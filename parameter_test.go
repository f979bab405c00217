package main

import (
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseMtdParts(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		total   uint64
		want    []RawPartition
		wantErr string
	}{
		{
			name: "explicit offsets",
			in:   "rk29xxnand:0x2000@0x2000(misc),0x8000@0x4000(kernel)",
			want: []RawPartition{
				{Size: 0x2000, Offset: 0x2000, Name: "misc"},
				{Size: 0x8000, Offset: 0x4000, Name: "kernel"},
			},
		},
		{
			name: "missing offset continues",
			in:   "sd:0x100@0x40(a),0x200(b),0x80(c)",
			want: []RawPartition{
				{Size: 0x100, Offset: 0x40, Name: "a"},
				{Size: 0x200, Offset: 0x140, Name: "b"},
				{Size: 0x80, Offset: 0x340, Name: "c"},
			},
		},
		{
			name:  "grow",
			in:    "sd:0x100@0x100(a),-(rest:grow)",
			total: 0x1000,
			want: []RawPartition{
				{Size: 0x100, Offset: 0x100, Name: "a"},
				{Size: 0xE00, Offset: 0x200, Name: "rest"},
			},
		},
		{
			name: "only first device",
			in:   "sd:0x10@0(a);nand:0x20@0(b)",
			want: []RawPartition{{Size: 0x10, Offset: 0, Name: "a"}},
		},
		{name: "grow without size", in: "sd:-@0x100(rest)", wantErr: "device size unknown"},
		{name: "no device id", in: "0x10@0(a)", wantErr: "missing device id"},
		{name: "no name", in: "sd:0x10@0", wantErr: "missing name"},
		{name: "bad size", in: "sd:zz@0(a)", wantErr: "bad size"},
		{name: "bad offset", in: "sd:0x10@zz(a)", wantErr: "bad offset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMtdParts(tt.in, tt.total)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func parameterBlock(text string, length uint32) []byte {
	block := make([]byte, 8+len(text)+16)
	copy(block, "PARM")
	binary.LittleEndian.PutUint32(block[4:], length)
	copy(block[8:], text)
	return block
}

func TestParseParameterBlock(t *testing.T) {
	text := "CMDLINE:mtdparts=nand:0x10@0x10(a)\r\n"
	parts, err := parseParameterBlock(parameterBlock(text, uint32(len(text))), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 1 || parts[0] != (RawPartition{Size: 0x10, Offset: 0x10, Name: "a"}) {
		t.Fatalf("unexpected partitions %+v", parts)
	}

	// Text past the declared length is ignored.
	text = "FIRMWARE_VER:1\nCMDLINE:mtdparts=nand:0x10@0x10(a)\n"
	if _, err := parseParameterBlock(parameterBlock(text, 15), 0); !errors.Is(err, errNoMtdParts) {
		t.Fatalf("expected errNoMtdParts, got %v", err)
	}

	if _, err := parseParameterBlock([]byte("KRNL\x00\x00\x00\x00"), 0); err == nil {
		t.Fatalf("expected error for missing magic")
	}
}
