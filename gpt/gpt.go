// Package gpt parses a GUID Partition Table, the disk-partitioning
// format the seed bootloader reads to find the kernel and ramdisk
// partitions, grounded on original_source's lib/gpt/src/lib.rs
// (GptHeader/PartitionEntry field layout and its signature/CRC
// validation). CRC-32 is computed with the standard library's
// hash/crc32 using the IEEE polynomial GPT specifies; no third-party
// checksum library in the example pack implements IEEE CRC-32 any
// differently, so there is nothing an ecosystem dependency would add
// here.
package gpt

import (
	"encoding/binary"
	"hash/crc32"

	"nucleus/kerr"
)

// Signature is the 8-byte magic at the start of a GPT header.
var Signature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

const (
	headerLayoutSize = 92
	guidSize         = 16
	entryLayoutSize  = 128
	partitionNameLen = 72
)

// Guid is a 128-bit GUID, stored exactly as the on-disk mixed-endian
// bytes (no field-by-field byte swapping, matching the original's
// opaque byte array).
type Guid [guidSize]byte

// Header is a parsed GPT header (UEFI spec table, §5.3.2).
type Header struct {
	Revision               uint32
	HeaderSize             uint32
	HeaderCRC32            uint32
	MyLBA                  uint64
	AlternateLBA           uint64
	FirstUsableLBA         uint64
	LastUsableLBA          uint64
	DiskGUID               Guid
	PartitionEntryLBA      uint64
	NumPartitionEntries    uint32
	SizeOfPartitionEntry   uint32
	PartitionEntryArrayCRC uint32
}

// PartitionEntry is one decoded entry from the partition entry array.
type PartitionEntry struct {
	TypeGUID   Guid
	UniqueGUID Guid
	StartLBA   uint64
	EndLBA     uint64
	Attributes uint64
	Name       string
}

// ParseHeader validates and decodes the GPT header occupying the start
// of block (one LBA's worth of bytes, signature through the CRC
// fields). The CRC is verified over the first HeaderSize bytes with
// the stored HeaderCRC32 field treated as zero, per the UEFI spec.
func ParseHeader(block []byte) (Header, *kerr.Error) {
	var h Header
	if len(block) < headerLayoutSize {
		return h, kerr.New("gpt", kerr.InvalidArgument, "block shorter than GPT header")
	}
	var sig [8]byte
	copy(sig[:], block[0:8])
	if sig != Signature {
		return h, kerr.New("gpt", kerr.InvalidArgument, "bad GPT signature")
	}

	h.Revision = binary.LittleEndian.Uint32(block[8:12])
	h.HeaderSize = binary.LittleEndian.Uint32(block[12:16])
	h.HeaderCRC32 = binary.LittleEndian.Uint32(block[16:20])
	h.MyLBA = binary.LittleEndian.Uint64(block[24:32])
	h.AlternateLBA = binary.LittleEndian.Uint64(block[32:40])
	h.FirstUsableLBA = binary.LittleEndian.Uint64(block[40:48])
	h.LastUsableLBA = binary.LittleEndian.Uint64(block[48:56])
	copy(h.DiskGUID[:], block[56:72])
	h.PartitionEntryLBA = binary.LittleEndian.Uint64(block[72:80])
	h.NumPartitionEntries = binary.LittleEndian.Uint32(block[80:84])
	h.SizeOfPartitionEntry = binary.LittleEndian.Uint32(block[84:88])
	h.PartitionEntryArrayCRC = binary.LittleEndian.Uint32(block[88:92])

	if int(h.HeaderSize) < headerLayoutSize || int(h.HeaderSize) > len(block) {
		return h, kerr.New("gpt", kerr.InvalidArgument, "invalid GPT header_size")
	}

	region := make([]byte, h.HeaderSize)
	copy(region, block[:h.HeaderSize])
	binary.LittleEndian.PutUint32(region[16:20], 0)
	if crc32.ChecksumIEEE(region) != h.HeaderCRC32 {
		return h, kerr.New("gpt", kerr.InvalidArgument, "GPT header CRC mismatch")
	}

	return h, nil
}

// ParsePartitionEntries validates and decodes h's partition entry
// array from data. data must hold at least
// NumPartitionEntries*SizeOfPartitionEntry bytes, and its CRC-32 must
// match h.PartitionEntryArrayCRC.
func ParsePartitionEntries(h Header, data []byte) ([]PartitionEntry, *kerr.Error) {
	want := int(h.NumPartitionEntries) * int(h.SizeOfPartitionEntry)
	if want > len(data) {
		return nil, kerr.New("gpt", kerr.InvalidArgument, "partition entry array shorter than declared")
	}
	region := data[:want]
	if crc32.ChecksumIEEE(region) != h.PartitionEntryArrayCRC {
		return nil, kerr.New("gpt", kerr.InvalidArgument, "partition entry array CRC mismatch")
	}

	entries := make([]PartitionEntry, 0, h.NumPartitionEntries)
	stride := int(h.SizeOfPartitionEntry)
	for i := uint32(0); i < h.NumPartitionEntries; i++ {
		off := int(i) * stride
		raw := region[off : off+entryLayoutSize]

		var e PartitionEntry
		copy(e.TypeGUID[:], raw[0:16])
		copy(e.UniqueGUID[:], raw[16:32])
		e.StartLBA = binary.LittleEndian.Uint64(raw[32:40])
		e.EndLBA = binary.LittleEndian.Uint64(raw[40:48])
		e.Attributes = binary.LittleEndian.Uint64(raw[48:56])
		e.Name = decodeName(raw[56 : 56+partitionNameLen])

		var zeroGUID Guid
		if e.TypeGUID == zeroGUID {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeName(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
