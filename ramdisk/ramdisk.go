// Package ramdisk reads the flat ramdisk image the seed bootloader
// hands the kernel: a magic header, a packed array of file entries, and
// the file data itself, grounded on original_source's
// seed/seed_ramdisk/src/lib.rs (RamdiskHeader/RamdiskEntry layout) and
// seed/seed_riscv/src/fs/ramdisk.rs (lookup-by-name over the entry
// table, data offsets relative to the end of the entry table).
package ramdisk

import (
	"encoding/binary"

	"nucleus/kerr"
)

// Magic is the 8-byte signature at the start of a ramdisk image.
var Magic = [8]byte{'R', 'A', 'M', 'D', 'I', 'S', 'K', '_'}

const (
	HeaderSize  = 16 // magic[8] + size u32 + num_entries u32
	NameLength  = 32
	EntrySize   = NameLength + 4 + 4 // name + offset u32 + size u32
)

// Entry describes one file packed into the ramdisk.
type Entry struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Ramdisk is a read-only view over an in-memory ramdisk image. It does
// not copy data; Entries/Lookup return sub-slices of the original.
type Ramdisk struct {
	data    []byte
	entries []Entry
}

// Open parses the header and entry table at the start of data. It
// returns InvalidArgument if the magic does not match or the image is
// too short to hold the declared entry table.
func Open(data []byte) (*Ramdisk, *kerr.Error) {
	if len(data) < HeaderSize {
		return nil, kerr.New("ramdisk", kerr.InvalidArgument, "image shorter than header")
	}
	var magic [8]byte
	copy(magic[:], data[0:8])
	if magic != Magic {
		return nil, kerr.New("ramdisk", kerr.InvalidArgument, "bad ramdisk magic")
	}
	size := binary.LittleEndian.Uint32(data[8:12])
	numEntries := binary.LittleEndian.Uint32(data[12:16])

	dataRegion := HeaderSize + int(numEntries)*EntrySize
	if dataRegion > len(data) {
		return nil, kerr.New("ramdisk", kerr.InvalidArgument, "entry table exceeds image size")
	}
	if int(size) > len(data) {
		return nil, kerr.New("ramdisk", kerr.InvalidArgument, "declared size exceeds image size")
	}

	entries := make([]Entry, 0, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		off := HeaderSize + int(i)*EntrySize
		raw := data[off : off+EntrySize]
		name := decodeName(raw[0:NameLength])
		entryOffset := binary.LittleEndian.Uint32(raw[NameLength : NameLength+4])
		entrySizeBytes := binary.LittleEndian.Uint32(raw[NameLength+4 : NameLength+8])
		entries = append(entries, Entry{Name: name, Offset: entryOffset, Size: entrySizeBytes})
	}

	return &Ramdisk{data: data[:size], entries: entries}, nil
}

func decodeName(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

// Entries returns every file descriptor in the ramdisk, in on-disk
// order.
func (r *Ramdisk) Entries() []Entry {
	return r.entries
}

// Lookup returns the file data for name, or ObjectDoesNotExist if no
// entry matches.
func (r *Ramdisk) Lookup(name string) ([]byte, *kerr.Error) {
	dataRegion := HeaderSize + len(r.entries)*EntrySize
	for _, e := range r.entries {
		if e.Name != name {
			continue
		}
		start := dataRegion + int(e.Offset)
		end := start + int(e.Size)
		if start < 0 || end > len(r.data) || start > end {
			return nil, kerr.New("ramdisk", kerr.InvalidArgument, "entry data out of bounds")
		}
		return r.data[start:end], nil
	}
	return nil, kerr.New("ramdisk", kerr.ObjectDoesNotExist, "no such ramdisk entry: "+name)
}
