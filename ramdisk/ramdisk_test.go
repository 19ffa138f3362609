package ramdisk

import (
	"encoding/binary"
	"testing"

	"nucleus/kerr"
)

// buildImage assembles a minimal ramdisk image containing the given
// named files, in the on-disk layout Open expects.
func buildImage(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	// Deterministic order for stable offsets/tests.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}

	header := make([]byte, HeaderSize)
	copy(header[0:8], Magic[:])

	entryTable := make([]byte, 0, len(names)*EntrySize)
	dataRegion := make([]byte, 0)
	offset := uint32(0)
	for _, name := range names {
		content := files[name]
		entry := make([]byte, EntrySize)
		copy(entry[0:NameLength], name)
		binary.LittleEndian.PutUint32(entry[NameLength:NameLength+4], offset)
		binary.LittleEndian.PutUint32(entry[NameLength+4:NameLength+8], uint32(len(content)))
		entryTable = append(entryTable, entry...)
		dataRegion = append(dataRegion, content...)
		offset += uint32(len(content))
	}

	binary.LittleEndian.PutUint32(header[8:12], uint32(HeaderSize+len(entryTable)+len(dataRegion)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(names)))

	img := append(header, entryTable...)
	img = append(img, dataRegion...)
	return img
}

func TestOpenAndLookupRoundTrip(t *testing.T) {
	img := buildImage(t, map[string][]byte{
		"init":    []byte("init-binary-bytes"),
		"drivers": []byte("pci xhci fb"),
	})

	rd, err := Open(img)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if len(rd.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(rd.Entries()))
	}

	data, err := rd.Lookup("init")
	if err != nil {
		t.Fatalf("lookup init failed: %v", err)
	}
	if string(data) != "init-binary-bytes" {
		t.Fatalf("init data = %q", data)
	}

	data, err = rd.Lookup("drivers")
	if err != nil {
		t.Fatalf("lookup drivers failed: %v", err)
	}
	if string(data) != "pci xhci fb" {
		t.Fatalf("drivers data = %q", data)
	}
}

func TestLookupMissingEntry(t *testing.T) {
	img := buildImage(t, map[string][]byte{"init": []byte("x")})
	rd, err := Open(img)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := rd.Lookup("nope"); !kerr.Is(err, kerr.ObjectDoesNotExist) {
		t.Fatalf("expected ObjectDoesNotExist, got %v", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	img := buildImage(t, map[string][]byte{"init": []byte("x")})
	img[0] = 'X'
	if _, err := Open(img); !kerr.Is(err, kerr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument for bad magic, got %v", err)
	}
}

func TestOpenRejectsTruncatedHeader(t *testing.T) {
	if _, err := Open([]byte{0x01, 0x02}); !kerr.Is(err, kerr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument for truncated image, got %v", err)
	}
}

func TestOpenRejectsEntryTableBeyondImage(t *testing.T) {
	img := buildImage(t, map[string][]byte{"init": []byte("x")})
	truncated := img[:HeaderSize+EntrySize-1]
	// Fix the size field so only the entry-table bound trips, isolating
	// the failure this test targets.
	binary.LittleEndian.PutUint32(truncated[8:12], uint32(len(truncated)))
	if _, err := Open(truncated); !kerr.Is(err, kerr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument for truncated entry table, got %v", err)
	}
}
