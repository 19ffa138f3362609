// Command mkramdisk packs a list of files into the ramdisk image
// format the kernel's ramdisk package reads (§6, nucleus/ramdisk).
// File contents are read concurrently with golang.org/x/sync/errgroup
// since each file is an independent, potentially slow disk read, then
// assembled into the image sequentially so entry offsets stay stable.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"nucleus/ramdisk"
)

type loadedFile struct {
	name string
	data []byte
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <output> <file>...\n", os.Args[0])
		os.Exit(1)
	}
	out := os.Args[1]
	inputs := os.Args[2:]

	files, err := loadAll(inputs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	image, err := build(files)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := os.WriteFile(out, image, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadAll reads every input path concurrently, preserving input order
// in the result regardless of completion order.
func loadAll(paths []string) ([]loadedFile, error) {
	files := make([]loadedFile, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("reading %s: %w", p, err)
			}
			files[i] = loadedFile{name: filepath.Base(p), data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// build assembles files into a ramdisk image: header, entry table,
// then packed file data, matching the layout ramdisk.Open expects.
func build(files []loadedFile) ([]byte, error) {
	for _, f := range files {
		if len(f.name) >= ramdisk.NameLength {
			return nil, fmt.Errorf("name %q exceeds %d bytes", f.name, ramdisk.NameLength-1)
		}
	}

	entryTable := make([]byte, len(files)*ramdisk.EntrySize)
	var dataRegion []byte
	offset := uint32(0)
	for i, f := range files {
		off := i * ramdisk.EntrySize
		entry := entryTable[off : off+ramdisk.EntrySize]
		copy(entry[0:ramdisk.NameLength], f.name)
		binary.LittleEndian.PutUint32(entry[ramdisk.NameLength:ramdisk.NameLength+4], offset)
		binary.LittleEndian.PutUint32(entry[ramdisk.NameLength+4:ramdisk.NameLength+8], uint32(len(f.data)))
		dataRegion = append(dataRegion, f.data...)
		offset += uint32(len(f.data))
	}

	header := make([]byte, ramdisk.HeaderSize)
	copy(header[0:8], ramdisk.Magic[:])
	total := ramdisk.HeaderSize + len(entryTable) + len(dataRegion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(total))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(files)))

	image := make([]byte, 0, total)
	image = append(image, header...)
	image = append(image, entryTable...)
	image = append(image, dataRegion...)
	return image, nil
}
