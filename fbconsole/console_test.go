package fbconsole

import (
	"testing"

	"nucleus/addr"
	"nucleus/bootinfo"
)

type fakeSurface struct {
	buf []byte
}

func newFakeSurface(stride, height uint32) *fakeSurface {
	return &fakeSurface{buf: make([]byte, int(stride)*int(height)*4)}
}

func (s *fakeSurface) Bytes() []byte { return s.buf }

func newTestFramebuffer() *bootinfo.FramebufferInfo {
	return &bootinfo.FramebufferInfo{
		Base:        addr.PA(0x1000_0000),
		Width:       160,
		Height:      104,
		Stride:      160,
		PixelFormat: bootinfo.PixelFormatRGB32,
	}
}

func TestNewConsoleStartsClearedAtOrigin(t *testing.T) {
	fb := newTestFramebuffer()
	surf := newFakeSurface(fb.Stride, fb.Height)
	c := New(fb, surf)
	if c.col != 0 || c.row != 0 {
		t.Fatalf("cursor = (%d, %d), want (0, 0)", c.col, c.row)
	}
	if c.cols != int(fb.Width)/charWidth || c.rows != int(fb.Height)/charHeight {
		t.Fatalf("grid = (%d, %d) cols/rows, unexpected for %dx%d framebuffer", c.cols, c.rows, fb.Width, fb.Height)
	}
}

func TestWriteStringAdvancesCursor(t *testing.T) {
	fb := newTestFramebuffer()
	surf := newFakeSurface(fb.Stride, fb.Height)
	c := New(fb, surf)
	c.WriteString("hi")
	if c.col != 2 || c.row != 0 {
		t.Fatalf("cursor after \"hi\" = (%d, %d), want (2, 0)", c.col, c.row)
	}
}

func TestWriteStringNewlineResetsColumn(t *testing.T) {
	fb := newTestFramebuffer()
	surf := newFakeSurface(fb.Stride, fb.Height)
	c := New(fb, surf)
	c.WriteString("hi\nthere")
	if c.col != 5 || c.row != 1 {
		t.Fatalf("cursor after newline = (%d, %d), want (5, 1)", c.col, c.row)
	}
}

func TestWriteStringWrapsAtRightEdge(t *testing.T) {
	fb := newTestFramebuffer()
	surf := newFakeSurface(fb.Stride, fb.Height)
	c := New(fb, surf)
	line := make([]byte, c.cols+3)
	for i := range line {
		line[i] = 'x'
	}
	c.WriteString(string(line))
	if c.row != 1 || c.col != 3 {
		t.Fatalf("cursor after wrap = (%d, %d), want (1, 3)", c.row, c.col)
	}
}

func TestWriteStringScrollsAtBottomRow(t *testing.T) {
	fb := newTestFramebuffer()
	surf := newFakeSurface(fb.Stride, fb.Height)
	c := New(fb, surf)
	for i := 0; i < c.rows+2; i++ {
		c.WriteString("x\n")
	}
	if c.row != c.rows-1 {
		t.Fatalf("row after overflowing %d rows = %d, want %d", c.rows, c.row, c.rows-1)
	}
}

func TestFlushWritesNonZeroPixelsAfterWrite(t *testing.T) {
	fb := newTestFramebuffer()
	surf := newFakeSurface(fb.Stride, fb.Height)
	c := New(fb, surf)
	c.WriteString("X")

	nonZero := false
	for _, b := range surf.Bytes() {
		if b != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("expected flush to write non-zero pixel data for a drawn glyph")
	}
}

func TestFlushSwapsChannelsForBGRFormat(t *testing.T) {
	fb := newTestFramebuffer()
	fb.PixelFormat = bootinfo.PixelFormatBGR32
	surf := newFakeSurface(fb.Stride, fb.Height)
	c := New(fb, surf)
	c.Clear()

	// Background is a distinguishable color; confirm the red/blue
	// channels were swapped relative to the in-memory RGBA backbuffer.
	img := c.ctx.Image()
	r, g, b, a := img.At(0, 0).RGBA()
	out := surf.Bytes()
	if out[0] != byte(b>>8) || out[2] != byte(r>>8) || out[1] != byte(g>>8) || out[3] != byte(a>>8) {
		t.Fatalf("expected BGR swap in output bytes, got %v for src rgba (%d,%d,%d,%d)", out[:4], r>>8, g>>8, b>>8, a>>8)
	}
}
