package fbconsole

import (
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"nucleus/bootinfo"
)

const (
	charWidth  = 7
	charHeight = 13
)

// Console is a scrolling text console backed by a gg.Context RGBA
// backbuffer that gets flushed into a raw framebuffer Surface, the way
// drawGGStartupCircle composites onto the Bochs backbuffer and
// flushGGToFramebuffer writes it back out, generalized from a one-shot
// drawing to continuous character output with the cursor/scroll
// bookkeeping framebuffer_text.go keeps in fbinfo.CharsX/CharsY.
type Console struct {
	mu sync.Mutex

	fb      *bootinfo.FramebufferInfo
	surface Surface
	ctx     *gg.Context
	face    font.Face

	cols, rows int
	col, row   int

	fg, bg color.Color
}

// New returns a Console sized to fb's dimensions, rendering into
// surface. The console starts cleared and with the cursor at (0, 0).
func New(fb *bootinfo.FramebufferInfo, surface Surface) *Console {
	c := &Console{
		fb:      fb,
		surface: surface,
		ctx:     gg.NewContext(int(fb.Width), int(fb.Height)),
		face:    basicfont.Face7x13,
		cols:    int(fb.Width) / charWidth,
		rows:    int(fb.Height) / charHeight,
		fg:      color.RGBA{0x33, 0xff, 0x33, 0xff},
		bg:      color.RGBA{0x00, 0x00, 0x20, 0xff},
	}
	c.clearLocked()
	return c
}

// WriteString writes s to the console, handling newlines and wrapping
// and scrolling the way FramebufferPuts/AdvanceCursor/HandleNewline do,
// then flushes the result to the surface.
func (c *Console) WriteString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < len(s); i++ {
		c.putLocked(s[i])
	}
	c.flushLocked()
}

func (c *Console) putLocked(ch byte) {
	if ch == '\n' {
		c.newlineLocked()
		return
	}
	if ch < 32 || ch >= 127 {
		return
	}
	x := c.col * charWidth
	y := c.row * charHeight
	c.ctx.SetColor(c.bg)
	c.ctx.DrawRectangle(float64(x), float64(y), charWidth, charHeight)
	c.ctx.Fill()

	d := &font.Drawer{
		Dst:  c.ctx.Image().(*image.RGBA),
		Src:  image.NewUniform(c.fg),
		Face: c.face,
		Dot:  fixed.P(x, y+charHeight-3),
	}
	d.DrawString(string(ch))

	c.advanceLocked()
}

func (c *Console) advanceLocked() {
	c.col++
	if c.col >= c.cols {
		c.col = 0
		c.row++
		if c.row >= c.rows {
			c.scrollLocked()
			c.row = c.rows - 1
		}
	}
}

func (c *Console) newlineLocked() {
	c.col = 0
	c.row++
	if c.row >= c.rows {
		c.scrollLocked()
		c.row = c.rows - 1
	}
}

// scrollLocked shifts the backbuffer up by one text row and clears the
// newly exposed bottom row, mirroring ScrollScreenUp's scanline-copy
// loop but operating on the in-memory RGBA image rather than the raw
// framebuffer, since the raw copy happens once at flush time.
func (c *Console) scrollLocked() {
	img := c.ctx.Image().(*image.RGBA)
	rowBytes := img.Stride * charHeight
	copy(img.Pix, img.Pix[rowBytes:])

	lastRowStart := (c.rows - 1) * charHeight
	c.ctx.SetColor(c.bg)
	c.ctx.DrawRectangle(0, float64(lastRowStart), float64(c.fb.Width), charHeight)
	c.ctx.Fill()
}

func (c *Console) clearLocked() {
	c.ctx.SetColor(c.bg)
	c.ctx.Clear()
	c.col, c.row = 0, 0
}

// Clear blanks the console and resets the cursor to the top-left.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.flushLocked()
}

// flushLocked copies the RGBA backbuffer into the framebuffer surface,
// converting pixel layout per fb.PixelFormat the way
// flushGGToFramebuffer swaps RGBA into the device's BGRX layout.
func (c *Console) flushLocked() {
	img := c.ctx.Image().(*image.RGBA)
	dst := c.surface.Bytes()

	width := int(c.fb.Width)
	height := int(c.fb.Height)
	stride := int(c.fb.Stride) * 4

	bgr := c.fb.PixelFormat == bootinfo.PixelFormatBGR32

	for y := 0; y < height; y++ {
		srcRow := img.Pix[y*img.Stride:]
		dstOff := y * stride
		if dstOff+width*4 > len(dst) {
			break
		}
		dstRow := dst[dstOff:]
		for x := 0; x < width; x++ {
			si := x * 4
			di := x * 4
			r, g, b, a := srcRow[si+0], srcRow[si+1], srcRow[si+2], srcRow[si+3]
			if bgr {
				dstRow[di+0], dstRow[di+1], dstRow[di+2], dstRow[di+3] = b, g, r, a
			} else {
				dstRow[di+0], dstRow[di+1], dstRow[di+2], dstRow[di+3] = r, g, b, a
			}
		}
	}
}
