package core

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	mrand "math/rand"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// codeAlphabet excludes 0, o and O to keep codes unambiguous when read from
// a distorted image.
var codeAlphabet = []byte("123456789abcdefghijklmnpqrstuvwxyzABCDEFGHIJKLMNPQRSTUVWXYZ")

// GenerateCode returns a random challenge code of the given length drawn
// from the fixed alphanumeric alphabet.
func GenerateCode(size int) string {
	if size <= 0 {
		size = defaultCodeLength
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	out := make([]byte, size)
	for i, v := range b {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return string(out)
}

const defaultCodeLength = 6

// CaptchaRenderer draws a challenge code as a distorted bitmap: random-color
// glyphs, optional random rotation in [-45°, 45°], and random interference
// line segments over a solid background. Rendering is deterministic for a
// given (code, seed) pair.
type CaptchaRenderer struct {
	Width      int
	Height     int
	Lines      int
	FontSize   int
	Tilt       bool
	Background color.RGBA
}

// DefaultCaptchaRenderer returns the stock 80x35 renderer with 5 interference
// lines, 25pt glyphs, tilt enabled and a light-gray background.
func DefaultCaptchaRenderer() CaptchaRenderer {
	return CaptchaRenderer{
		Width:      80,
		Height:     35,
		Lines:      5,
		FontSize:   25,
		Tilt:       true,
		Background: color.RGBA{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff},
	}
}

// Render draws code into a fresh image using seed for every random choice.
func (r CaptchaRenderer) Render(code string, seed int64) *image.RGBA {
	rng := mrand.New(mrand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.SetRGBA(x, y, r.Background)
		}
	}

	// One slot per glyph plus one slot of total margin, as in the classic
	// AWT renderer layout.
	slot := r.Width / (len(code) + 1)
	baseline := r.Height * 3 / 4
	scale := float64(r.FontSize) / float64(basicfont.Face7x13.Height)

	for i, ch := range code {
		col := randomColor(rng)
		theta := 0.0
		if r.Tilt {
			theta = float64(rng.Intn(91)-45) * math.Pi / 180
		}
		cx := i*slot + slot/2 + int(scale*3.5)
		cy := baseline - int(scale*4)
		drawGlyph(img, glyphMask(ch, col), cx, cy, scale, theta)
	}

	for i := 0; i < r.Lines; i++ {
		drawSegment(img, randomColor(rng),
			rng.Intn(r.Width), rng.Intn(r.Height),
			rng.Intn(r.Width), rng.Intn(r.Height))
	}
	return img
}

// DataURL renders code and encodes the PNG as a base64 data URL.
func (r CaptchaRenderer) DataURL(code string, seed int64) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Render(code, seed)); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func randomColor(rng *mrand.Rand) color.RGBA {
	return color.RGBA{
		R: uint8(rng.Intn(256)),
		G: uint8(rng.Intn(256)),
		B: uint8(rng.Intn(256)),
		A: 0xff,
	}
}

// glyphMask rasterizes a single character at the face's native size.
func glyphMask(ch rune, col color.RGBA) *image.RGBA {
	face := basicfont.Face7x13
	mask := image.NewRGBA(image.Rect(0, 0, face.Advance, face.Height))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(string(ch))
	return mask
}

// drawGlyph blits mask onto dst centered at (cx, cy), scaled and rotated by
// theta. Destination pixels are inverse-mapped into glyph space with
// nearest-neighbor sampling.
func drawGlyph(dst *image.RGBA, mask *image.RGBA, cx, cy int, scale, theta float64) {
	mb := mask.Bounds()
	halfW := float64(mb.Dx()) / 2
	halfH := float64(mb.Dy()) / 2
	sin, cos := math.Sincos(theta)
	// Radius covering the scaled glyph's half-diagonal under any rotation.
	radius := int(math.Ceil(scale * math.Hypot(halfW, halfH)))

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			gx := (cos*float64(dx)+sin*float64(dy))/scale + halfW
			gy := (-sin*float64(dx)+cos*float64(dy))/scale + halfH
			sx, sy := int(gx), int(gy)
			if sx < mb.Min.X || sx >= mb.Max.X || sy < mb.Min.Y || sy >= mb.Max.Y {
				continue
			}
			c := mask.RGBAAt(sx, sy)
			if c.A == 0 {
				continue
			}
			px, py := cx+dx, cy+dy
			if image.Pt(px, py).In(dst.Bounds()) {
				dst.SetRGBA(px, py, c)
			}
		}
	}
}

// drawSegment draws a straight interference line by sampling along it.
func drawSegment(dst *image.RGBA, col color.RGBA, x0, y0, x1, y1 int) {
	steps := int(math.Max(math.Abs(float64(x1-x0)), math.Abs(float64(y1-y0))))
	if steps == 0 {
		dst.SetRGBA(x0, y0, col)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		if image.Pt(x, y).In(dst.Bounds()) {
			dst.SetRGBA(x, y, col)
		}
	}
}
