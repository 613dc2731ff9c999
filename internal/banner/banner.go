package banner

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	Size       = 1024
	AvatarSize = 480
	NameY      = 850
	NameSize   = 80
	TitleSize  = 56

	welcomeBackground = "welcome.png"
	goodbyeBackground = "goodbye.png"
)

// Kind selects the banner variant.
type Kind int

const (
	Welcome Kind = iota
	Goodbye
)

func (k Kind) title() string {
	if k == Goodbye {
		return "Goodbye!"
	}
	return "Welcome!"
}

func (k Kind) background() string {
	if k == Goodbye {
		return goodbyeBackground
	}
	return welcomeBackground
}

// Renderer draws greeting banners. Backgrounds are read from assetsDir when
// present; a gradient is used otherwise. It is safe for concurrent use: the
// parsed fonts are shared and each Render builds its own faces.
type Renderer struct {
	assetsDir string
	nameFont  *truetype.Font
	titleFont *truetype.Font
}

func New(assetsDir string) (*Renderer, error) {
	nameFont, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to load name font: %w", err)
	}
	titleFont, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to load title font: %w", err)
	}
	return &Renderer{assetsDir: assetsDir, nameFont: nameFont, titleFont: titleFont}, nil
}

// Render returns a PNG banner for the member. avatar may be nil.
func (r *Renderer) Render(kind Kind, displayName string, avatar image.Image) ([]byte, error) {
	dc := gg.NewContext(Size, Size)
	r.drawBackground(dc, kind)

	if avatar != nil {
		drawAvatar(dc, avatar)
	}

	titleFace := newFace(r.titleFont, TitleSize)
	defer titleFace.Close()
	dc.SetFontFace(titleFace)
	dc.SetRGB255(255, 255, 255)
	dc.DrawStringAnchored(kind.title(), Size/2, 140, 0.5, 0.5)

	nameFace := newFace(r.nameFont, NameSize)
	defer nameFace.Close()
	dc.SetFontFace(nameFace)
	dc.SetRGB255(219, 82, 117)
	dc.DrawStringAnchored(fitName(dc, displayName, Size-80), Size/2, NameY, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawBackground(dc *gg.Context, kind Kind) {
	if r.assetsDir != "" {
		path := filepath.Join(r.assetsDir, kind.background())
		if _, err := os.Stat(path); err == nil {
			if img, err := gg.LoadImage(path); err == nil {
				bounds := img.Bounds()
				dc.Push()
				dc.Scale(float64(Size)/float64(bounds.Dx()), float64(Size)/float64(bounds.Dy()))
				dc.DrawImage(img, 0, 0)
				dc.Pop()
				return
			}
		}
	}

	grad := gg.NewLinearGradient(0, 0, 0, Size)
	grad.AddColorStop(0, colorRGB(44, 22, 58))
	grad.AddColorStop(1, colorRGB(18, 14, 32))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, Size, Size)
	dc.Fill()
}

func drawAvatar(dc *gg.Context, avatar image.Image) {
	scaled := gg.NewContext(AvatarSize, AvatarSize)
	bounds := avatar.Bounds()
	scaled.Scale(float64(AvatarSize)/float64(bounds.Dx()), float64(AvatarSize)/float64(bounds.Dy()))
	scaled.DrawImage(avatar, 0, 0)

	x := float64(Size-AvatarSize) / 2
	y := float64(Size-AvatarSize)/2 - 20
	radius := float64(AvatarSize) / 2

	dc.Push()
	dc.DrawCircle(x+radius, y+radius, radius+8)
	dc.SetRGB255(255, 255, 255)
	dc.Fill()
	dc.DrawCircle(x+radius, y+radius, radius)
	dc.Clip()
	dc.DrawImage(scaled.Image(), int(x), int(y))
	dc.ResetClip()
	dc.Pop()
}

// fitName shortens the name until it fits maxWidth.
func fitName(dc *gg.Context, name string, maxWidth float64) string {
	runes := []rune(name)
	for len(runes) > 1 {
		w, _ := dc.MeasureString(string(runes))
		if w <= maxWidth {
			break
		}
		runes = runes[:len(runes)-1]
		if w2, _ := dc.MeasureString(string(runes) + "…"); w2 <= maxWidth {
			return string(runes) + "…"
		}
	}
	return string(runes)
}

// newFace returns a face for one render; truetype faces keep a glyph buffer
// and must not be shared between goroutines.
func newFace(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func colorRGB(r, g, b uint8) color.Color {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
