package imaging

import (
	"context"
	"image"
	"image/color"
	"image/draw"
)

// DefaultTolerance is the colour distance under which a pixel counts as background.
const DefaultTolerance = 48

// Remover makes the background of an image transparent.
type Remover interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// BorderRemover treats the colour found along the image border as background and clears
// every pixel connected to the border whose colour is within Tolerance of it. It suits
// product shots and logos on a plain backdrop.
type BorderRemover struct {
	Tolerance int
}

// NewBorderRemover creates a BorderRemover. A non-positive tolerance uses DefaultTolerance.
func NewBorderRemover(tolerance int) *BorderRemover {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	return &BorderRemover{Tolerance: tolerance}
}

func (b *BorderRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	out := toNRGBA(img)
	bounds := out.Bounds()

	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return out, nil
	}

	bg := borderColor(out)
	limit := b.Tolerance * b.Tolerance

	visited := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	push := func(x, y int) {
		i := y*w + x
		if visited[i] {
			return
		}

		visited[i] = true

		if isBackground(out.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y), bg, limit) {
			queue = append(queue, i)
		}
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}

	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for n := 0; len(queue) > 0; n++ {
		// Large images take a while; honour cancellation now and then.
		if n%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		x, y := i%w, i/w
		out.SetNRGBA(bounds.Min.X+x, bounds.Min.Y+y, color.NRGBA{})

		if x > 0 {
			push(x-1, y)
		}

		if x < w-1 {
			push(x+1, y)
		}

		if y > 0 {
			push(x, y-1)
		}

		if y < h-1 {
			push(x, y+1)
		}
	}

	return out, nil
}

// borderColor is the average opaque colour of the four corners.
func borderColor(img *image.NRGBA) color.NRGBA {
	b := img.Bounds()
	corners := []color.NRGBA{
		img.NRGBAAt(b.Min.X, b.Min.Y),
		img.NRGBAAt(b.Max.X-1, b.Min.Y),
		img.NRGBAAt(b.Min.X, b.Max.Y-1),
		img.NRGBAAt(b.Max.X-1, b.Max.Y-1),
	}

	var r, g, bl, n int

	for _, c := range corners {
		if c.A == 0 {
			continue
		}

		r += int(c.R)
		g += int(c.G)
		bl += int(c.B)
		n++
	}

	if n == 0 {
		return color.NRGBA{}
	}

	return color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: 0xff}
}

// isBackground compares squared RGB distance; transparent pixels are always background.
func isBackground(c, bg color.NRGBA, limit int) bool {
	if c.A == 0 {
		return true
	}

	dr := int(c.R) - int(bg.R)
	dg := int(c.G) - int(bg.G)
	db := int(c.B) - int(bg.B)

	return dr*dr+dg*dg+db*db <= limit
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	return out
}
