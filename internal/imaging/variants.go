package imaging

import (
	"image"
	"image/color"
)

// Variant tags, in default priority order. The orchestrator may stop early,
// so the cheapest-to-succeed transforms come first.
const (
	TagStandard     = "standard"
	TagGrayscale    = "grayscale"
	TagHighContrast = "high_contrast"
	TagSharpened    = "sharpened"
	TagRotated90    = "rotated_90"
	TagRotated180   = "rotated_180"
)

// DefaultTags is the full transform set in priority order.
var DefaultTags = []string{
	TagStandard,
	TagGrayscale,
	TagHighContrast,
	TagSharpened,
	TagRotated90,
	TagRotated180,
}

// Variant is one preprocessed rendering of the source image. Variants are
// generated once per request and shared read-only across engines.
type Variant struct {
	Tag      string
	Priority int
	Image    image.Image
}

// VariantConfig bounds variant generation.
type VariantConfig struct {
	// Tags lists enabled transforms in priority order. Empty means DefaultTags.
	Tags []string
	// MaxVariants caps the number of variants generated. Zero means no cap.
	MaxVariants int
}

// Variants derives the preprocessed copies of img, most-likely-to-succeed
// first. A transform that cannot be applied is skipped, never fatal. Output
// is deterministic for a given image and config.
func Variants(img *Image, cfg VariantConfig) []Variant {
	tags := cfg.Tags
	if len(tags) == 0 {
		tags = DefaultTags
	}

	variants := make([]Variant, 0, len(tags))
	for _, tag := range tags {
		if cfg.MaxVariants > 0 && len(variants) >= cfg.MaxVariants {
			break
		}
		out := applyTransform(img.Pixels, tag)
		if out == nil {
			continue
		}
		variants = append(variants, Variant{
			Tag:      tag,
			Priority: len(variants),
			Image:    out,
		})
	}
	return variants
}

// applyTransform returns nil when the transform does not apply to this image.
func applyTransform(src image.Image, tag string) image.Image {
	switch tag {
	case TagStandard:
		return src
	case TagGrayscale:
		return grayscale(src)
	case TagHighContrast:
		return highContrast(grayscale(src))
	case TagSharpened:
		return sharpen(grayscale(src))
	case TagRotated90:
		return rotate90(src)
	case TagRotated180:
		return rotate180(src)
	default:
		return nil
	}
}

func grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return dst
}

// highContrast stretches luma around the mean so faint bars separate from the
// background. Pixels are addressed by coordinate: src may be a sub-image
// whose Pix layout does not line up with a freshly allocated destination.
func highContrast(src *image.Gray) image.Image {
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil
	}

	var sum int64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += int64(src.GrayAt(x, y).Y)
		}
	}
	mean := float64(sum) / float64(bounds.Dx()*bounds.Dy())

	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := mean + (float64(src.GrayAt(x, y).Y)-mean)*2.0
			dst.SetGray(x, y, color.Gray{Y: clampByte(v)})
		}
	}
	return dst
}

// sharpen applies a 3x3 unsharp kernel. Images smaller than the kernel are
// skipped.
func sharpen(src *image.Gray) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() < 3 || bounds.Dy() < 3 {
		return nil
	}

	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.SetGray(x, y, src.GrayAt(x, y))
		}
	}
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := int(src.GrayAt(x, y).Y)
			neighbors := int(src.GrayAt(x-1, y).Y) + int(src.GrayAt(x+1, y).Y) +
				int(src.GrayAt(x, y-1).Y) + int(src.GrayAt(x, y+1).Y)
			v := 5*center - neighbors
			dst.SetGray(x, y, color.Gray{Y: clampByte(float64(v))})
		}
	}
	return dst
}

// rotate90 rotates clockwise. Degenerate sizes are skipped.
func rotate90(src image.Image) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() < 2 || bounds.Dy() < 2 {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dy(), bounds.Dx()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(bounds.Max.Y-1-y, x-bounds.Min.X, src.At(x, y))
		}
	}
	return dst
}

func rotate180(src image.Image) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() < 2 || bounds.Dy() < 2 {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(bounds.Max.X-1-x, bounds.Max.Y-1-y, src.At(x, y))
		}
	}
	return dst
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
