// Package overlaymask rasterizes the alpha-mask and shadow auxiliary images
// the video-overlay processor feeds into the external tool's filter graph
// for circular and rounded-rectangle picture-in-picture shapes.
package overlaymask

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Circle rasterizes a full-opacity circular alpha mask inscribed in a
// width x height canvas.
func Circle(width, height int) image.Image {
	mask := image.NewRGBA(image.Rect(0, 0, width, height))
	cx, cy := float64(width)/2, float64(height)/2
	rx, ry := cx, cy
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			if dx*dx+dy*dy <= 1.0 {
				mask.Set(x, y, color.White)
			}
		}
	}
	return mask
}

// RoundedRect rasterizes a rounded-rectangle alpha mask with the given
// corner radius.
func RoundedRect(width, height, radius int) image.Image {
	mask := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(mask, mask.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	if radius <= 0 {
		return mask
	}
	r := radius
	corners := []image.Point{{r, r}, {width - r - 1, r}, {r, height - r - 1}, {width - r - 1, height - r - 1}}
	for _, c := range corners {
		for y := -r; y <= r; y++ {
			for x := -r; x <= r; x++ {
				if x*x+y*y > r*r {
					px, py := c.X+x, c.Y+y
					if quadrantMatches(px, py, c, width, height) {
						mask.Set(px, py, color.Transparent)
					}
				}
			}
		}
	}
	return mask
}

func quadrantMatches(px, py int, corner image.Point, width, height int) bool {
	if px < 0 || py < 0 || px >= width || py >= height {
		return false
	}
	inLeft := corner.X < width/2
	inTop := corner.Y < height/2
	if inLeft && px > corner.X {
		return false
	}
	if !inLeft && px < corner.X {
		return false
	}
	if inTop && py > corner.Y {
		return false
	}
	if !inTop && py < corner.Y {
		return false
	}
	return true
}

// Shadow renders a blurred, colored rectangle the size of the overlay,
// used as an auxiliary input for the drop-shadow decoration.
func Shadow(width, height, blur int, shadowColor color.Color) image.Image {
	base := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(base, base.Bounds(), &image.Uniform{C: shadowColor}, image.Point{}, draw.Src)
	if blur <= 0 {
		return base
	}
	return imaging.Blur(base, float64(blur))
}

// WritePNG writes img as a PNG file under dir, returning its path.
func WritePNG(dir, name string, img image.Image) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("overlaymask: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("overlaymask: encode %s: %w", path, err)
	}
	return path, nil
}

// ParseHexColor parses a #RRGGBB string into a color.Color, defaulting to
// opaque black on malformed input.
func ParseHexColor(hex string) color.Color {
	var r, g, b uint8
	if len(hex) == 7 && hex[0] == '#' {
		fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
