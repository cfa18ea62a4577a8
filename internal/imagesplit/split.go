// Package imagesplit cuts a Midjourney 2x2 composite into its four tiles.
package imagesplit

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	// Registered decoders for composites served by the providers.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// JPEGQuality is the encoder quality of the produced tiles.
const JPEGQuality = 90

// Tile is one quadrant of the composite. Column and Row are 0 or 1.
type Tile struct {
	Column int
	Row    int
	Rect   image.Rectangle
}

// Tiles returns the quadrants of a width x height image in output order:
// (0,0), (0,1), (1,0), (1,1) as (column, row). Each tile is
// floor(width/2) x floor(height/2); odd trailing pixels are dropped.
func Tiles(width, height int) []Tile {
	w, h := width/2, height/2
	tiles := make([]Tile, 0, 4)
	for col := 0; col < 2; col++ {
		for row := 0; row < 2; row++ {
			x, y := col*w, row*h
			tiles = append(tiles, Tile{
				Column: col,
				Row:    row,
				Rect:   image.Rect(x, y, x+w, y+h),
			})
		}
	}
	return tiles
}

// Split decodes a PNG, JPEG, GIF or WebP composite and returns four JPEG
// tiles in Tiles order.
func Split(data []byte) ([][]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() < 2 || bounds.Dy() < 2 {
		return nil, fmt.Errorf("image %dx%d (%s) is too small to split", bounds.Dx(), bounds.Dy(), format)
	}

	tiles := Tiles(bounds.Dx(), bounds.Dy())
	out := make([][]byte, 0, len(tiles))
	for _, t := range tiles {
		encoded, err := encodeTile(src, t.Rect.Add(bounds.Min))
		if err != nil {
			return nil, fmt.Errorf("failed to encode tile (%d,%d): %w", t.Column, t.Row, err)
		}
		out = append(out, encoded)
	}
	return out, nil
}

func encodeTile(src image.Image, r image.Rectangle) ([]byte, error) {
	if r.Empty() {
		return nil, errors.New("empty tile")
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
