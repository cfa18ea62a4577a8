package imagesplit_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"midjourney-adapter/internal/imagesplit"
	"pgregory.net/rapid"
)

func TestTiles_Order(t *testing.T) {
	tiles := imagesplit.Tiles(1024, 1024)
	require.Len(t, tiles, 4)

	assert.Equal(t, image.Rect(0, 0, 512, 512), tiles[0].Rect)
	assert.Equal(t, image.Rect(0, 512, 512, 1024), tiles[1].Rect)
	assert.Equal(t, image.Rect(512, 0, 1024, 512), tiles[2].Rect)
	assert.Equal(t, image.Rect(512, 512, 1024, 1024), tiles[3].Rect)

	assert.Equal(t, [2]int{0, 1}, [2]int{tiles[1].Column, tiles[1].Row})
	assert.Equal(t, [2]int{1, 0}, [2]int{tiles[2].Column, tiles[2].Row})
}

func TestTiles_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(2, 5000).Draw(t, "width")
		h := rapid.IntRange(2, 5000).Draw(t, "height")

		tiles := imagesplit.Tiles(w, h)
		if len(tiles) != 4 {
			t.Fatalf("expected 4 tiles, got %d", len(tiles))
		}
		full := image.Rect(0, 0, w, h)
		for i, a := range tiles {
			if a.Rect.Dx() != w/2 || a.Rect.Dy() != h/2 {
				t.Fatalf("tile %d has size %v", i, a.Rect.Size())
			}
			if !a.Rect.In(full) {
				t.Fatalf("tile %d %v outside %v", i, a.Rect, full)
			}
			for j, b := range tiles {
				if i != j && a.Rect.Overlaps(b.Rect) {
					t.Fatalf("tiles %d and %d overlap", i, j)
				}
			}
		}
	})
}

// quadrants paints each quadrant in its own color.
func quadrants(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	colors := map[[2]int]color.RGBA{
		{0, 0}: {255, 0, 0, 255},
		{0, 1}: {0, 255, 0, 255},
		{1, 0}: {0, 0, 255, 255},
		{1, 1}: {255, 255, 255, 255},
	}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, colors[[2]int{x * 2 / w, y * 2 / h}])
		}
	}
	return img
}

func TestSplit_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, quadrants(64, 48)))

	tiles, err := imagesplit.Split(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, tiles, 4)

	want := []color.RGBA{
		{255, 0, 0, 255},
		{0, 255, 0, 255},
		{0, 0, 255, 255},
		{255, 255, 255, 255},
	}
	for i, data := range tiles {
		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Pt(32, 24), img.Bounds().Size())

		r, g, b, _ := img.At(16, 12).RGBA()
		assert.InDelta(t, want[i].R, uint8(r>>8), 8, "tile %d red", i)
		assert.InDelta(t, want[i].G, uint8(g>>8), 8, "tile %d green", i)
		assert.InDelta(t, want[i].B, uint8(b>>8), 8, "tile %d blue", i)
	}
}

func TestSplit_Errors(t *testing.T) {
	_, err := imagesplit.Split([]byte("not an image"))
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 5))))
	_, err = imagesplit.Split(buf.Bytes())
	assert.Error(t, err)
}
