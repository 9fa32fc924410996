package client

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gorgonia.org/tensor"
)

// PreviewSize bounds the display copy of an upload, matching the 350x350
// viewer of the web page.
const PreviewSize = 350

// Upload is one decoded user image.
type Upload struct {
	Token      uint64
	Image      image.Image
	Preview    image.Image
	Pixels     *tensor.Dense // (height, width, 3), values 0..255
	DecodeTime time.Duration
}

func decodeUpload(ctx context.Context, r io.Reader) (*Upload, error) {
	start := time.Now()
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	up := &Upload{Image: img}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		up.Preview = resize.Thumbnail(PreviewSize, PreviewSize, img, resize.Bilinear)
	}()
	go func() {
		defer wg.Done()
		up.Pixels = pixelsFromImage(img)
	}()
	wg.Wait()

	up.DecodeTime = time.Since(start)
	return up, nil
}

// pixelsFromImage drops alpha and keeps the straight (non-premultiplied)
// 8-bit RGB values, like reading a canvas.
func pixelsFromImage(img image.Image) *tensor.Dense {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	data := make([]float32, h*w*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := data[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3] = float32(row[x*4])
			dst[x*3+1] = float32(row[x*4+1])
			dst[x*3+2] = float32(row[x*4+2])
		}
	}
	return tensor.New(tensor.WithShape(h, w, 3), tensor.WithBacking(data))
}
