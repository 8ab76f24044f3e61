// Package preprocess turns raw encoded image bytes into the flat float32
// tensor the inference engine expects.
package preprocess

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/wildsight/stream-classifier/internal/model"
)

// ToTensor decodes, resizes and normalizes one frame. Pixel values are scaled
// to [-1, 1], the range MobileNet-family models are trained on, and laid out
// in whichever channel order the model metadata declares. Corrupt, empty or
// unsupported input returns an error the session reports as a per-frame
// decode failure.
func ToTensor(data []byte, meta model.Metadata) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}

	side := uint(meta.ImageSize)
	resized := resize.Resize(side, side, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pixels := width * height

	tensor := make([]float32, 3*pixels)
	channelsFirst := meta.ChannelsFirst()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			rNorm := float32(r)/32767.5 - 1
			gNorm := float32(g)/32767.5 - 1
			bNorm := float32(b)/32767.5 - 1

			if channelsFirst {
				i := y*width + x
				tensor[i] = rNorm
				tensor[pixels+i] = gNorm
				tensor[2*pixels+i] = bNorm
			} else {
				i := (y*width + x) * 3
				tensor[i] = rNorm
				tensor[i+1] = gNorm
				tensor[i+2] = bNorm
			}
		}
	}

	if len(tensor) != meta.InputLen() {
		return nil, errors.Errorf("preprocessed %d values, model expects %d", len(tensor), meta.InputLen())
	}
	return tensor, nil
}
