package correlation

import "improc/internal/raster"

// Highlight returns a copy of img with every sample outside the tw x th
// footprint at (dx, dy) halved, so the matched region stands out.
func Highlight(img *raster.Image, dx, dy, tw, th int) (*raster.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	out := img.Clone()
	w := img.Width()
	for ch := 0; ch < out.NumChannels(); ch++ {
		c := out.Channel(ch)
		for y := 0; y < img.Height(); y++ {
			for x := 0; x < w; x++ {
				if x >= dx && x < dx+tw && y >= dy && y < dy+th {
					continue
				}
				i := y*w + x
				c.SetFloat(i, c.Float(i)/2)
			}
		}
	}
	return out, nil
}
