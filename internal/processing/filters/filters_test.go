package filters

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"improc/internal/raster"
)

func randomGray(t *testing.T, w, h int, seed uint64) *raster.Image {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = uint8(rng.IntN(256))
	}
	img, err := raster.FromUint8(w, h, pix)
	require.NoError(t, err)
	return img
}

func uint8Pix(t *testing.T, img *raster.Image, ch int) []uint8 {
	t.Helper()
	p, err := raster.PlaneAt[uint8](img, ch)
	require.NoError(t, err)
	return p.Pix
}

func float32Pix(t *testing.T, img *raster.Image, ch int) []float32 {
	t.Helper()
	p, err := raster.PlaneAt[float32](img, ch)
	require.NoError(t, err)
	return p.Pix
}

func TestBlur_UnitSizeIsIdentity(t *testing.T) {
	img := randomGray(t, 13, 7, 1)

	for _, size := range [][2]int{{1, 1}, {0, 1}, {1, 0}, {-3, -3}} {
		out, err := Blur(context.Background(), img, size[0], size[1])
		require.NoError(t, err)
		assert.Equal(t, uint8Pix(t, img, 0), uint8Pix(t, out, 0))
	}
}

func TestBlur_GeometryPreserved(t *testing.T) {
	img, err := raster.New(9, 5, raster.Uint8, raster.Float32, raster.Int32)
	require.NoError(t, err)

	out, err := Blur(context.Background(), img, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, img.Width(), out.Width())
	assert.Equal(t, img.Height(), out.Height())
	require.Equal(t, 3, out.NumChannels())
	for ch := 0; ch < 3; ch++ {
		assert.Equal(t, img.Channel(ch).Type(), out.Channel(ch).Type())
		assert.Equal(t, img.Total(), out.Channel(ch).Len())
	}
}

func TestBlur_HorizontalPass(t *testing.T) {
	img, err := raster.FromUint8(5, 1, []uint8{0, 0, 9, 0, 0})
	require.NoError(t, err)

	out, err := Blur(context.Background(), img, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 3, 3, 3, 0}, uint8Pix(t, out, 0))
}

func TestBlur_VerticalPass(t *testing.T) {
	img, err := raster.FromUint8(2, 3, []uint8{
		3, 0,
		6, 0,
		9, 30,
	})
	require.NoError(t, err)

	out, err := Blur(context.Background(), img, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint8{
		4, 0,
		6, 10,
		8, 20,
	}, uint8Pix(t, out, 0))
}

func TestBlur_EvenSizeLeansBackward(t *testing.T) {
	img, err := raster.FromUint8(6, 1, []uint8{0, 0, 0, 8, 0, 0})
	require.NoError(t, err)

	out, err := Blur(context.Background(), img, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 4, 4, 0}, uint8Pix(t, out, 0))
}

func TestBlur_IntegerMeanTruncates(t *testing.T) {
	img, err := raster.FromUint8(2, 1, []uint8{1, 2})
	require.NoError(t, err)

	out, err := Blur(context.Background(), img, 3, 1)
	require.NoError(t, err)
	// padded line 1 1 2 2: sums 4 and 5, both truncate to 1
	assert.Equal(t, []uint8{1, 1}, uint8Pix(t, out, 0))
}

func TestBlur_FloatKeepsFraction(t *testing.T) {
	img, err := raster.FromFloat32(2, 1, []float32{1, 2})
	require.NoError(t, err)

	out, err := Blur(context.Background(), img, 3, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{4.0 / 3, 5.0 / 3}, float32Pix(t, out, 0), 1e-6)
}

func TestBlur_OversizedFilterCopies(t *testing.T) {
	img := randomGray(t, 4, 4, 2)

	out, err := Blur(context.Background(), img, 7, 9)
	require.NoError(t, err)
	assert.Equal(t, uint8Pix(t, img, 0), uint8Pix(t, out, 0))
}

func TestBlur_MatchesDirectMeanOnFloat(t *testing.T) {
	const w, h, fw, fh = 11, 8, 5, 3
	src := randomGray(t, w, h, 3)
	img, err := raster.Cast(src, raster.Float32)
	require.NoError(t, err)

	out, err := Blur(context.Background(), img, fw, fh)
	require.NoError(t, err)

	in := float32Pix(t, img, 0)
	got := float32Pix(t, out, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for j := -fh / 2; j <= fh/2; j++ {
				for i := -fw / 2; i <= fw/2; i++ {
					sx := raster.ClampIndex(x+i, w)
					sy := raster.ClampIndex(y+j, h)
					sum += float64(in[sy*w+sx])
				}
			}
			assert.InDelta(t, sum/(fw*fh), got[y*w+x], 1e-3, "pixel (%d,%d)", x, y)
		}
	}
}

func TestBlur_DoesNotModifyInput(t *testing.T) {
	img := randomGray(t, 10, 10, 4)
	before := append([]uint8(nil), uint8Pix(t, img, 0)...)

	_, err := Blur(context.Background(), img, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, before, uint8Pix(t, img, 0))
}

func TestBlur_UnusableImage(t *testing.T) {
	out, err := Blur(context.Background(), nil, 3, 3)
	assert.ErrorIs(t, err, raster.ErrUnusableImage)
	assert.Nil(t, out)
}

func TestBlur_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Blur(ctx, randomGray(t, 8, 8, 5), 3, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvolve_SingleTapIsIdentity(t *testing.T) {
	kernel, err := raster.FromFloat32(1, 1, []float32{1})
	require.NoError(t, err)

	gray := randomGray(t, 9, 6, 6)
	out, err := Convolve(context.Background(), gray, kernel)
	require.NoError(t, err)
	assert.Equal(t, uint8Pix(t, gray, 0), uint8Pix(t, out, 0))

	mixed, err := raster.New(3, 2, raster.Uint8, raster.Float32, raster.Int32)
	require.NoError(t, err)
	for ch := 0; ch < 3; ch++ {
		for i := 0; i < mixed.Total(); i++ {
			mixed.Channel(ch).SetFloat(i, float64(i*7-3))
		}
	}
	out, err = Convolve(context.Background(), mixed, kernel)
	require.NoError(t, err)
	for ch := 0; ch < 3; ch++ {
		assert.Equal(t, mixed.Channel(ch).Type(), out.Channel(ch).Type())
		for i := 0; i < mixed.Total(); i++ {
			assert.Equal(t, mixed.Channel(ch).Float(i), out.Channel(ch).Float(i))
		}
	}
}

func TestConvolve_EvenKernelRejected(t *testing.T) {
	img := randomGray(t, 5, 5, 7)
	before := append([]uint8(nil), uint8Pix(t, img, 0)...)

	for _, dims := range [][2]int{{2, 2}, {2, 3}, {3, 4}} {
		kernel, err := raster.New(dims[0], dims[1], raster.Float32)
		require.NoError(t, err)

		out, err := Convolve(context.Background(), img, kernel)
		assert.ErrorIs(t, err, ErrEvenKernel)
		assert.Nil(t, out)
	}
	assert.Equal(t, before, uint8Pix(t, img, 0))
}

func TestConvolve_ReplicatesBorder(t *testing.T) {
	img, err := raster.FromUint8(3, 1, []uint8{10, 20, 30})
	require.NoError(t, err)
	shift, err := raster.FromFloat32(3, 1, []float32{0, 0, 1})
	require.NoError(t, err)

	out, err := Convolve(context.Background(), img, shift)
	require.NoError(t, err)
	assert.Equal(t, []uint8{20, 30, 30}, uint8Pix(t, out, 0))
}

func TestConvolve_Uint8Clips(t *testing.T) {
	img, err := raster.FromUint8(2, 1, []uint8{200, 10})
	require.NoError(t, err)

	double, err := raster.FromFloat32(1, 1, []float32{2})
	require.NoError(t, err)
	out, err := Convolve(context.Background(), img, double)
	require.NoError(t, err)
	assert.Equal(t, []uint8{255, 20}, uint8Pix(t, out, 0))

	negate, err := raster.FromFloat32(1, 1, []float32{-1})
	require.NoError(t, err)
	out, err = Convolve(context.Background(), img, negate)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0}, uint8Pix(t, out, 0))
}

func TestConvolve_WideChannelsRoundTrip(t *testing.T) {
	img, err := raster.FromFloat32(2, 1, []float32{1, 2})
	require.NoError(t, err)
	negate, err := raster.FromFloat32(1, 1, []float32{-1})
	require.NoError(t, err)

	out, err := Convolve(context.Background(), img, negate)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, -2}, float32Pix(t, out, 0))

	ints, err := raster.FromInt32(1, 1, []int32{5})
	require.NoError(t, err)
	half, err := raster.FromFloat32(1, 1, []float32{0.5})
	require.NoError(t, err)
	out, err = Convolve(context.Background(), ints, half)
	require.NoError(t, err)
	p, err := raster.PlaneAt[int32](out, 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{2}, p.Pix)
}

func TestConvolve_Uint8KernelIsCastToFloat(t *testing.T) {
	img, err := raster.FromUint8(3, 3, []uint8{
		1, 1, 1,
		1, 1, 1,
		1, 1, 1,
	})
	require.NoError(t, err)
	ones, err := raster.FromUint8(3, 3, []uint8{1, 1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)

	out, err := Convolve(context.Background(), img, ones)
	require.NoError(t, err)
	assert.Equal(t, []uint8{9, 9, 9, 9, 9, 9, 9, 9, 9}, uint8Pix(t, out, 0))
}

func TestConvolve_UnusableInput(t *testing.T) {
	kernel, err := raster.FromFloat32(1, 1, []float32{1})
	require.NoError(t, err)

	_, err = Convolve(context.Background(), nil, kernel)
	assert.ErrorIs(t, err, raster.ErrUnusableImage)

	_, err = Convolve(context.Background(), randomGray(t, 2, 2, 8), nil)
	assert.ErrorIs(t, err, raster.ErrUnusableImage)
}
