package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"improc/internal/models"
	"improc/internal/shutdown"
)

func TestDetermineLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEBUG", "")

	level, err := determineLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, level)

	t.Setenv("DEBUG", "1")
	level, err = determineLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	t.Setenv("LOG_LEVEL", "warn")
	level, err = determineLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, level)

	level, err = determineLogLevel("error")
	require.NoError(t, err)
	assert.Equal(t, zerolog.ErrorLevel, level)

	_, err = determineLogLevel("loud")
	assert.Error(t, err)
}

func run(t *testing.T, mgr *shutdown.Manager, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(mgr)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := execute(root, mgr)
	return out.String(), err
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return run(t, shutdown.NewManager(nil, 0), args...)
}

func writeGray(t *testing.T, path string, w, h int, pix []uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func readGray(t *testing.T, path string) []uint8 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	g, ok := img.(*image.Gray)
	require.True(t, ok)
	return g.Pix
}

func TestFiltersCommand(t *testing.T) {
	out, err := runCLI(t, "filters")
	require.NoError(t, err)
	assert.Contains(t, out, "blur")
	assert.Contains(t, out, "quantize_levels=8")
	assert.Contains(t, out, "correlation_method=cross")
}

func TestQuantizeCommand(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.png"), filepath.Join(dir, "out.png")
	writeGray(t, in, 4, 1, []uint8{0, 100, 150, 255})

	_, err := runCLI(t, "quantize", "-i", in, "-o", out, "--levels", "2")
	require.NoError(t, err)
	assert.Equal(t, []uint8{64, 64, 192, 192}, readGray(t, out))

	_, err = runCLI(t, "quantize", "-i", in, "-o", out, "--levels", "0")
	assert.Error(t, err)
}

func TestCorrelateCommandPrintsOffset(t *testing.T) {
	dir := t.TempDir()
	in, tmpl := filepath.Join(dir, "in.png"), filepath.Join(dir, "t.png")
	pix := make([]uint8, 8*6)
	for i := range pix {
		pix[i] = uint8((i * 37) % 251)
	}
	writeGray(t, in, 8, 6, pix)
	writeGray(t, tmpl, 2, 2, []uint8{pix[2*8+3], pix[2*8+4], pix[3*8+3], pix[3*8+4]})

	out, err := runCLI(t, "correlate", "-i", in, "--template", tmpl, "--method", "ssd", "--multires=false")
	require.NoError(t, err)
	assert.Contains(t, out, "dx=3 dy=2 score=0")

	_, err = runCLI(t, "correlate", "-i", in, "--template", tmpl, "--method", "phase")
	assert.Error(t, err)
}

func TestHistoMatchCommandRequiresTarget(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeGray(t, in, 2, 1, []uint8{1, 2})

	_, err := runCLI(t, "histomatch", "-i", in, "-o", filepath.Join(dir, "out.png"))
	assert.ErrorContains(t, err, "--target, --target-table or --flat")
}

func TestHistoMatchCommandReadsTargetTable(t *testing.T) {
	dir := t.TempDir()
	in, table, out := filepath.Join(dir, "in.png"), filepath.Join(dir, "table.png"), filepath.Join(dir, "out.png")
	writeGray(t, in, 2, 2, []uint8{10, 20, 30, 40})

	counts := image.NewGray16(image.Rect(0, 0, 256, 1))
	counts.SetGray16(200, 0, color.Gray16{Y: 1000})
	f, err := os.Create(table)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, counts))
	require.NoError(t, f.Close())

	_, err = runCLI(t, "histomatch", "-i", in, "-o", out, "--target-table", table)
	require.NoError(t, err)
	assert.Equal(t, []uint8{200, 200, 200, 200}, readGray(t, out))

	_, err = runCLI(t, "histomatch", "-i", in, "-o", out, "--target-table", table, "--flat")
	assert.Error(t, err)
}

func TestQuantizeCommandRescales16BitInput(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.png"), filepath.Join(dir, "out.png")
	src := image.NewGray16(image.Rect(0, 0, 4, 1))
	for x, v := range []uint16{0, 20000, 40000, 65535} {
		src.SetGray16(x, 0, color.Gray16{Y: v})
	}
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	_, err = runCLI(t, "quantize", "-i", in, "-o", out, "--levels", "2")
	require.NoError(t, err)
	assert.Equal(t, []uint8{64, 64, 192, 192}, readGray(t, out))
}

func TestCorrelateCommandCropsTemplateFromInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	pix := make([]uint8, 8*6)
	for i := range pix {
		pix[i] = uint8((i * 37) % 251)
	}
	writeGray(t, in, 8, 6, pix)

	out, err := runCLI(t, "correlate", "-i", in, "--crop-template", "3,2,2,2", "--method", "ssd", "--multires=false")
	require.NoError(t, err)
	assert.Contains(t, out, "dx=3 dy=2 score=0")

	_, err = runCLI(t, "correlate", "-i", in, "--crop-template", "7,5,2,2")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = runCLI(t, "correlate", "-i", in, "--crop-template", "1,2,3")
	assert.ErrorContains(t, err, "x,y,width,height")

	_, err = runCLI(t, "correlate", "-i", in)
	assert.Error(t, err)
}

func TestFailedCommandStillShutsDown(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeGray(t, in, 2, 1, []uint8{1, 2})

	mgr := shutdown.NewManager(nil, 0)
	_, err := run(t, mgr, "quantize", "-i", in, "-o", filepath.Join(dir, "out.png"), "--levels", "0")
	require.Error(t, err)

	select {
	case <-mgr.Done():
	default:
		t.Fatal("shutdown did not run after a failed command")
	}
	assert.Error(t, mgr.Context().Err())
}
