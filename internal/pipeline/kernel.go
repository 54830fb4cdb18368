package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"improc/internal/raster"
)

var ErrMalformedKernel = errors.New("malformed kernel")

// ParseKernel reads a convolution kernel in text form: the width and height
// followed by width*height weights in row-major order, separated by any
// whitespace. Lines starting with '#' are ignored.
func ParseKernel(r io.Reader) (*raster.Image, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read kernel: %w", err)
	}

	if len(tokens) < 2 {
		return nil, fmt.Errorf("%w: missing dimensions", ErrMalformedKernel)
	}
	width, err := strconv.Atoi(tokens[0])
	if err != nil {
		return nil, fmt.Errorf("%w: width %q", ErrMalformedKernel, tokens[0])
	}
	height, err := strconv.Atoi(tokens[1])
	if err != nil {
		return nil, fmt.Errorf("%w: height %q", ErrMalformedKernel, tokens[1])
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrMalformedKernel, width, height)
	}

	weights := tokens[2:]
	if len(weights) != width*height {
		return nil, fmt.Errorf("%w: expected %d weights, got %d", ErrMalformedKernel, width*height, len(weights))
	}

	pix := make([]float32, len(weights))
	for i, w := range weights {
		v, err := strconv.ParseFloat(w, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: weight %d %q", ErrMalformedKernel, i, w)
		}
		pix[i] = float32(v)
	}
	return raster.FromFloat32(width, height, pix)
}
