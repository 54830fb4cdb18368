package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"improc/internal/models"
	"improc/internal/processing/chain"
	"improc/internal/processing/correlation"
	"improc/internal/processing/histogram"
	"improc/internal/raster"
)

type ioOptions struct {
	input  string
	output string
}

func (o *ioOptions) register(cmd *cobra.Command, outputRequired bool) {
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "input image")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output image")
	_ = cmd.MarkFlagRequired("input")
	if outputRequired {
		_ = cmd.MarkFlagRequired("output")
	}
}

// runFilter loads the input, runs filter through the configured chain and
// writes the result when an output path is set.
func runFilter(cmd *cobra.Command, app *Application, io *ioOptions, filter string, overrides map[string]interface{}) (*models.ProcessingResult, error) {
	src, err := loadInput(cmd, app, io, filter)
	if err != nil {
		return nil, err
	}
	return applyFilter(cmd, app, io, src, filter, overrides)
}

// loadInput reads the input image. The gray-level remap filters get wide
// inputs rescaled onto the 8-bit range.
func loadInput(cmd *cobra.Command, app *Application, io *ioOptions, filter string) (*models.ImageData, error) {
	load := app.imageService.LoadImage
	if filter == models.FilterHistoMatch || filter == models.FilterQuantize {
		load = app.imageService.LoadGrayLevels
	}
	return load(cmd.Context(), io.input)
}

func applyFilter(cmd *cobra.Command, app *Application, io *ioOptions, src *models.ImageData, filter string, overrides map[string]interface{}) (*models.ProcessingResult, error) {
	ctx := cmd.Context()

	result, err := app.processingService.Apply(ctx, src.Image, filter, overrides)
	if err != nil {
		return nil, err
	}

	if io.output != "" {
		if err := app.imageService.SaveImage(ctx, io.output, result.ProcessedImage); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func newBlurCommand(app func() *Application) *cobra.Command {
	io := &ioOptions{}
	var width, height int

	cmd := &cobra.Command{
		Use:   "blur",
		Short: "Separable box blur",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]interface{}{}
			if cmd.Flags().Changed("width") {
				overrides[chain.ParamBlurWidth] = width
			}
			if cmd.Flags().Changed("height") {
				overrides[chain.ParamBlurHeight] = height
			}
			_, err := runFilter(cmd, app(), io, models.FilterBlur, overrides)
			return err
		},
	}
	io.register(cmd, true)
	cmd.Flags().IntVar(&width, "width", 3, "horizontal filter size")
	cmd.Flags().IntVar(&height, "height", 3, "vertical filter size")
	return cmd
}

func newConvolveCommand(app func() *Application) *cobra.Command {
	io := &ioOptions{}
	var kernelPath string

	cmd := &cobra.Command{
		Use:   "convolve",
		Short: "Convolve with a kernel read from a text file or image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kernel, err := app().imageService.LoadKernel(cmd.Context(), kernelPath)
			if err != nil {
				return err
			}
			_, err = runFilter(cmd, app(), io, models.FilterConvolve, map[string]interface{}{
				chain.ParamKernel: kernel,
			})
			return err
		},
	}
	io.register(cmd, true)
	cmd.Flags().StringVar(&kernelPath, "kernel", "", "kernel file (.txt: width height weights...)")
	_ = cmd.MarkFlagRequired("kernel")
	return cmd
}

func newCorrelateCommand(app func() *Application) *cobra.Command {
	io := &ioOptions{}
	var templatePath, method string
	var crop []int
	var multires bool

	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Locate a template and report its offset",
		Long: "Locate a template in the input and print the offset and score of the best match. " +
			"The template is read from --template or cut from the input with --crop-template. " +
			"With --output the input is written with everything outside the match dimmed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := correlation.ParseMethod(method); err != nil {
				return err
			}
			if cmd.Flags().Changed("crop-template") && len(crop) != 4 {
				return fmt.Errorf("--crop-template needs x,y,width,height, got %d values", len(crop))
			}

			src, err := loadInput(cmd, app(), io, models.FilterCorrelate)
			if err != nil {
				return err
			}
			var tmpl *raster.Image
			if templatePath != "" {
				tmpl, err = app().imageService.LoadTemplate(cmd.Context(), templatePath)
			} else {
				tmpl, err = app().imageService.CropImage(src.Image, crop[0], crop[1], crop[2], crop[3])
			}
			if err != nil {
				return err
			}

			overrides := map[string]interface{}{
				chain.ParamTemplate: tmpl,
				chain.ParamMethod:   method,
			}
			if cmd.Flags().Changed("multires") {
				overrides[chain.ParamMultires] = multires
			}

			result, err := applyFilter(cmd, app(), io, src, models.FilterCorrelate, overrides)
			if err != nil {
				return err
			}
			if result.Match != nil {
				printf(cmd, "dx=%d dy=%d score=%g levels=%d\n",
					result.Match.DX, result.Match.DY, result.Match.Score, result.Match.Levels)
			}
			return nil
		},
	}
	io.register(cmd, false)
	cmd.Flags().StringVar(&templatePath, "template", "", "template image")
	cmd.Flags().IntSliceVar(&crop, "crop-template", nil, "cut the template from the input at x,y,width,height")
	cmd.Flags().StringVar(&method, "method", "cross", "cross, ssd or coeff")
	cmd.Flags().BoolVar(&multires, "multires", true, "coarse-to-fine pyramid search")
	cmd.MarkFlagsOneRequired("template", "crop-template")
	cmd.MarkFlagsMutuallyExclusive("template", "crop-template")
	return cmd
}

func newHistoMatchCommand(app func() *Application) *cobra.Command {
	io := &ioOptions{}
	var targetPath, tablePath string
	var flat bool

	cmd := &cobra.Command{
		Use:   "histomatch",
		Short: "Remap gray levels to match a target histogram",
		Long: "Remap the gray levels of every channel so its histogram matches a target. " +
			"The target is the histogram of the first channel of --target, a table of 256 counts " +
			"stored in the first channel of --target-table (a 16-bit PNG holds counts up to 65535), " +
			"or a flat histogram with --flat. 16-bit and float inputs are rescaled onto 0-255 first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]interface{}{chain.ParamFlatTarget: flat}
			var target histogram.Histogram
			var err error
			switch {
			case targetPath != "":
				target, err = app().imageService.LoadHistogramTarget(cmd.Context(), targetPath)
			case tablePath != "":
				target, err = app().imageService.LoadHistogramTable(cmd.Context(), tablePath)
			case !flat:
				return fmt.Errorf("one of --target, --target-table or --flat is required")
			}
			if err != nil {
				return err
			}
			if !flat {
				overrides[chain.ParamTarget] = target
			}
			_, err = runFilter(cmd, app(), io, models.FilterHistoMatch, overrides)
			return err
		},
	}
	io.register(cmd, true)
	cmd.Flags().StringVar(&targetPath, "target", "", "image whose histogram is matched")
	cmd.Flags().StringVar(&tablePath, "target-table", "", "image holding the target histogram as 256 counts")
	cmd.Flags().BoolVar(&flat, "flat", false, "match a flat histogram")
	cmd.MarkFlagsMutuallyExclusive("target", "target-table", "flat")
	return cmd
}

func newQuantizeCommand(app func() *Application) *cobra.Command {
	io := &ioOptions{}
	var levels, seed int
	var dither bool

	cmd := &cobra.Command{
		Use:   "quantize",
		Short: "Reduce the number of gray levels",
		Long: "Map every channel onto --levels evenly spaced gray levels. " +
			"16-bit and float inputs are rescaled onto 0-255 first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]interface{}{
				chain.ParamLevels: levels,
				chain.ParamDither: dither,
			}
			if cmd.Flags().Changed("seed") {
				overrides[chain.ParamSeed] = seed
			}
			_, err := runFilter(cmd, app(), io, models.FilterQuantize, overrides)
			return err
		},
	}
	io.register(cmd, true)
	cmd.Flags().IntVar(&levels, "levels", 8, "number of output levels (1-256)")
	cmd.Flags().BoolVar(&dither, "dither", false, "add bias noise before quantizing")
	cmd.Flags().IntVar(&seed, "seed", 0, "dither noise seed")
	return cmd
}

func newFiltersCommand(app func() *Application) *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List the filters and their default parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := app().configRepo
			for _, name := range config.GetAvailableFilters() {
				params, err := config.GetFilterParameters(name)
				if err != nil {
					return err
				}
				keys := lo.Keys(params.Defaults)
				slices.Sort(keys)
				pairs := lo.Map(keys, func(k string, _ int) string {
					return fmt.Sprintf("%s=%v", k, params.Defaults[k])
				})
				printf(cmd, "%-11s %s\n", name, strings.Join(pairs, " "))
			}
			return nil
		},
	}
}
