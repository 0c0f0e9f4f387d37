package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"krcahbone/pkg/config"
	"krcahbone/pkg/mhd"
	"krcahbone/pkg/sheetness"
)

func main() {
	inputPath := flag.String("input", "", "Input volume (.mhd)")
	preprocessedPath := flag.String("output-preprocessed", "preprocessed.mhd", "Output path for the preprocessed volume")
	measurePath := flag.String("output-measure", "measure.mhd", "Output path for the bone-enhancement measure")
	scalesPath := flag.String("output-scales", "", "Optional output path for the winning-sigma volume")
	maskPath := flag.String("mask", "", "Optional mask volume restricting parameter estimation")
	bright := flag.Bool("bright", true, "Enhance bright structures (false enhances dark structures)")
	recipeName := flag.String("recipe", "", "Parameter recipe: journal or implementation")
	sigmaList := flag.String("sigmas", "", "Comma-separated smoothing scales, e.g. 0.5,1.0,2.0")
	cores := flag.Int("cores", 0, "Number of CPU cores to use (0 = all available)")
	configPath := flag.String("config", "krcahbone.yaml", "Configuration file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	if !cfg.Output.Verbose {
		log = log.Level(zerolog.WarnLevel)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set, *bright, *recipeName, *sigmaList, *cores, *scalesPath != "")

	pipe, err := buildPipeline(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	pipe.Progress = progressLogger(log)

	log.Info().
		Str("input", *inputPath).
		Str("outputPreprocessed", *preprocessedPath).
		Str("outputMeasure", *measurePath).
		Str("polarity", pipe.Polarity.String()).
		Str("recipe", pipe.Recipe.String()).
		Floats64("sigmas", pipe.Sigmas).
		Int("cores", pipe.Workers).
		Msg("starting bone enhancement")

	in, err := mhd.Read(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("reading input volume")
	}
	log.Info().
		Int("width", in.Width).Int("height", in.Height).Int("depth", in.Depth).
		Float64("spacingX", in.Spacing.X).Float64("spacingY", in.Spacing.Y).Float64("spacingZ", in.Spacing.Z).
		Msg("loaded input volume")

	if *maskPath != "" {
		if pipe.Mask, err = mhd.Read(*maskPath); err != nil {
			log.Fatal().Err(err).Msg("reading mask volume")
		}
	}

	start := time.Now()

	preprocessed := in
	if cfg.Preprocessing.Enabled {
		pcfg := sheetness.DefaultPreprocessConfig()
		pcfg.Sigma = cfg.Preprocessing.Sigma
		pcfg.ScalingConstant = cfg.Preprocessing.ScalingConstant
		pcfg.Workers = pipe.Workers
		preprocessed, err = sheetness.Preprocess(in, pcfg, pipe.Progress)
		if err != nil {
			log.Fatal().Err(err).Msg("preprocessing failed")
		}
	}
	if err := mhd.Write(*preprocessedPath, preprocessed, mhd.Short); err != nil {
		log.Fatal().Err(err).Msg("writing preprocessed volume")
	}

	result, err := pipe.Run(preprocessed)
	if err != nil {
		log.Fatal().Err(err).Msg("multiscale measure failed")
	}

	log.Info().
		Float64("alpha", result.Params.Alpha).
		Float64("beta", result.Params.Beta).
		Float64("gamma", result.Params.Gamma).
		Dur("elapsed", time.Since(start)).
		Msg("pipeline complete")

	summary := result.Measure.Summarize()
	log.Info().
		Float64("min", summary.Min).
		Float64("max", summary.Max).
		Float64("mean", summary.Mean).
		Float64("stddev", summary.StdDev).
		Msg("measure statistics")

	if err := mhd.Write(*measurePath, result.Measure, mhd.Float); err != nil {
		log.Fatal().Err(err).Msg("writing measure volume")
	}
	if *scalesPath != "" {
		if err := mhd.Write(*scalesPath, result.BestScale, mhd.Float); err != nil {
			log.Fatal().Err(err).Msg("writing best-scale volume")
		}
	}
	log.Info().Str("measure", *measurePath).Msg("wrote outputs")
}

// applyFlags overlays the explicitly set command line flags on the file
// configuration.
func applyFlags(cfg *config.Config, set map[string]bool, bright bool, recipe, sigmas string, cores int, keepScales bool) {
	if set["bright"] {
		cfg.Sheetness.EnhanceBright = bright
	}
	if recipe != "" {
		cfg.Sheetness.Recipe = recipe
	}
	if sigmas != "" {
		cfg.Sheetness.Sigmas = nil
		for _, f := range strings.Split(sigmas, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				// Let pipeline validation produce the error message.
				cfg.Sheetness.Sigmas = nil
				break
			}
			cfg.Sheetness.Sigmas = append(cfg.Sheetness.Sigmas, v)
		}
	}
	if cores > 0 {
		cfg.Processing.NumCores = cores
	}
	if keepScales {
		cfg.Output.SaveBestScale = true
	}
}

func buildPipeline(cfg *config.Config) (*sheetness.Pipeline, error) {
	pipe := &sheetness.Pipeline{
		Sigmas:     cfg.Sheetness.Sigmas,
		Foreground: cfg.Sheetness.ForegroundValue,
		Background: cfg.Sheetness.BackgroundValue,
		Workers:    cfg.Processing.NumCores,
		KeepScales: cfg.Output.SaveBestScale,
	}
	if !cfg.Sheetness.EnhanceBright {
		pipe.Polarity = sheetness.EnhanceDark
	}
	switch cfg.Sheetness.Recipe {
	case "journal":
		pipe.Recipe = sheetness.RecipeJournal
	case "implementation":
		pipe.Recipe = sheetness.RecipeImplementation
	default:
		return nil, fmt.Errorf("unknown recipe %q (want journal or implementation)", cfg.Sheetness.Recipe)
	}
	return pipe, pipe.Validate()
}

// progressLogger reports stage progress in whole 10% steps.
func progressLogger(log zerolog.Logger) sheetness.ProgressFunc {
	last := make(map[string]int)
	return func(stage string, fraction float64) {
		pct := int(fraction * 10)
		if prev, ok := last[stage]; ok && pct <= prev {
			return
		}
		last[stage] = pct
		log.Info().Str("stage", stage).Int("percent", pct*10).Msg("progress")
	}
}
