// Command footprintinit computes the ground footprint of a map-projected
// GeoTIFF and prints it as "serial<TAB>WKT".
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tingold/gofootprint"
)

type options struct {
	configPath string
	window     gofootprint.RasterWindow
	to180      bool
	verbose    bool
	source     string
	serial     string
}

func main() {
	_ = godotenv.Load(".env")

	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv("FOOTPRINT_CONFIG"), "engine config JSON file")
	flag.IntVar(&opts.window.StartSample, "start-sample", 1, "first sample of the walked window")
	flag.IntVar(&opts.window.StartLine, "start-line", 1, "first line of the walked window")
	flag.IntVar(&opts.window.Samples, "samples", 0, "sample count of the walked window (0 = to the edge)")
	flag.IntVar(&opts.window.Lines, "lines", 0, "line count of the walked window (0 = to the edge)")
	flag.BoolVar(&opts.to180, "180", false, "print longitudes in [-180, 180]")
	flag.BoolVar(&opts.verbose, "v", false, "log retries and seam decisions")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: footprintinit [flags] <image.tif|url> [serial]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}
	opts.source = flag.Arg(0)
	opts.serial = flag.Arg(1)

	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "footprintinit: %v\n", err)
		os.Exit(1)
	}
}

// run prints the footprint of one image. The image is closed before it
// returns.
func run(opts options, stdout, stderr io.Writer) error {
	logs := gofootprint.LogWriters{Ops: stderr}
	if opts.verbose {
		logs.Diag = stderr
	}
	gofootprint.SetLogWriters(logs)

	cfg := gofootprint.DefaultEngineConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = gofootprint.LoadEngineConfig(opts.configPath); err != nil {
			return err
		}
	}

	serial := opts.serial
	if serial == "" {
		serial = strings.TrimSuffix(filepath.Base(opts.source), filepath.Ext(opts.source))
	}

	img, err := gofootprint.Open(opts.source, nil)
	if err != nil {
		return err
	}
	defer img.Close()

	fp, err := gofootprint.CreateFootprint(img, opts.window, cfg)
	if err != nil {
		return err
	}

	text := fp.ToText()
	if opts.to180 {
		mp, err := fp.To180()
		if err != nil {
			return err
		}
		f180, err := gofootprint.NewFootprint(mp)
		if err != nil {
			return err
		}
		text = f180.ToText()
	}

	fmt.Fprintf(stdout, "%s\t%s\n", serial, text)

	if path := os.Getenv("FOOTPRINT_METRICS"); path != "" {
		return gofootprint.WriteMetrics(path)
	}
	return nil
}
