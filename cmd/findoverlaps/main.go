// Command findoverlaps reads a footprint list ("serial<TAB>WKT" per line),
// splits it into overlap regions and writes the overlap file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tingold/gofootprint"
)

type options struct {
	configPath string
	outPath    string
	notes      string
	verbose    bool
	input      string
}

func main() {
	_ = godotenv.Load(".env")

	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv("FOOTPRINT_CONFIG"), "engine config JSON file")
	flag.StringVar(&opts.outPath, "o", "-", "overlap file to write (- for stdout)")
	flag.StringVar(&opts.notes, "notes", "", "notes stored with the run")
	flag.BoolVar(&opts.verbose, "v", false, "log retries and no-overlap diagnostics")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: findoverlaps [flags] <footprints.txt|->\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.input = flag.Arg(0)

	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "findoverlaps: %v\n", err)
		os.Exit(1)
	}
}

// run computes the overlaps and writes them out. Every file and store it
// opens is closed before it returns.
func run(opts options, stdout, stderr io.Writer) (err error) {
	logs := gofootprint.LogWriters{Ops: stderr}
	if opts.verbose {
		logs.Diag = stderr
	}
	gofootprint.SetLogWriters(logs)

	cfg := gofootprint.DefaultEngineConfig()
	if opts.configPath != "" {
		if cfg, err = gofootprint.LoadEngineConfig(opts.configPath); err != nil {
			return err
		}
	}

	inputs, err := readFootprints(opts.input)
	if err != nil {
		return err
	}

	out := stdout
	if opts.outPath != "-" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		out = f
	}
	writer := gofootprint.NewOverlapWriter(out)

	var sink gofootprint.OverlapSink = writer
	var stored *gofootprint.OverlapRun
	if dsn := os.Getenv("FOOTPRINT_DB"); dsn != "" {
		store, err := gofootprint.OpenOverlapStore(dsn)
		if err != nil {
			return err
		}
		defer store.Close()
		if stored, err = store.StartRun(opts.notes); err != nil {
			return err
		}
		sink = gofootprint.SinkFunc(func(rec gofootprint.OverlapRecord) error {
			if err := writer.WriteOverlap(rec); err != nil {
				return err
			}
			return stored.WriteOverlap(rec)
		})
	}

	computer := gofootprint.NewOverlapComputer(cfg)
	computeErr := computer.ComputeTo(inputs, sink)
	if err := writer.Flush(); err != nil && computeErr == nil {
		computeErr = err
	}

	ledger := computer.Ledger()
	if stored != nil {
		if err := stored.Finish(ledger); err != nil && computeErr == nil {
			computeErr = err
		}
		fmt.Fprintf(stderr, "findoverlaps: stored run %s\n", stored.ID())
	}
	for _, e := range ledger {
		fmt.Fprintf(stderr, "findoverlaps: %s: %v: %s %s\n", e.Kind, e.Serials, e.Description, e.Error)
	}

	if path := os.Getenv("FOOTPRINT_METRICS"); path != "" {
		if err := gofootprint.WriteMetrics(path); err != nil && computeErr == nil {
			computeErr = err
		}
	}
	if computeErr != nil {
		return computeErr
	}
	fmt.Fprintf(stderr, "findoverlaps: wrote %d overlap records from %d footprints\n", writer.Written(), len(inputs))
	return nil
}

func readFootprints(path string) ([]gofootprint.FootprintInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var inputs []gofootprint.FootprintInput
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		serial, text, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected serial<TAB>WKT", path, lineNo)
		}
		fp, err := gofootprint.FootprintFromText(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		inputs = append(inputs, gofootprint.FootprintInput{Serial: serial, Footprint: fp.MultiPolygon()})
	}
	return inputs, scanner.Err()
}
