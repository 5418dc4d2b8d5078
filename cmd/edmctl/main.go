package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/edmgate/internal/analysis"
	"example.com/edmgate/internal/common"
	"example.com/edmgate/internal/config"
	"example.com/edmgate/internal/export"
	"example.com/edmgate/internal/jpi"
	"example.com/edmgate/internal/manifest"
	"example.com/edmgate/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "info":
		infoCmd(os.Args[2:])
	case "decode":
		decodeCmd(os.Args[2:])
	case "summary":
		summaryCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`edmctl %s (built %s) <command> [options]

Commands:
  info     --in <file.jpi>
  decode   --in <file.jpi> [--out-dir <dir>] [--format json|msgpack|csv] [--flight <id>]
  summary  --in <file.jpi> [--flight <id>] [--json <summary.json>]
  report   --in <file.jpi> --flight <id> --out <report.pdf> [--json <summary.json>]
  batch    --in <dir> [--out-dir <dir>] [--format json|msgpack|csv]

Every command accepts --config <config.yaml>, --metrics, --progress and --verbose.
`, version, buildDate)
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

func failf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath *string
	metrics    *bool
	progress   *bool
	verbose    *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "path to configuration file"),
		metrics:    fs.Bool("metrics", false, "print decode throughput metrics"),
		progress:   fs.Bool("progress", false, "display decode progress updates"),
		verbose:    fs.Bool("verbose", false, "log per-flight decoder detail"),
	}
}

// env is the configured runtime of one subcommand invocation.
type env struct {
	cfg      *config.Config
	metrics  *common.Metrics
	progress bool
	report   bool
	closeLog func()
}

func (c *commonFlags) setup(name string) *env {
	cfg := config.Default()
	e := &env{closeLog: func() {}}
	if *c.configPath != "" {
		loaded, err := config.Load(*c.configPath)
		if err != nil {
			fail("load config", err)
		}
		cfg = loaded
		rot, err := cfg.Logs.Rotator(name + ".log")
		if err != nil {
			fail("setup logging", err)
		}
		common.SetOutput(io.MultiWriter(os.Stderr, rot))
		e.closeLog = func() {
			common.SetOutput(os.Stderr)
			rot.Close()
		}
	}
	common.SetVerbose(*c.verbose || cfg.Decoder.Verbose)
	e.cfg = cfg
	if *c.metrics || *c.progress {
		e.metrics = common.NewMetrics()
	}
	e.progress = *c.progress
	e.report = *c.metrics
	return e
}

// decode reads path with the configured decoder options. A file that fails
// part way is still returned when its header was read, so the flights before
// the failure can be used.
func (e *env) decode(path string, headersOnly bool) *jpi.File {
	opts := e.cfg.DecodeOptions()
	opts.Metrics = e.metrics
	if headersOnly {
		opts.HeadersOnly = true
	}
	if e.metrics != nil {
		if info, err := os.Stat(path); err == nil {
			e.metrics.SetTotalBytes(info.Size())
		}
	}
	var stopProgress func()
	if e.metrics != nil && e.progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, e.metrics, 500*time.Millisecond)
	}
	file, err := jpi.DecodeFile(path, opts)
	if stopProgress != nil {
		stopProgress()
	}
	if err != nil {
		if file == nil || file.Header == nil {
			fail("decode", err)
		}
		common.Logf("decode: %v", err)
		fmt.Fprintf(stdout, "WARNING: %v\n", err)
	}
	return file
}

func (e *env) printMetrics() {
	if e.metrics == nil || !e.report {
		return
	}
	snap := e.metrics.Snapshot()
	fmt.Fprintf(stdout, "Metrics: duration=%s flights=%d (invalid %d) records=%d samples=%d checksum-warnings=%d processed=%s throughput=%s/s\n",
		snap.Duration.Round(10*time.Millisecond),
		snap.Flights,
		snap.InvalidFlights,
		snap.Records,
		snap.Samples,
		snap.ChecksumWarnings,
		common.FormatBytes(snap.Bytes),
		common.FormatBytes(int64(snap.ThroughputBytesPerSecond())),
	)
}

// summarize applies the configured fuel unit to the flight summary.
func (e *env) summarize(hdr *jpi.FileHeader, f *jpi.Flight) analysis.Summary {
	sum := analysis.Summarize(hdr, f)
	unit, ok := e.cfg.FuelUnit()
	if !ok || sum.FuelUnit == "" || hdr == nil {
		return sum
	}
	if v, err := analysis.ConvertFuel(sum.FuelUsed, hdr.FuelFlow.Unit, unit); err == nil {
		sum.FuelUsed = v
		sum.FuelUnit = unit.Quantity()
	}
	return sum
}

func selectFlights(file *jpi.File, id int) []*jpi.Flight {
	if id < 0 {
		return file.Flights
	}
	f, ok := file.Flight(uint16(id))
	if !ok {
		failf("flight %d not found", id)
	}
	return []*jpi.Flight{f}
}

func requireInput(in string) {
	if in == "" {
		failf("required: --in")
	}
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	in := fs.String("in", "", "input .jpi")
	cf := addCommonFlags(fs)
	fs.Parse(args)
	requireInput(*in)

	e := cf.setup("edmctl")
	defer e.closeLog()
	file := e.decode(*in, true)
	hdr := file.Header

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Registration\t%s\n", fallback(hdr.Registration, "-"))
	fmt.Fprintf(w, "Model\tEDM-%d (version %d, %d engine(s))\n", hdr.Config.Model, hdr.Config.Version, hdr.Config.Engines())
	fmt.Fprintf(w, "Sensors\t%s\n", hdr.Config.Features)
	if hdr.HasDownloadDate {
		fmt.Fprintf(w, "Downloaded\t%s\n", hdr.Downloaded.Format(time.RFC3339))
	}
	a := hdr.Alarms
	fmt.Fprintf(w, "Alarms\tCHT %d  CLD %d  TIT %d  DIF %d  OIL %d-%d  BAT %.1f-%.1f\n",
		a.CHT, a.CLD, a.TIT, a.Diff, a.OilLow, a.OilHigh, float64(a.VoltsLow)/10, float64(a.VoltsHigh)/10)
	fmt.Fprintf(w, "Fuel flow\t%s, tanks %d/%d\n", hdr.FuelFlow.Unit, hdr.FuelFlow.Tank1, hdr.FuelFlow.Tank2)
	fmt.Fprintf(w, "Size\t%s (header %s)\n", common.FormatBytes(int64(hdr.TotalLen)), common.FormatBytes(int64(hdr.HeaderLen)))
	if hdr.ChecksumWarnings > 0 {
		fmt.Fprintf(w, "Checksum warnings\t%d\n", hdr.ChecksumWarnings)
	}
	if file.Excess > 0 {
		fmt.Fprintf(w, "Trailing bytes\t%d\n", file.Excess)
	}
	w.Flush()

	fmt.Fprintln(stdout)
	w = tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOFFSET\tSIZE\tSTART\tINTERVAL\tSTATUS")
	for i, entry := range hdr.Flights {
		start, interval, status := "-", "-", jpi.StatusInvalid.String()
		if i < len(file.Flights) {
			f := file.Flights[i]
			if f.Header.HasDate {
				start = f.Header.Start.Format("2006-01-02 15:04:05")
			}
			if f.Header.Interval > 0 {
				interval = f.Header.Interval.String()
			}
			status = f.Status.String()
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			entry.ID,
			hdr.FlightOffset(i),
			common.FormatBytes(int64(entry.SizeBytes())),
			start,
			interval,
			status,
		)
	}
	w.Flush()
	e.printMetrics()
}

func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input .jpi")
	outDir := fs.String("out-dir", "", "output directory (default from config)")
	format := fs.String("format", "", "json, msgpack or csv (default from config)")
	flightID := fs.Int("flight", -1, "decode only this flight id")
	cf := addCommonFlags(fs)
	fs.Parse(args)
	requireInput(*in)

	e := cf.setup("edmctl")
	defer e.closeLog()
	dir := fallback(*outDir, e.cfg.Output.Dir)
	fmtValue := e.cfg.ExportFormat()
	if *format != "" {
		f, err := export.ParseFormat(*format)
		if err != nil {
			fail("format", err)
		}
		fmtValue = f
	}

	file := e.decode(*in, false)
	written := 0
	for _, f := range selectFlights(file, *flightID) {
		if f.Status != jpi.StatusComplete {
			fmt.Fprintf(stdout, "skip flight %d: %s\n", f.Header.ID, f.Status)
			continue
		}
		path, err := export.WriteFile(dir, fmtValue, export.NewDocument(file.Header, f))
		if err != nil {
			fail("export", err)
		}
		fmt.Fprintf(stdout, "Wrote %s (%d samples)\n", path, len(f.Samples))
		written++
	}
	if written == 0 {
		fmt.Fprintln(stdout, "No flights written")
	}
	e.printMetrics()
}

func summaryCmd(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	in := fs.String("in", "", "input .jpi")
	flightID := fs.Int("flight", -1, "summarize only this flight id")
	jsonOut := fs.String("json", "", "write the flight summary as JSON (requires --flight)")
	cf := addCommonFlags(fs)
	fs.Parse(args)
	requireInput(*in)
	if *jsonOut != "" && *flightID < 0 {
		failf("--json requires --flight")
	}

	e := cf.setup("edmctl")
	defer e.closeLog()
	file := e.decode(*in, false)
	flights := selectFlights(file, *flightID)

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tDURATION\tSAMPLES\tFUEL\tALARMS\tOUTAGES\tSTATUS")
	sums := make([]analysis.Summary, 0, len(flights))
	for _, f := range flights {
		sum := e.summarize(file.Header, f)
		sums = append(sums, sum)
		fuel := "-"
		if sum.FuelUnit != "" {
			fuel = fmt.Sprintf("%.1f %s", sum.FuelUsed, sum.FuelUnit)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
			sum.FlightID,
			sum.Start.Format("2006-01-02 15:04"),
			sum.Duration,
			sum.Samples,
			fuel,
			len(sum.Alarms),
			len(sum.Outages),
			sum.Status,
		)
	}
	w.Flush()

	if len(sums) == 1 {
		printDetails(stdout, sums[0])
	}
	if *jsonOut != "" {
		rep, err := newFlightReport(*in, sums[0])
		if err != nil {
			fail("hash input", err)
		}
		if err := report.SaveSummaryJSON(rep, *jsonOut); err != nil {
			fail("write summary", err)
		}
		fmt.Fprintln(stdout, "Wrote", *jsonOut)
	}
	e.printMetrics()
}

func printDetails(out io.Writer, sum analysis.Summary) {
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PEAK\tSENSOR\tVALUE\tAT")
	for _, p := range sum.Peaks {
		fmt.Fprintf(w, "%s\t%s\t%g\t+%s\n", p.Kind, p.Label, p.Display(), p.Offset)
	}
	w.Flush()
	if len(sum.Alarms) == 0 {
		return
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ALARM\tSENSOR\tWORST\tLIMIT\tFROM\tDURATION")
	for _, a := range sum.Alarms {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t+%s\t%s\n", a.Kind, a.Label, a.Extreme, a.Limit, a.Offset, a.Duration)
	}
	w.Flush()
}

func newFlightReport(in string, sum analysis.Summary) (report.FlightReport, error) {
	digest, _, err := common.Sha256OfFile(in)
	if err != nil {
		return report.FlightReport{}, err
	}
	return report.FlightReport{
		Source:    filepath.Base(in),
		Digest:    digest,
		Generated: time.Now().UTC(),
		Summary:   sum,
	}, nil
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "input .jpi")
	flightID := fs.Int("flight", -1, "flight id")
	out := fs.String("out", "", "output flight report PDF")
	jsonOut := fs.String("json", "", "also write the summary as JSON")
	cf := addCommonFlags(fs)
	fs.Parse(args)
	requireInput(*in)
	if *flightID < 0 || *out == "" {
		failf("required: --flight, --out")
	}

	e := cf.setup("edmctl")
	defer e.closeLog()
	file := e.decode(*in, false)
	f := selectFlights(file, *flightID)[0]
	rep, err := newFlightReport(*in, e.summarize(file.Header, f))
	if err != nil {
		fail("hash input", err)
	}
	opts := report.PDFOptions{QRSize: e.cfg.Report.QRSize, MaxOutages: e.cfg.Report.MaxOutages}
	if err := report.SaveFlightPDF(rep, *out, opts); err != nil {
		fail("write pdf", err)
	}
	fmt.Fprintln(stdout, "Wrote PDF:", *out)
	if *jsonOut != "" {
		if err := report.SaveSummaryJSON(rep, *jsonOut); err != nil {
			fail("write summary", err)
		}
		fmt.Fprintln(stdout, "Wrote", *jsonOut)
	}
	e.printMetrics()
}

// batchCmd decodes every .jpi file below a directory. Each input gets its own
// output directory holding the flight exports, one summary per flight and a
// manifest of their digests.
func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	outDir := fs.String("out-dir", "", "results directory (default from config)")
	format := fs.String("format", "", "json, msgpack or csv (default from config)")
	cf := addCommonFlags(fs)
	fs.Parse(args)

	e := cf.setup("edmctl")
	defer e.closeLog()
	root := fallback(*outDir, e.cfg.Output.Dir)
	fmtValue := e.cfg.ExportFormat()
	if *format != "" {
		f, err := export.ParseFormat(*format)
		if err != nil {
			fail("format", err)
		}
		fmtValue = f
	}

	inputs, err := findCaptures(*inDir)
	if err != nil {
		fail("scan inputs", err)
	}
	if len(inputs) == 0 {
		fmt.Fprintln(stdout, "No .jpi files found")
		return
	}
	failed := 0
	for _, in := range inputs {
		name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		dir := filepath.Join(root, name)
		if err := batchOne(e, in, dir, fmtValue); err != nil {
			failed++
			common.Logf("batch %s: %v", in, err)
			fmt.Fprintf(stdout, "%s: FAILED %v\n", in, err)
			continue
		}
		fmt.Fprintf(stdout, "%s: OK -> %s\n", in, dir)
	}
	fmt.Fprintf(stdout, "%d file(s), %d failed\n", len(inputs), failed)
	e.printMetrics()
}

func batchOne(e *env, in, dir string, format export.Format) error {
	opts := e.cfg.DecodeOptions()
	opts.Metrics = e.metrics
	file, err := jpi.DecodeFile(in, opts)
	if file == nil || file.Header == nil {
		return err
	}
	written := []string{in}
	for _, f := range file.Flights {
		if f.Status != jpi.StatusComplete {
			continue
		}
		out, werr := export.WriteFile(dir, format, export.NewDocument(file.Header, f))
		if werr != nil {
			return werr
		}
		rep, herr := newFlightReport(in, e.summarize(file.Header, f))
		if herr != nil {
			return herr
		}
		path := filepath.Join(dir, fmt.Sprintf("flight_%04d.summary.json", f.Header.ID))
		if werr := report.SaveSummaryJSON(rep, path); werr != nil {
			return werr
		}
		written = append(written, out, path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	m, merr := manifest.Build(dir, written)
	if merr != nil {
		return merr
	}
	if merr := manifest.Save(m, filepath.Join(dir, manifest.FileName)); merr != nil {
		return merr
	}
	return err
}

func findCaptures(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".jpi") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func fallback(val, def string) string {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}
