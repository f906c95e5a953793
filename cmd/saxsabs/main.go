// Command saxsabs performs headless SAXS absolute-intensity calibration:
// parsing reduced 1D profiles, estimating the K-factor against a reference
// standard, subtracting buffers, and exporting calibrated curves.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beamline-data/saxsabs/internal/attenuation"
	"github.com/beamline-data/saxsabs/internal/calibrate"
	"github.com/beamline-data/saxsabs/internal/config"
	"github.com/beamline-data/saxsabs/internal/export"
	"github.com/beamline-data/saxsabs/internal/header"
	"github.com/beamline-data/saxsabs/internal/ingest"
	"github.com/beamline-data/saxsabs/internal/normalize"
	"github.com/beamline-data/saxsabs/internal/preflight"
	"github.com/beamline-data/saxsabs/internal/profile"
	"github.com/beamline-data/saxsabs/internal/report"
	"github.com/beamline-data/saxsabs/internal/standards"
	"github.com/beamline-data/saxsabs/internal/subtract"
	storage "github.com/beamline-data/saxsabs/internal/storage/sqlite"
	"github.com/beamline-data/saxsabs/internal/version"
)

const usageText = `saxsabs - SAXS absolute intensity utilities

Commands:
  calibrate     run the full calibration pipeline on one profile
  estimate-k    robust K-factor estimation against a registered standard
  norm-factor   compute a monitor normalization factor
  parse-header  normalize instrument header metadata from a file
  parse-profile parse an external 1D profile and report its shape
  subtract      buffer subtraction with error propagation
  preflight     score a batch of input files for run readiness
  attenuation   linear attenuation coefficient from a composition
  runs          list recent calibration runs from the audit store
  migrate       apply audit store schema migrations
  version       print build information
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "calibrate":
		err = runCalibrate(os.Args[2:])
	case "estimate-k":
		err = runEstimateK(os.Args[2:])
	case "norm-factor":
		err = runNormFactor(os.Args[2:])
	case "parse-header":
		err = runParseHeader(os.Args[2:])
	case "parse-profile":
		err = runParseProfile(os.Args[2:])
	case "subtract":
		err = runSubtract(os.Args[2:])
	case "preflight":
		err = runPreflight(os.Args[2:])
	case "attenuation":
		err = runAttenuation(os.Args[2:])
	case "runs":
		err = runListRuns(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "version", "--version":
		fmt.Printf("saxsabs %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("saxsabs %s: %v", os.Args[1], err)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadProfile reads a data file and returns both the parsed profile and the
// header extracted from its comment lines.
func loadProfile(path string) (string, header.Header, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", header.Header{}, err
	}
	text := string(raw)
	h, err := header.Parse(ingest.ScanMetadata(text))
	if err != nil {
		return "", header.Header{}, err
	}
	return text, h, nil
}

func runCalibrate(args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	in := fs.String("in", "", "input profile file (required)")
	standard := fs.String("standard", "SRM3600", "registered calibration standard")
	mode := fs.String("mode", "rate", "normalization mode: rate or integrated")
	qmin := fs.Float64("qmin", standards.RecommendedSRM3600Window[0], "lower fit window bound (1/A)")
	qmax := fs.Float64("qmax", standards.RecommendedSRM3600Window[1], "upper fit window bound (1/A)")
	temp := fs.Float64("temp", 0, "sample temperature in C (overrides header)")
	divThickness := fs.Bool("divide-thickness", false, "additionally divide by header thickness")
	bufferFile := fs.String("buffer", "", "buffer profile to subtract after scaling")
	alpha := fs.Float64("alpha", 1.0, "buffer scale factor")
	out := fs.String("out", "", "output file for the calibrated profile")
	format := fs.String("format", "xml", "output format: xml, h5, tsv, or csv")
	plotDir := fs.String("plots", "", "directory for diagnostic plot and chart output")
	dbPath := fs.String("db", "", "sqlite audit store to record the run in")
	configPath := fs.String("config", "", "JSON defaults file for this instrument")
	fs.Parse(args)

	if *in == "" {
		return errors.New("-in is required")
	}

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["standard"] {
			*standard = cfg.GetStandard()
		}
		if !set["mode"] {
			*mode = cfg.GetMode()
		}
		if !set["qmin"] && !set["qmax"] {
			*qmin, *qmax = cfg.GetQWindow(*qmin, *qmax)
		}
		if !set["temp"] && cfg.TemperatureC != nil {
			*temp = *cfg.TemperatureC
		}
		if !set["alpha"] {
			*alpha = cfg.GetBufferAlpha()
		}
		if !set["divide-thickness"] {
			*divThickness = cfg.GetDivideByThickness()
		}
		if !set["format"] {
			*format = cfg.GetOutputFormat()
		}
		if !set["db"] {
			*dbPath = cfg.GetAuditDB()
		}
	}

	text, h, err := loadProfile(*in)
	if err != nil {
		return err
	}
	measured, err := ingest.ReadString(text)
	if err != nil {
		return err
	}

	m, err := normalize.ParseMode(*mode)
	if err != nil {
		return err
	}

	cfg := calibrate.Config{
		Standard:          *standard,
		Mode:              m,
		Options:           calibrate.Options{QMin: *qmin, QMax: *qmax},
		DivideByThickness: *divThickness,
	}
	if *temp != 0 {
		cfg.Resolve.TemperatureC = temp
	}

	reg := standards.NewRegistry()
	abs, result, err := calibrate.Transform(reg, measured, h, cfg)
	if err != nil {
		return err
	}

	log.Printf("K = %.6g +/- %.3g (%d/%d points, q overlap %.4g..%.4g)",
		result.KFactor, result.KStd, result.PointsUsed, result.PointsTotal,
		result.QMinOverlap, result.QMaxOverlap)
	if *bufferFile != "" {
		bufText, bufHeader, err := loadProfile(*bufferFile)
		if err != nil {
			return fmt.Errorf("buffer: %w", err)
		}
		buffer, err := ingest.ReadString(bufText)
		if err != nil {
			return fmt.Errorf("buffer: %w", err)
		}
		// The buffer is brought to the same absolute scale as the sample:
		// its own monitor normalization, then the shared K-factor.
		bn, err := normalize.Factor(m, bufHeader)
		if err != nil {
			return fmt.Errorf("buffer: %w", err)
		}
		sub, err := subtract.Subtract(abs, buffer.Scaled(result.KFactor/bn), *alpha)
		if err != nil {
			return err
		}
		abs = sub.Profile
	}
	if result.DegenerateFallback {
		log.Printf("warning: outlier filter collapsed; K uses the full overlap set")
	}

	if *out != "" {
		meta := export.Metadata{SampleName: filepath.Base(*in)}
		if err := exportProfile(*out, *format, abs, meta); err != nil {
			return err
		}
		log.Printf("wrote %s", *out)
	}

	if *plotDir != "" {
		dir, err := report.MakeOutputDir(*plotDir, *in)
		if err != nil {
			return err
		}
		if err := report.SavePlot(&result, *standard, filepath.Join(dir, "calibration.png")); err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(dir, "calibration.html"))
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.RenderChart(&result, *standard, f); err != nil {
			return err
		}
		log.Printf("diagnostics in %s", dir)
	}

	if *dbPath != "" {
		store, err := storage.Open(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		err = store.Insert(&storage.CalibrationRun{
			ProfileName: filepath.Base(*in),
			Standard:    *standard,
			Mode:        string(m),
			KFactor:     result.KFactor,
			KStd:        result.KStd,
			PointsTotal: result.PointsTotal,
			PointsUsed:  result.PointsUsed,
			QMinOverlap: result.QMinOverlap,
			QMaxOverlap: result.QMaxOverlap,
			Degenerate:  result.DegenerateFallback,
		})
		if err != nil {
			return fmt.Errorf("recording run: %w", err)
		}
	}

	return printJSON(map[string]interface{}{
		"k_factor":      result.KFactor,
		"k_std":         result.KStd,
		"q_min_overlap": result.QMinOverlap,
		"q_max_overlap": result.QMaxOverlap,
		"points_used":   result.PointsUsed,
		"points_total":  result.PointsTotal,
		"degenerate":    result.DegenerateFallback,
	})
}

// readProfileFile ingests a profile from a data file.
func readProfileFile(path string) (profile.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return profile.Profile{}, err
	}
	return ingest.ReadString(string(raw))
}

// exportProfile dispatches on the output format flag. XML and HDF5 writers
// enforce the momentum-transfer guard themselves.
func exportProfile(path, format string, p profile.Profile, meta export.Metadata) error {
	switch format {
	case "xml", "cansas":
		return export.WriteCanSAS(path, p, meta)
	case "h5", "nxcansas":
		return export.WriteNXcanSAS(path, p, meta)
	case "tsv":
		return export.WriteDelimited(path, p, '\t')
	case "csv":
		return export.WriteDelimited(path, p, ',')
	default:
		return fmt.Errorf("unknown output format %q (want xml, h5, tsv, or csv)", format)
	}
}

func runEstimateK(args []string) error {
	fs := flag.NewFlagSet("estimate-k", flag.ExitOnError)
	meas := fs.String("meas", "", "measured profile file (required)")
	standard := fs.String("standard", "SRM3600", "registered calibration standard")
	qmin := fs.Float64("qmin", standards.RecommendedSRM3600Window[0], "lower fit window bound (1/A)")
	qmax := fs.Float64("qmax", standards.RecommendedSRM3600Window[1], "upper fit window bound (1/A)")
	temp := fs.Float64("temp", 0, "standard temperature in C (water model)")
	fs.Parse(args)

	if *meas == "" {
		return errors.New("-meas is required")
	}
	raw, err := os.ReadFile(*meas)
	if err != nil {
		return err
	}
	measured, err := ingest.ReadString(string(raw))
	if err != nil {
		return err
	}

	var resolve standards.ResolveOptions
	if *temp != 0 {
		resolve.TemperatureC = temp
	}
	reg := standards.NewRegistry()
	result, err := calibrate.EstimateKByName(reg, measured, *standard, resolve,
		calibrate.Options{QMin: *qmin, QMax: *qmax})
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"k_factor":      result.KFactor,
		"k_std":         result.KStd,
		"q_min_overlap": result.QMinOverlap,
		"q_max_overlap": result.QMaxOverlap,
		"points_used":   result.PointsUsed,
		"points_total":  result.PointsTotal,
		"degenerate":    result.DegenerateFallback,
	})
}

func runNormFactor(args []string) error {
	fs := flag.NewFlagSet("norm-factor", flag.ExitOnError)
	exp := fs.Float64("exp", 0, "exposure time in seconds (rate mode)")
	mon := fs.Float64("mon", 0, "monitor counts (required)")
	trans := fs.Float64("trans", 0, "sample transmission in (0,1] (required)")
	mode := fs.String("mode", "", "rate or integrated (required)")
	fs.Parse(args)

	m, err := normalize.ParseMode(*mode)
	if err != nil {
		return err
	}
	h := header.Header{MonitorCounts: mon, Transmission: trans}
	if *exp != 0 {
		h.ExposureTime = exp
	}
	factor, err := normalize.Factor(m, h)
	if err != nil {
		return err
	}
	fmt.Println(strconv.FormatFloat(factor, 'g', -1, 64))
	return nil
}

func runParseHeader(args []string) error {
	fs := flag.NewFlagSet("parse-header", flag.ExitOnError)
	in := fs.String("in", "", "data or header file (required)")
	fs.Parse(args)

	if *in == "" {
		return errors.New("-in is required")
	}
	_, h, err := loadProfile(*in)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"exp_s":   h.ExposureTime,
		"i0":      h.MonitorCounts,
		"trans":   h.Transmission,
		"thick":   h.Thickness,
		"temp_c":  h.Temperature,
		"missing": h.Missing(),
	})
}

func runParseProfile(args []string) error {
	fs := flag.NewFlagSet("parse-profile", flag.ExitOnError)
	in := fs.String("in", "", "profile file (required)")
	fs.Parse(args)

	if *in == "" {
		return errors.New("-in is required")
	}
	raw, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	p, err := ingest.ReadString(string(raw))
	if err != nil {
		return err
	}
	known := 0
	for _, e := range p.Err {
		if e == e { // not NaN
			known++
		}
	}
	return printJSON(map[string]interface{}{
		"points":       p.Len(),
		"axis":         string(p.Axis),
		"known_errors": known,
		"x_min":        p.X[0],
		"x_max":        p.X[p.Len()-1],
	})
}

func runSubtract(args []string) error {
	fs := flag.NewFlagSet("subtract", flag.ExitOnError)
	sample := fs.String("sample", "", "sample profile file (required)")
	buffer := fs.String("buffer", "", "buffer profile file (required)")
	alpha := fs.Float64("alpha", 1.0, "buffer scale factor")
	out := fs.String("out", "", "output file for the subtracted profile")
	format := fs.String("format", "tsv", "output format: xml, h5, tsv, or csv")
	fs.Parse(args)

	if *sample == "" || *buffer == "" {
		return errors.New("-sample and -buffer are required")
	}
	sp, err := readProfileFile(*sample)
	if err != nil {
		return err
	}
	bp, err := readProfileFile(*buffer)
	if err != nil {
		return err
	}
	res, err := subtract.Subtract(sp, bp, *alpha)
	if err != nil {
		return err
	}

	if *out != "" {
		meta := export.Metadata{SampleName: filepath.Base(*sample)}
		if err := exportProfile(*out, *format, res.Profile, meta); err != nil {
			return err
		}
		log.Printf("wrote %s", *out)
	}
	return printJSON(map[string]interface{}{
		"points":        res.Profile.Len(),
		"alpha":         res.Alpha,
		"residual_mean": res.ResidualMean,
		"residual_ok":   res.ResidualOK,
	})
}

func runPreflight(args []string) error {
	fs := flag.NewFlagSet("preflight", flag.ExitOnError)
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		return errors.New("at least one input file is required")
	}
	summary, reports := preflight.EvaluateFiles(paths)
	if err := printJSON(map[string]interface{}{
		"gate":  summary,
		"files": reports,
	}); err != nil {
		return err
	}
	if summary.Blocked() {
		os.Exit(1)
	}
	return nil
}

func runAttenuation(args []string) error {
	fs := flag.NewFlagSet("attenuation", flag.ExitOnError)
	material := fs.String("material", "", "preset material key (see -list)")
	composition := fs.String("composition", "", `mass-fraction composition, e.g. "Fe:0.9,Cr:0.1"`)
	density := fs.Float64("density", 0, "material density in g/cm^3")
	energy := fs.Float64("energy", 0, "photon energy in keV (required)")
	table := fs.String("murho-table", "", "CSV of element,mu_rho (cm^2/g) at the beam energy (required)")
	list := fs.Bool("list", false, "list preset materials and exit")
	fs.Parse(args)

	if *list {
		for _, key := range attenuation.PresetKeys() {
			p, _ := attenuation.LookupPreset(key)
			fmt.Printf("%-12s %s (%.3g g/cm^3)\n", key, p.Name, p.Density)
		}
		return nil
	}

	dens := *density
	var comp map[string]float64
	switch {
	case *material != "":
		p, ok := attenuation.LookupPreset(*material)
		if !ok {
			return fmt.Errorf("unknown material preset %q", *material)
		}
		comp = p.Composition
		if dens == 0 {
			dens = p.Density
		}
	case *composition != "":
		var err error
		comp, err = attenuation.ParseComposition(*composition, attenuation.DefaultSumTolerance)
		if err != nil {
			return err
		}
	default:
		return errors.New("-material or -composition is required")
	}
	if *energy <= 0 {
		return errors.New("-energy must be positive")
	}
	if *table == "" {
		return errors.New("-murho-table is required (element,mu_rho rows at the beam energy)")
	}

	lookup, err := tableLookup(*table)
	if err != nil {
		return err
	}
	res, err := attenuation.Calculate(comp, dens, *energy, lookup)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// tableLookup builds a LookupFunc from a two-column CSV of element,mu_rho
// values. The table is only valid at a single photon energy; the energy
// argument is accepted for interface compatibility and ignored.
func tableLookup(path string) (attenuation.LookupFunc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]float64)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed mu/rho row %q", line)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed mu/rho value in %q: %w", line, err)
		}
		values[strings.TrimSpace(parts[0])] = v
	}
	return func(element string, _ float64) (float64, error) {
		v, ok := values[element]
		if !ok {
			return 0, fmt.Errorf("element %q not in mu/rho table", element)
		}
		return v, nil
	}, nil
}

func runListRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", "", "sqlite audit store path (required)")
	limit := fs.Int("limit", 20, "number of runs to list")
	profileName := fs.String("profile", "", "filter by profile name")
	fs.Parse(args)

	if *dbPath == "" {
		return errors.New("-db is required")
	}
	store, err := storage.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var runs []*storage.CalibrationRun
	if *profileName != "" {
		runs, err = store.ListByProfile(*profileName)
	} else {
		runs, err = store.Recent(*limit)
	}
	if err != nil {
		return err
	}
	return printJSON(runs)
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "", "sqlite audit store path (required)")
	dir := fs.String("dir", "internal/storage/sqlite/migrations", "migrations directory")
	fs.Parse(args)

	if *dbPath == "" {
		return errors.New("-db is required")
	}
	action := "up"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	store, err := storage.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch action {
	case "up":
		return store.MigrateUp(*dir)
	case "down":
		return store.MigrateDown(*dir)
	case "status":
		v, dirty, err := store.MigrateVersion(*dir)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"version": v, "dirty": dirty})
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down, or status)", action)
	}
}
