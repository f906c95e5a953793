package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/beamline-data/saxsabs/internal/profile"
)

// WriteDelimited writes a profile as delimited text with a header row and
// columns x, intensity, error. comma selects the field separator ('\t' for
// TSV, ',' for CSV). Unknown uncertainties are written as "nan"; the
// ingest package maps them back to unknown on re-read.
func WriteDelimited(path string, p profile.Profile, comma rune) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = comma

	xName := "q"
	if p.Axis == profile.AzimuthalAngle {
		xName = "chi"
	}
	if err := w.Write([]string{xName, "intensity", "error"}); err != nil {
		return err
	}
	for i := range p.X {
		e := math.NaN()
		if i < len(p.Err) {
			e = p.Err[i]
		}
		row := []string{
			strconv.FormatFloat(p.X[i], 'g', -1, 64),
			strconv.FormatFloat(p.I[i], 'g', -1, 64),
			strconv.FormatFloat(e, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing delimited profile: %w", err)
	}
	return f.Close()
}
