// Package ingest parses delimited 1D text profiles into the shared profile
// representation. External reduced files arrive in CSV, whitespace, and
// semicolon flavours, with or without a header row; delimiter strategies are
// tried in a fixed priority order and the first one producing a consistent
// rectangular numeric table wins.
package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/beamline-data/saxsabs/internal/profile"
)

// ErrFormat indicates no delimiter strategy produced rectangular numeric
// data with at least two columns.
var ErrFormat = errors.New("unrecognized profile format")

// MinPoints is the minimum number of rows required for a usable profile.
const MinPoints = 3

// strategy splits one data line into fields.
type strategy struct {
	name  string
	split func(line string) []string
}

// Strategies are tried in priority order: comma, whitespace, semicolon.
var strategies = []strategy{
	{"comma", func(line string) []string { return splitTrim(line, ",") }},
	{"whitespace", strings.Fields},
	{"semicolon", func(line string) []string { return splitTrim(line, ";") }},
}

func splitTrim(line, sep string) []string {
	parts := strings.Split(line, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// Column-role tokens checked against header cells, most specific first.
var (
	xTokens   = []string{"q", "chi", "radial", "2theta", "x"}
	iTokens   = []string{"intensity", "irel", "iabs", "signal", "count", "i"}
	errTokens = []string{"error", "sigma", "std", "unc"}
)

// Read parses a delimited 1D profile from r. Lines starting with '#' and
// blank lines are skipped. When the first surviving row is non-numeric it
// is treated as a header row and used for column-role inference; otherwise
// columns are taken positionally as (x, I, error). Duplicate x rows are
// merged per profile.Regularize. The axis tag is inferred from the x column
// header when present ("chi" marks azimuthal data), defaulting to
// MomentumTransfer.
func Read(r io.Reader) (profile.Profile, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return profile.Profile{}, fmt.Errorf("reading profile: %w", err)
	}
	if len(lines) == 0 {
		return profile.Profile{}, fmt.Errorf("%w: no data lines", ErrFormat)
	}

	var firstErr error
	for _, st := range strategies {
		p, err := tryStrategy(lines, st)
		if err == nil {
			return p, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return profile.Profile{}, fmt.Errorf("%w: no delimiter strategy matched (%v)", ErrFormat, firstErr)
}

// ReadString is Read over an in-memory document.
func ReadString(text string) (profile.Profile, error) {
	return Read(strings.NewReader(text))
}

// ScanMetadata extracts key/value pairs from '#' comment lines in a data
// document, accepting "key: value" and "key = value" forms. Comment lines
// without a separator are ignored. The result is suitable for header.Parse.
func ScanMetadata(text string) map[string]string {
	meta := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		sep := strings.IndexAny(line, ":=")
		if sep <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if key != "" && value != "" {
			meta[key] = value
		}
	}
	return meta
}

// tryStrategy attempts to parse all lines with one delimiter strategy and
// assemble a profile from the resulting table.
func tryStrategy(lines []string, st strategy) (profile.Profile, error) {
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		fields := st.split(line)
		if len(fields) > 0 {
			rows = append(rows, fields)
		}
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("no rows")
	}

	var headerRow []string
	if !rowIsNumeric(rows[0]) {
		headerRow = rows[0]
		rows = rows[1:]
	}

	ncols := 0
	for _, row := range rows {
		if ncols == 0 {
			ncols = len(row)
		} else if len(row) != ncols {
			return profile.Profile{}, fmt.Errorf("ragged table: %d vs %d columns", len(row), ncols)
		}
	}
	if ncols < 2 {
		return profile.Profile{}, fmt.Errorf("need at least 2 columns, found %d", ncols)
	}
	if len(rows) < MinPoints {
		return profile.Profile{}, fmt.Errorf("only %d data rows", len(rows))
	}

	table := make([][]float64, len(rows))
	for i, row := range rows {
		vals := make([]float64, ncols)
		for j, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return profile.Profile{}, fmt.Errorf("non-numeric cell %q at row %d", cell, i)
			}
			vals[j] = v
		}
		table[i] = vals
	}

	xCol, iCol, errCol, axis := inferColumns(headerRow, ncols)

	p := profile.Profile{Axis: axis}
	for _, row := range table {
		p.X = append(p.X, row[xCol])
		p.I = append(p.I, row[iCol])
		if errCol >= 0 {
			p.Err = append(p.Err, row[errCol])
		} else {
			p.Err = append(p.Err, math.NaN())
		}
	}

	out, err := profile.Regularize(p, profile.DefaultMergeTolerance, MinPoints)
	if err != nil {
		return profile.Profile{}, err
	}
	return out, nil
}

func rowIsNumeric(row []string) bool {
	for _, cell := range row {
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
	}
	return true
}

// inferColumns maps header text to (x, intensity, error) column indices,
// falling back to positional convention when no header is available. The
// error column index is -1 when the file carries no uncertainties.
func inferColumns(headerRow []string, ncols int) (xCol, iCol, errCol int, axis profile.AxisSemantics) {
	xCol, iCol, errCol = 0, 1, -1
	if ncols >= 3 {
		errCol = 2
	}
	axis = profile.MomentumTransfer

	if headerRow == nil {
		return xCol, iCol, errCol, axis
	}

	norm := make([]string, len(headerRow))
	for i, h := range headerRow {
		s := strings.ToLower(strings.TrimSpace(h))
		s = strings.ReplaceAll(s, "_", "")
		s = strings.ReplaceAll(s, " ", "")
		norm[i] = s
	}

	pick := func(tokens []string, used map[int]bool) int {
		for i, name := range norm {
			if used[i] || i >= ncols {
				continue
			}
			for _, tok := range tokens {
				if strings.Contains(name, tok) {
					return i
				}
			}
		}
		return -1
	}

	used := map[int]bool{}
	if c := pick(xTokens, used); c >= 0 {
		xCol = c
	}
	used[xCol] = true
	if c := pick(iTokens, used); c >= 0 {
		iCol = c
	} else {
		for i := 0; i < ncols; i++ {
			if !used[i] {
				iCol = i
				break
			}
		}
	}
	used[iCol] = true
	if c := pick(errTokens, used); c >= 0 {
		errCol = c
	} else {
		errCol = -1
		for i := 0; i < ncols; i++ {
			if !used[i] {
				errCol = i
				break
			}
		}
	}

	if xCol < len(norm) && strings.Contains(norm[xCol], "chi") {
		axis = profile.AzimuthalAngle
	}
	return xCol, iCol, errCol, axis
}
