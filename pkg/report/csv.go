// Package report reads and writes the CSV files exchanged between the scan,
// rank, signal and backtest stages. Floats are rounded to four decimals.
package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/gregtusar/pairs/pkg/store"
	"github.com/shopspring/decimal"
)

const Precision = 4

var ErrBadReport = errors.New("malformed report")

// formatFloat rounds to Precision places. Non-finite values are written so
// that strconv.ParseFloat reads them back.
func formatFloat(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).Round(Precision).String()
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func writeCSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return store.WriteFileAtomic(path, buf.Bytes())
}

// table is a parsed CSV file addressed by column name.
type table struct {
	path    string
	columns map[string]int
	rows    [][]string
}

func readCSV(path string, required []string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadReport, path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: missing header", ErrBadReport, path)
	}

	t := &table{path: path, columns: make(map[string]int, len(records[0])), rows: records[1:]}
	for i, name := range records[0] {
		t.columns[name] = i
	}
	for _, name := range required {
		if _, ok := t.columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s: missing column %q", ErrBadReport, path, name)
		}
	}
	return t, nil
}

func (t *table) str(row int, col string) string {
	return t.rows[row][t.columns[col]]
}

func (t *table) floatAt(row int, col string) (float64, error) {
	v, err := strconv.ParseFloat(t.str(row, col), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s row %d column %s: %v", ErrBadReport, t.path, row+2, col, err)
	}
	return v, nil
}

func (t *table) intAt(row int, col string) (int, error) {
	s := t.str(row, col)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	// accept "12.0" as written by tools that store counts as floats
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s row %d column %s: %q", ErrBadReport, t.path, row+2, col, s)
	}
	return int(f), nil
}

func (t *table) boolAt(row int, col string) (bool, error) {
	v, err := strconv.ParseBool(t.str(row, col))
	if err != nil {
		return false, fmt.Errorf("%w: %s row %d column %s: %v", ErrBadReport, t.path, row+2, col, err)
	}
	return v, nil
}
