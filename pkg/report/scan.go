package report

import (
	"strconv"

	"github.com/gregtusar/pairs/pkg/models"
)

var scanHeader = []string{
	"cointegration_flag", "p_value", "t_value", "critical_value",
	"hedge_ratio", "zero_crossings", "latest_zscore", "symbol_1", "symbol_2",
}

var scoreHeader = []string{
	"score_p", "score_z", "score_cross", "score_hedge", "score_t", "final_score",
}

func scanRow(r models.CointegrationResult) []string {
	return []string{
		formatBool(r.Cointegrated),
		formatFloat(r.PValue),
		formatFloat(r.TStat),
		formatFloat(r.CriticalValue),
		formatFloat(r.HedgeRatio),
		strconv.Itoa(r.ZeroCrossings),
		formatFloat(r.LatestZScore),
		r.Symbol1,
		r.Symbol2,
	}
}

// WriteScan writes results in the order given.
func WriteScan(path string, results []models.CointegrationResult) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, scanRow(r))
	}
	return writeCSV(path, scanHeader, rows)
}

func ReadScan(path string) ([]models.CointegrationResult, error) {
	t, err := readCSV(path, scanHeader)
	if err != nil {
		return nil, err
	}
	results := make([]models.CointegrationResult, 0, len(t.rows))
	for i := range t.rows {
		r, err := t.scanResult(i)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (t *table) scanResult(i int) (models.CointegrationResult, error) {
	var (
		r   models.CointegrationResult
		err error
	)
	r.Pair = models.NewPair(t.str(i, "symbol_1"), t.str(i, "symbol_2"))
	if r.Cointegrated, err = t.boolAt(i, "cointegration_flag"); err != nil {
		return r, err
	}
	if r.PValue, err = t.floatAt(i, "p_value"); err != nil {
		return r, err
	}
	if r.TStat, err = t.floatAt(i, "t_value"); err != nil {
		return r, err
	}
	if r.CriticalValue, err = t.floatAt(i, "critical_value"); err != nil {
		return r, err
	}
	if r.HedgeRatio, err = t.floatAt(i, "hedge_ratio"); err != nil {
		return r, err
	}
	if r.ZeroCrossings, err = t.intAt(i, "zero_crossings"); err != nil {
		return r, err
	}
	if r.LatestZScore, err = t.floatAt(i, "latest_zscore"); err != nil {
		return r, err
	}
	return r, nil
}

// WriteRanking writes the selected pairs with their component scores.
func WriteRanking(path string, ranked []models.RankedPair) error {
	header := append(append([]string{}, scanHeader...), scoreHeader...)
	rows := make([][]string, 0, len(ranked))
	for _, r := range ranked {
		row := scanRow(r.CointegrationResult)
		for _, v := range r.Scores.Vector() {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, append(row, formatFloat(r.FinalScore)))
	}
	return writeCSV(path, header, rows)
}

// ReadRanking reads a ranking file. Score columns are optional so a plain
// scan file can be monitored directly.
func ReadRanking(path string) ([]models.RankedPair, error) {
	t, err := readCSV(path, scanHeader)
	if err != nil {
		return nil, err
	}

	ranked := make([]models.RankedPair, 0, len(t.rows))
	for i := range t.rows {
		res, err := t.scanResult(i)
		if err != nil {
			return nil, err
		}
		rp := models.RankedPair{CointegrationResult: res}
		if _, ok := t.columns["final_score"]; ok {
			scores := make([]float64, len(scoreHeader))
			for j, col := range scoreHeader {
				if _, ok := t.columns[col]; !ok {
					continue
				}
				if scores[j], err = t.floatAt(i, col); err != nil {
					return nil, err
				}
			}
			rp.Scores = models.ComponentScores{
				PValue:        scores[0],
				ZScore:        scores[1],
				ZeroCrossings: scores[2],
				HedgeRatio:    scores[3],
				TStat:         scores[4],
			}
			rp.FinalScore = scores[5]
		}
		ranked = append(ranked, rp)
	}
	return ranked, nil
}
