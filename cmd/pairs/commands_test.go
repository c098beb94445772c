package main

import (
	"path/filepath"
	"testing"

	"github.com/gregtusar/pairs/internal/config"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/gregtusar/pairs/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacktestPairsFromFlag(t *testing.T) {
	pairs, err := backtestPairs("BTCUSDT_ETHUSDT, ADAUSDT_XRPUSDT", "")
	require.NoError(t, err)
	assert.Equal(t, []models.Pair{
		models.NewPair("BTCUSDT", "ETHUSDT"),
		models.NewPair("ADAUSDT", "XRPUSDT"),
	}, pairs)

	_, err = backtestPairs("BTCUSDT", "")
	assert.Error(t, err)
}

func TestBacktestPairsFromRanking(t *testing.T) {
	cfg = &config.Config{Ranking: config.RankingConfig{MaxHedgeRatio: 10000}}
	path := filepath.Join(t.TempDir(), "top.csv")
	require.NoError(t, report.WriteRanking(path, []models.RankedPair{
		{CointegrationResult: models.CointegrationResult{Pair: models.NewPair("A", "B"), Cointegrated: true, HedgeRatio: 2}},
		{CointegrationResult: models.CointegrationResult{Pair: models.NewPair("C", "D"), Cointegrated: true, HedgeRatio: 25000}},
	}))

	pairs, err := backtestPairs("", path)
	require.NoError(t, err)
	assert.Equal(t, []models.Pair{models.NewPair("A", "B")}, pairs)
}

func TestSymbolsOf(t *testing.T) {
	symbols := symbolsOf([]models.Pair{
		models.NewPair("ETHUSDT", "BTCUSDT"),
		models.NewPair("ADAUSDT", "ETHUSDT"),
	})
	assert.Equal(t, []string{"ADAUSDT", "BTCUSDT", "ETHUSDT"}, symbols)
}
