package utils

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsBot/internal/domain"
)

func sampleTrades() []*domain.Trade {
	entry := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	return []*domain.Trade{{
		PositionID:  "pos1",
		Symbol:      "NIFTY",
		Side:        domain.Short,
		Quantity:    50,
		EntryTime:   entry,
		EntryPrice:  25000,
		ExitTime:    entry.Add(15 * time.Minute),
		ExitPrice:   24960.5,
		ExitReason:  domain.ExitTargetHit,
		PNL:         1975,
		PNLPct:      0.158,
		ExitOrderID: "B7",
	}}
}

func TestWriteTrades(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, sampleTrades()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, tradeHeader, records[0])
	assert.Equal(t, []string{
		"pos1", "NIFTY", "SHORT", "50", "2026-10-19T10:00:00Z", "25000",
		"2026-10-19T10:15:00Z", "24960.5", "TARGET_HIT", "1975.00", "0.16", "B7",
	}, records[1])
}

func TestWriteTradesToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, WriteTradesToCSV(sampleTrades(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pos1,NIFTY,SHORT")
}
