package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"optionsBot/internal/domain"
)

var tradeHeader = []string{
	"position_id", "symbol", "side", "quantity", "entry_time", "entry_price",
	"exit_time", "exit_price", "exit_reason", "pnl", "pnl_pct", "exit_order_id",
}

// WriteTrades writes trades as CSV with a header row.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		err := writer.Write([]string{
			t.PositionID,
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			t.EntryTime.Format(time.RFC3339),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			t.ExitTime.Format(time.RFC3339),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			string(t.ExitReason),
			strconv.FormatFloat(t.PNL, 'f', 2, 64),
			strconv.FormatFloat(t.PNLPct, 'f', 2, 64),
			t.ExitOrderID,
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTradesToCSV writes trades to filename, replacing any existing file.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteTrades(file, trades); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
