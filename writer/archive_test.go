package writer

import (
	"strings"
	"testing"
	"time"

	appconfig "coinquest/config"
	"coinquest/models"
)

func TestEncodeParquet(t *testing.T) {
	records := []models.ArchiveRecord{
		{Kind: "whale", Symbol: "BTC", Price: 50000, Quantity: 20, ValueUSD: 1_000_000, Narrative: "Whale accumulated $1000000 of BTC", Timestamp: 1700000000000},
		{Kind: "snapshot", Symbol: "ETH", Price: 3000, Change24h: -1.2, Timestamp: 1700000001000},
	}

	data, err := encodeParquet(records)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}
	// parquet files start and end with the PAR1 magic
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Errorf("payload is not a parquet file")
	}
}

func TestGenerateS3Key(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.Prefix = "coinquest/events"
	w := &ArchiveWriter{config: cfg}

	now := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	key := w.generateS3Key(now)

	if !strings.HasPrefix(key, "coinquest/events/date=2026-01-15/hour=09/") {
		t.Errorf("unexpected key layout: %s", key)
	}
	if !strings.HasSuffix(key, ".parquet") {
		t.Errorf("key should end in .parquet: %s", key)
	}
}
