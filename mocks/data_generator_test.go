package mocks

import (
	"testing"
	"time"
)

func TestDataGenerator_Generate(t *testing.T) {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 100

	bars := gen.Generate(config)
	if len(bars) != 100 {
		t.Fatalf("expected 100 bars, got %d", len(bars))
	}

	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Errorf("bars not in chronological order at index %d", i)
		}
	}

	for i, b := range bars {
		if b.Symbol != config.Symbol {
			t.Errorf("expected symbol %s at index %d, got %s", config.Symbol, i, b.Symbol)
		}

		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			t.Errorf("invalid OHLC at index %d: O=%f H=%f L=%f C=%f", i, b.Open, b.High, b.Low, b.Close)
		}

		if b.High < b.Low {
			t.Errorf("high below low at index %d", i)
		}

		if wd := b.Time.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("weekend bar at index %d: %s", i, b.Time)
		}
	}
}

func TestDataGenerator_Reproducibility(t *testing.T) {
	config := DefaultConfig()
	config.Count = 50

	a := NewDataGenerator(7).Generate(config)
	b := NewDataGenerator(7).Generate(config)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar %d differs between runs with the same seed", i)
		}
	}

	c := NewDataGenerator(8).Generate(config)
	if a[10].Close == c[10].Close && a[20].Close == c[20].Close {
		t.Errorf("different seeds produced identical closes")
	}
}

func TestGenerateMultiSymbol(t *testing.T) {
	config := DefaultConfig()
	config.Count = 20

	out := NewDataGenerator(1).GenerateMultiSymbol([]string{"AAPL", "MSFT"}, config)
	if len(out) != 2 || len(out["AAPL"]) != 20 || len(out["MSFT"]) != 20 {
		t.Fatalf("unexpected output sizes")
	}

	if !out["AAPL"][0].Time.Equal(out["MSFT"][0].Time) {
		t.Errorf("series should share a calendar")
	}
}
