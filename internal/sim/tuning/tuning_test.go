package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if got.TickIntervalMS != want.TickIntervalMS ||
		got.Climate.EventProbability != want.Climate.EventProbability ||
		got.Assembly.Majority != want.Assembly.Majority ||
		got.Treaty.MaxPerState != want.Treaty.MaxPerState ||
		got.Feed.EventLog != want.Feed.EventLog {
		t.Fatalf("defaults mismatch: got %+v", got)
	}
}

func TestLoad_FileOverridesOnlyPresentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	doc := `
tick_interval_ms: 250
climate:
  event_probability: 0.5
regions:
  PB:
    gdp: 60.5
    resources:
      water: 9000
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickIntervalMS != 250 {
		t.Fatalf("tick_interval_ms: got %d want 250", got.TickIntervalMS)
	}
	if got.Climate.EventProbability != 0.5 {
		t.Fatalf("climate.event_probability: got %v want 0.5", got.Climate.EventProbability)
	}
	// Fields absent from the document keep defaults.
	if got.Climate.MinIntervalTicks != 5 {
		t.Fatalf("climate.min_interval_ticks should keep default 5; got %d", got.Climate.MinIntervalTicks)
	}
	if got.Assembly.IntervalTicks != 50 || got.Trade.MaxQuantity != 2000 {
		t.Fatalf("untouched sections should keep defaults: %+v", got)
	}

	ov, ok := got.Regions["PB"]
	if !ok {
		t.Fatalf("missing PB override")
	}
	if ov.GDP == nil || *ov.GDP != 60.5 {
		t.Fatalf("PB gdp override: %+v", ov.GDP)
	}
	if ov.Population != nil {
		t.Fatalf("PB population should stay nil (not overridden)")
	}
	if ov.Resources["water"] != 9000 {
		t.Fatalf("PB water override: %v", ov.Resources)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickIntervalMS != 2000 {
		t.Fatalf("empty file should keep defaults; got %+v", got)
	}
}
