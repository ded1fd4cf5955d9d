package alerting

import (
	"math"
	"testing"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/config"
)

func types(conds []models.AlertCondition) []models.AlertType {
	out := make([]models.AlertType, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.Type)
	}
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		in   models.TickerReadings
		want []models.AlertType
	}{
		{
			name: "nothing notable",
			in:   models.TickerReadings{Price: 100, Market: models.MarketData{High52W: 150, Low52W: 50, PrevClose: 99, Open: 99.5}},
			want: []models.AlertType{},
		},
		{
			name: "near 52 week high",
			in:   models.TickerReadings{Price: 98, Market: models.MarketData{High52W: 100}},
			want: []models.AlertType{models.AlertBreakoutNearHigh},
		},
		{
			name: "above 52 week high still counts",
			in:   models.TickerReadings{Price: 103, Market: models.MarketData{High52W: 100}},
			want: []models.AlertType{models.AlertBreakoutNearHigh},
		},
		{
			name: "near 52 week low",
			in:   models.TickerReadings{Price: 51, Market: models.MarketData{Low52W: 50}},
			want: []models.AlertType{models.AlertBounceNearLow},
		},
		{
			name: "sma200 test",
			in:   models.TickerReadings{Price: 100.5, Indicators: map[string]float64{models.IndSMA200: 100}},
			want: []models.AlertType{models.AlertSMA200Test},
		},
		{
			name: "volume spike",
			in:   models.TickerReadings{Price: 100, Market: models.MarketData{Volume: 2500, AvgVolume: 1000}},
			want: []models.AlertType{models.AlertVolumeSpike},
		},
		{
			name: "price move and gap down",
			in:   models.TickerReadings{Price: 90, Market: models.MarketData{PrevClose: 100, Open: 94}},
			want: []models.AlertType{models.AlertPriceMoveDown, models.AlertGapDown},
		},
		{
			name: "price move up",
			in:   models.TickerReadings{Price: 106, Market: models.MarketData{PrevClose: 100, Open: 101}},
			want: []models.AlertType{models.AlertPriceMoveUp},
		},
		{
			name: "deep historical drawdown",
			in:   models.TickerReadings{Price: 50, History: models.PriceHistory{Closes: []float64{100, 55, 50}}},
			want: []models.AlertType{models.AlertHighDrawdownRisk},
		},
		{
			name: "no price detects nothing",
			in:   models.TickerReadings{Market: models.MarketData{High52W: 1, Volume: 10, AvgVolume: 1}},
			want: []models.AlertType{},
		},
	}

	d := NewDetector(config.Default().Alerts)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := types(d.Detect(tt.in))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDetectVolumeSeverityAndConfidence(t *testing.T) {
	d := NewDetector(config.Default().Alerts)

	normal := d.Detect(models.TickerReadings{Price: 101, Market: models.MarketData{Volume: 2000, AvgVolume: 1000, PrevClose: 100}})
	extreme := d.Detect(models.TickerReadings{Price: 101, Market: models.MarketData{Volume: 8000, AvgVolume: 1000, PrevClose: 100}})

	if len(normal) != 1 || normal[0].Ping || normal[0].Severity != models.SeverityMedium {
		t.Fatalf("2x volume = %+v", normal)
	}
	if normal[0].Confidence != 0.5 || normal[0].Direction != models.DirectionBullish {
		t.Fatalf("2x volume confidence/direction = %v/%s", normal[0].Confidence, normal[0].Direction)
	}
	if len(extreme) != 1 || !extreme[0].Ping || extreme[0].Severity != models.SeverityHigh {
		t.Fatalf("8x volume = %+v", extreme)
	}
	if extreme[0].Confidence != maxConfidence {
		t.Fatalf("8x volume confidence = %v, want capped at %v", extreme[0].Confidence, maxConfidence)
	}
}

func TestDetectVolumeFromHistory(t *testing.T) {
	vols := make([]float64, 25)
	for i := range vols {
		vols[i] = 100
	}
	vols[24] = 250
	conds := NewDetector(config.Default().Alerts).Detect(models.TickerReadings{Price: 10, History: models.PriceHistory{Volumes: vols}})
	if len(conds) != 1 || conds[0].Type != models.AlertVolumeSpike {
		t.Fatalf("got %v", types(conds))
	}
	if math.Abs(conds[0].Metrics["volume_ratio"]-2.5) > 1e-9 {
		t.Fatalf("ratio = %v", conds[0].Metrics["volume_ratio"])
	}
}

func TestAlertsSubScore(t *testing.T) {
	if s := AlertsSubScore(nil); s.Value != 0 {
		t.Fatalf("empty = %v", s.Value)
	}
	bull := models.AlertCondition{Direction: models.DirectionBullish, Confidence: 0.8}
	bear := models.AlertCondition{Direction: models.DirectionBearish, Confidence: 0.6}
	if s := AlertsSubScore([]models.AlertCondition{bull, bear}); math.Abs(s.Value-10) > 1e-9 {
		t.Fatalf("mixed = %v, want 10", s.Value)
	}
	if s := AlertsSubScore([]models.AlertCondition{bull, bull, bull}); s.Value != 100 {
		t.Fatalf("stacked = %v, want clamp at 100", s.Value)
	}
}
