package collaborators

import (
	"context"
	"net/http"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/service"
	xhttp "SignalGate/pkg/http"
	"SignalGate/pkg/util"
)

type subScoreRequest struct {
	Ticker     string             `json:"ticker"`
	AsOf       time.Time          `json:"as_of"`
	Price      float64            `json:"price"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

type subScoreResponse struct {
	Available *bool   `json:"available"`
	Value     float64 `json:"value"`
	Note      string  `json:"note"`
}

// HTTPProvider asks a collaborator service for one named sub-score at
// POST {base}/v1/subscores/{name}. A 404 or available=false means no score.
type HTTPProvider struct {
	name string
	base *HTTPBase
}

func NewHTTPProvider(name string, base *HTTPBase) *HTTPProvider {
	return &HTTPProvider{name: name, base: base}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) SubScore(ctx context.Context, r models.TickerReadings) (models.SubScore, bool, error) {
	var resp subScoreResponse
	err := p.base.PostJSON(ctx, "/v1/subscores/"+p.name, subScoreRequest{
		Ticker:     r.Ticker,
		AsOf:       r.AsOf,
		Price:      r.Price,
		Indicators: r.Indicators,
	}, &resp)
	if xhttp.IsStatus(err, http.StatusNotFound) {
		return models.SubScore{}, false, nil
	}
	if err != nil {
		return models.SubScore{}, false, err
	}
	if resp.Available != nil && !*resp.Available {
		return models.SubScore{}, false, nil
	}
	if !util.IsFinite(resp.Value) {
		return models.SubScore{}, false, nil
	}
	return models.SubScore{Value: util.Clamp(resp.Value, -100, 100), Note: resp.Note}, true, nil
}

var _ service.SubScoreProvider = (*HTTPProvider)(nil)
