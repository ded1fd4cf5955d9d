package service

import (
	"context"

	"SignalGate/internal/domain/models"
)

// SubScoreProvider supplies one named collaborator sub-score, already on the -100..100 scale.
// ok=false means the collaborator has nothing for this ticker; that is not an error.
type SubScoreProvider interface {
	Name() string
	SubScore(ctx context.Context, r models.TickerReadings) (score models.SubScore, ok bool, err error)
}
