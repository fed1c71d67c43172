package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clienthq/followup-engine/internal/pkg/logger"
)

// SimulationProvider accepts every message without sending anything.
// Placed last in the chain it keeps non-production environments moving.
type SimulationProvider struct{}

func (SimulationProvider) Name() string { return "simulation" }

func (SimulationProvider) Send(_ context.Context, msg *Message) (*ProviderResult, error) {
	logger.Info("simulated send",
		"recipient", msg.To,
		"subject", msg.Subject)
	return &ProviderResult{MessageID: fmt.Sprintf("sim-%s", uuid.NewString())}, nil
}

var _ Provider = SimulationProvider{}
