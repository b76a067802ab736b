package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/audiostudio/api/internal/stage"
)

// ErrUnknownStage means a stage name outside the registry was requested.
var ErrUnknownStage = errors.New("unknown stage")

// ModelService reports on and controls the model hosts behind the
// pipeline stages.
type ModelService struct {
	registry *stage.Registry
}

func NewModelService(registry *stage.Registry) *ModelService {
	return &ModelService{registry: registry}
}

// Status reports availability and load state for every registered stage
func (s *ModelService) Status(ctx context.Context) []stage.Health {
	return s.registry.Health(ctx)
}

// LoadStage warm-loads one stage's model ahead of processing
func (s *ModelService) LoadStage(ctx context.Context, name string) error {
	st, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	if !st.IsAvailable(ctx) {
		return fmt.Errorf("%w: %s host is not reachable", stage.ErrUnavailable, name)
	}
	if err := st.Load(ctx, nil); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}
