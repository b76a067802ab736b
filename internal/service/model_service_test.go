package service

import (
	"context"
	"errors"
	"testing"

	"github.com/audiostudio/api/internal/stage"
)

type scriptedStage struct {
	name        string
	unavailable bool
	loaded      bool
	loadErr     error
	loadCalls   int
}

func (s *scriptedStage) Name() string                     { return s.name }
func (s *scriptedStage) IsAvailable(context.Context) bool { return !s.unavailable }
func (s *scriptedStage) IsLoaded(context.Context) bool    { return s.loaded }

func (s *scriptedStage) Load(context.Context, any) error {
	s.loadCalls++
	return s.loadErr
}

func (s *scriptedStage) Process(context.Context, stage.ProcessRequest) (stage.ProcessResult, error) {
	return stage.ProcessResult{}, nil
}

func TestModelServiceStatus(t *testing.T) {
	registry, err := stage.NewRegistry(
		&scriptedStage{name: "svc", loaded: true},
		&scriptedStage{name: "mixing", unavailable: true},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	svc := NewModelService(registry)

	health := svc.Status(context.Background())
	if len(health) != 2 {
		t.Fatalf("health entries = %d", len(health))
	}
	// Sorted by stage name.
	if health[0].Stage != "mixing" || health[1].Stage != "svc" {
		t.Errorf("order = %s, %s", health[0].Stage, health[1].Stage)
	}
	if health[0].Available || !health[1].Available || !health[1].Loaded {
		t.Errorf("flags = %+v", health)
	}
}

func TestLoadStage(t *testing.T) {
	ok := &scriptedStage{name: "svc"}
	down := &scriptedStage{name: "swiftf0", unavailable: true}
	broken := &scriptedStage{name: "instrumental", loadErr: errors.New("out of VRAM")}

	registry, err := stage.NewRegistry(ok, down, broken)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	svc := NewModelService(registry)
	ctx := context.Background()

	if err := svc.LoadStage(ctx, "svc"); err != nil {
		t.Errorf("LoadStage(svc): %v", err)
	}
	if ok.loadCalls != 1 {
		t.Errorf("load calls = %d", ok.loadCalls)
	}

	if err := svc.LoadStage(ctx, "reverb"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("unknown stage err = %v", err)
	}

	if err := svc.LoadStage(ctx, "swiftf0"); !errors.Is(err, stage.ErrUnavailable) {
		t.Errorf("unreachable host err = %v", err)
	}
	if down.loadCalls != 0 {
		t.Error("load attempted against unreachable host")
	}

	if err := svc.LoadStage(ctx, "instrumental"); err == nil || errors.Is(err, ErrUnknownStage) {
		t.Errorf("load failure err = %v", err)
	}
}
