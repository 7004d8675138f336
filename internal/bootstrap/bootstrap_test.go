package bootstrap

import (
	"context"
	"errors"
	"testing"

	platformerrors "warnet-server-go/internal/platform/errors"
)

func TestInitGraphDependenciesOrdered(t *testing.T) {
	seen := make(map[string]struct{})
	for _, step := range InitGraph() {
		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; !ok {
				t.Fatalf("step %s depends on %s which is not defined earlier", step.ID, dep)
			}
		}
		if step.Execute == nil {
			t.Fatalf("step %s has no execute function", step.ID)
		}
		seen[step.ID] = struct{}{}
	}
}

func TestExecuteInitStepsMissingDependency(t *testing.T) {
	steps := []initStep{
		{
			ID:        "b",
			DependsOn: []string{"a"},
			Execute:   func(context.Context, *appState) error { return nil },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if !platformerrors.IsKind(err, platformerrors.KindBootstrap) {
		t.Fatalf("expected bootstrap error, got %v", err)
	}
}

func TestExecuteInitStepsWrapsFailure(t *testing.T) {
	boom := errors.New("boom")
	steps := []initStep{
		{
			ID:      "a",
			Kind:    platformerrors.KindStorage,
			Execute: func(context.Context, *appState) error { return boom },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if !platformerrors.IsKind(err, platformerrors.KindStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestExecuteInitStepsRunsInOrder(t *testing.T) {
	var order []string
	record := func(id string) stepFn {
		return func(context.Context, *appState) error {
			order = append(order, id)
			return nil
		}
	}
	steps := []initStep{
		{ID: "a", Execute: record("a")},
		{ID: "b", DependsOn: []string{"a"}, Execute: record("b")},
		{ID: "c", DependsOn: []string{"b"}, Execute: record("c")},
	}
	if err := executeInitSteps(context.Background(), steps, &appState{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order: %v", order)
	}
}
