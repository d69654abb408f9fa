package idgen

import (
	"context"
	"errors"
	"testing"

	"github.com/dotwork/issuegraph/internal/types"
)

func TestEncodeBase36PadsAndTruncates(t *testing.T) {
	if got := EncodeBase36([]byte{0}, 4); got != "0000" {
		t.Errorf("got %q", got)
	}
	got := EncodeBase36([]byte{255, 255, 255, 255}, 2)
	if len(got) != 2 {
		t.Errorf("expected length 2, got %q", got)
	}
}

func TestGenerateProducesWellFormedID(t *testing.T) {
	noneExist := func(ctx context.Context, id types.ID) (bool, error) { return false, nil }

	id, err := Generate(context.Background(), "iss", noneExist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := types.ParseID(id.String()); err != nil {
		t.Errorf("generated id %q failed to parse: %v", id, err)
	}
	if len(id) > types.MaxIDLength {
		t.Errorf("id %q exceeds max length", id)
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	calls := 0
	alwaysCollide := func(ctx context.Context, id types.ID) (bool, error) {
		calls++
		return calls < 3, nil
	}

	id, err := Generate(context.Background(), "iss", alwaysCollide)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls < 3 {
		t.Errorf("expected at least 3 attempts, got %d", calls)
	}
	if id.Empty() {
		t.Error("expected a non-empty id after retry")
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	alwaysCollide := func(ctx context.Context, id types.ID) (bool, error) { return true, nil }

	_, err := Generate(context.Background(), "iss", alwaysCollide)
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
	var genErr *types.IdGenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("expected an IdGenerationError, got %v", err)
	}
}
