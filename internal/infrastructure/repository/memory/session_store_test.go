package memory

import (
	"context"
	"testing"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

func TestSessionStoreLazyCreationAndAppend(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "s1"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found before first reference, got %v", err)
	}
	s, err := store.GetOrCreate(ctx, "s1")
	if err != nil || s.QueryCount != 0 || len(s.History) != 0 {
		t.Fatalf("unexpected new session %+v, %v", s, err)
	}

	turn := []domain.Message{{Role: domain.RoleUser, Content: "q"}, {Role: domain.RoleAssistant, Content: "a"}}
	if err := store.AppendTurn(ctx, "s1", turn); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	got, _ := store.Get(ctx, "s1")
	if got.QueryCount != 1 || len(got.History) != 2 {
		t.Fatalf("unexpected session after append %+v", got)
	}
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_ = store.AppendTurn(ctx, "s1", []domain.Message{{Role: domain.RoleUser, Content: "q"}})

	s, _ := store.Get(ctx, "s1")
	s.History[0].Content = "mutated"
	s.History = append(s.History, domain.Message{Role: domain.RoleUser, Content: "extra"})

	again, _ := store.Get(ctx, "s1")
	if len(again.History) != 1 || again.History[0].Content != "q" {
		t.Fatalf("stored history was aliased: %+v", again.History)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "s1")
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}
