package specialistpool

import (
	"context"
	"sync"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

type Handle struct {
	key            string
	specialistType domain.SpecialistType

	once   sync.Once
	done   chan struct{}
	result *domain.SpecialistResult
}

func newHandle(key string, specialistType domain.SpecialistType) *Handle {
	return &Handle{key: key, specialistType: specialistType, done: make(chan struct{})}
}

func (h *Handle) Key() string { return h.key }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (*domain.SpecialistResult, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking.
func (h *Handle) Result() (*domain.SpecialistResult, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return nil, false
	}
}

func (h *Handle) complete(result *domain.SpecialistResult) {
	h.once.Do(func() {
		h.result = result
		close(h.done)
	})
}
