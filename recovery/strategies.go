package recovery

import (
	"fmt"
	"sync"

	"github.com/wudi/pdfcapture/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy implements a best-effort recovery strategy: damaged
// cross-reference data is rebuilt by scanning the file, and unreadable page
// tree nodes are skipped.
type LenientStrategy struct {
	logger observability.Logger

	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy(logger observability.Logger) *LenientStrategy {
	return &LenientStrategy{logger: observability.OrNop(logger)}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()

	action := ActionWarn
	switch location.Component {
	case "xref":
		action = ActionFix
	case "pagetree":
		action = ActionSkip
	}
	s.logger.Warn("recovering from damaged pdf",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("object", location.ObjectNum),
		observability.String("action", action.String()),
		observability.Error("error", err),
	)
	return action
}

// Errors returns the errors recorded so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
