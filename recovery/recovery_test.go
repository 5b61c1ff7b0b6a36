package recovery

import (
	"context"
	"errors"
	"testing"
)

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	if got := s.OnError(context.Background(), errors.New("bad"), Location{Component: "xref"}); got != ActionFail {
		t.Fatalf("expected fail, got %v", got)
	}
}

func TestLenientStrategyActions(t *testing.T) {
	s := NewLenientStrategy(nil)
	ctx := context.Background()
	tests := []struct {
		component string
		want      Action
	}{
		{"xref", ActionFix},
		{"pagetree", ActionSkip},
		{"object", ActionWarn},
	}
	for _, tt := range tests {
		if got := s.OnError(ctx, errors.New("damaged"), Location{Component: tt.component, ByteOffset: 42}); got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.component, got, tt.want)
		}
	}
	errs := s.Errors()
	if len(errs) != len(tests) {
		t.Fatalf("expected %d recorded errors, got %d", len(tests), len(errs))
	}
	if errs[0].Error() != "[xref] offset 42: damaged" {
		t.Fatalf("unexpected error text %q", errs[0].Error())
	}
}
