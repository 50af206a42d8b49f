package mongo

import (
	"errors"
	"strings"
	"testing"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

func TestWrapStorageTagsDriverErrors(t *testing.T) {
	cause := errors.New("connection reset by peer")

	err := wrapStorage("insert location", cause)
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected errors.Is(err, domain.ErrStorage), got %v", err)
	}
	if !strings.Contains(err.Error(), "insert location") {
		t.Errorf("expected operation in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestWrapStoragePassesThroughNil(t *testing.T) {
	if err := wrapStorage("insert location", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
