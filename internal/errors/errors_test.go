package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("boom")
	ee := New(err).Build()

	if ee.Err.Error() != "boom" {
		t.Fatalf("expected message 'boom', got %q", ee.Err.Error())
	}
	if ee.GetComponent() == "" {
		t.Fatal("expected a detected component, got empty string")
	}
}

func TestBuilderSetsCategoryAndContext(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("device busy")).
		Component("capture").
		Category(CategoryAudioSource).
		Context("device", "default").
		Build()

	if ee.GetCategory() != string(CategoryAudioSource) {
		t.Fatalf("expected category %q, got %q", CategoryAudioSource, ee.GetCategory())
	}
	if ee.GetContext()["device"] != "default" {
		t.Fatalf("expected context device=default, got %v", ee.GetContext())
	}
}

func TestCategoryAutoDetectionFromMessage(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("adapter eval timeout exceeded")).Build()
	if ee.Category != CategoryTimeout {
		t.Fatalf("expected timeout category, got %s", ee.Category)
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("bad sample rate")).Category(CategoryValidation).Build()
	if !IsCategory(ee, CategoryValidation) {
		t.Fatal("expected IsCategory to match")
	}
	if IsCategory(ee, CategoryTimeout) {
		t.Fatal("expected IsCategory to not match unrelated category")
	}
}

func TestTimingContext(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("slow tick")).Timing("infer", 120*time.Millisecond).Build()
	if ee.GetContext()["duration_ms"] != int64(120) {
		t.Fatalf("expected duration_ms=120, got %v", ee.GetContext()["duration_ms"])
	}
}

func TestJoinAndIsPassthrough(t *testing.T) {
	t.Parallel()

	base := fmt.Errorf("root cause")
	wrapped := New(base).Category(CategoryProcessing).Build()
	joined := Join(wrapped, fmt.Errorf("secondary"))
	if !Is(joined, base) {
		t.Fatal("expected Is to find wrapped root cause through Join")
	}
}
