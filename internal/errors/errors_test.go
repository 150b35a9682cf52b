package errors

import (
	"fmt"
	"testing"
)

func TestErrorBuilderDefaults(t *testing.T) {
	t.Parallel()

	ee := Newf("boom: %d", 42).Build()

	if ee.Error() != "boom: 42" {
		t.Errorf("Error() = %q, want %q", ee.Error(), "boom: 42")
	}
	if ee.Category != CategoryGeneric {
		t.Errorf("Category = %q, want generic", ee.Category)
	}
	if ee.Component != ComponentUnknown {
		t.Errorf("Component = %q, want unknown", ee.Component)
	}
	if ee.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestCategoryMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		want     bool
	}{
		{
			name:     "direct category match",
			err:      NotFound("image %s not found", "a.jpg"),
			category: CategoryNotFound,
			want:     true,
		},
		{
			name:     "category mismatch",
			err:      NotFound("missing"),
			category: CategoryEmptyQueue,
			want:     false,
		},
		{
			name:     "wrapped enhanced error",
			err:      fmt.Errorf("commit: %w", ModelUnavailable(nil, "no generation")),
			category: CategoryModelUnavailable,
			want:     true,
		},
		{
			name:     "plain error has no category",
			err:      NewStd("plain"),
			category: CategoryNotFound,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsCategory(tt.err, tt.category); got != tt.want {
				t.Errorf("IsCategory() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFoundHelper(t *testing.T) {
	t.Parallel()

	if !IsNotFound(NotFound("gone")) {
		t.Error("IsNotFound should match CategoryNotFound")
	}
	if IsNotFound(ValidationError("bad request")) {
		t.Error("IsNotFound should not match validation errors")
	}
}

func TestModelUnavailableWrapsCause(t *testing.T) {
	t.Parallel()

	cause := NewStd("checksum mismatch")
	ee := ModelUnavailable(cause, "weights corrupt")

	if !Is(ee, cause) {
		t.Error("expected cause to be in the error tree")
	}
	if !IsModelUnavailable(ee) {
		t.Error("expected model-unavailable category")
	}
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := Newf("ctx").Context("label", "cats").Build()
	got := ee.GetContext()
	got["label"] = "dogs"

	if ee.Context["label"] != "cats" {
		t.Error("GetContext must return a copy, not the backing map")
	}
}
