package model

import "testing"

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Entity not found"}
	want := "NOT_FOUND: Entity not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewNotFoundError(t *testing.T) {
	e := NewNotFoundError("resource missing")
	if e.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", e.Code, ErrNotFound)
	}
	if e.Message != "resource missing" {
		t.Errorf("Message = %q, want %q", e.Message, "resource missing")
	}
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "email", Code: FieldErrRequired, Message: "Email is required"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "email" {
		t.Errorf("Details[0].Field = %q", e.Details[0].Field)
	}
	if e.Details[0].Code != FieldErrRequired {
		t.Errorf("Details[0].Code = %q", e.Details[0].Code)
	}
}

func TestNewInternalError(t *testing.T) {
	e := NewInternalError()
	if e.Code != ErrInternalError {
		t.Errorf("Code = %q, want %q", e.Code, ErrInternalError)
	}
}

func TestFieldSpec_EffectiveWireKey(t *testing.T) {
	f := FieldSpec{Key: "declaration_206ab"}
	if got := f.EffectiveWireKey(); got != "declaration_206ab" {
		t.Errorf("EffectiveWireKey() = %q, want key fallback", got)
	}

	f.WireKey = "declaration_206AB_file"
	if got := f.EffectiveWireKey(); got != "declaration_206AB_file" {
		t.Errorf("EffectiveWireKey() = %q, want wire key", got)
	}
}
