package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestWithDetailsCopies(t *testing.T) {
	with := ErrBatchRejected.WithDetails("a.exe: unsupported", "b.pdf: too large")

	if len(ErrBatchRejected.Details) != 0 {
		t.Fatal("expected shared error to stay without details")
	}
	if len(with.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(with.Details))
	}
	if with.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", with.StatusCode)
	}
}

func TestWithMessageKeepsCode(t *testing.T) {
	with := ErrCodeExhausted.WithMessage("Invitation code has expired")

	if with.Code != ErrCodeExhausted.Code {
		t.Fatalf("expected code %s, got %s", ErrCodeExhausted.Code, with.Code)
	}
	if ErrCodeExhausted.Message == with.Message {
		t.Fatal("expected message override on the copy only")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}
