package operation

import (
	"context"
	"strings"
	"testing"
)

func nopHandler(_ context.Context, _ any, _ []any, _ []any) (any, error) {
	return nil, nil
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		opName  string
		sig     Signature
		handler Handler
		wantErr bool
	}{
		{"valid", "svc.op", Signature{Inputs: 2, Outputs: 1, Return: ReturnValue}, nopHandler, false},
		{"zero slots", "svc.ping", Signature{}, nopHandler, false},
		{"empty name", "", Signature{}, nopHandler, true},
		{"nil handler", "svc.op", Signature{}, nil, true},
		{"negative inputs", "svc.op", Signature{Inputs: -1}, nopHandler, true},
		{"negative outputs", "svc.op", Signature{Outputs: -2}, nopHandler, true},
		{"bad return kind", "svc.op", Signature{Return: ReturnKind(9)}, nopHandler, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := New(tt.opName, tt.sig, tt.handler)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if op.Name() != tt.opName {
					t.Errorf("Name() = %q, want %q", op.Name(), tt.opName)
				}
				if op.Signature() != tt.sig {
					t.Errorf("Signature() = %+v, want %+v", op.Signature(), tt.sig)
				}
			}
		})
	}
}

func TestMustNewPanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew did not panic on invalid operation")
		}
	}()
	MustNew("", Signature{}, nopHandler)
}

func TestReturnKindProperties(t *testing.T) {
	tests := []struct {
		kind     ReturnKind
		str      string
		isAsync  bool
		hasValue bool
	}{
		{ReturnNone, "none", false, false},
		{ReturnValue, "value", false, true},
		{ReturnAsyncNone, "async-none", true, false},
		{ReturnAsyncValue, "async-value", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if got := tt.kind.IsAsync(); got != tt.isAsync {
				t.Errorf("IsAsync() = %v, want %v", got, tt.isAsync)
			}
			if got := tt.kind.HasValue(); got != tt.hasValue {
				t.Errorf("HasValue() = %v, want %v", got, tt.hasValue)
			}
		})
	}
}

func TestHasCompiled(t *testing.T) {
	op := MustNew("svc.op", Signature{Return: ReturnNone}, nopHandler)
	if op.HasCompiled() {
		t.Fatal("HasCompiled true before first Compiled call")
	}
	if op.Compiled() == nil {
		t.Fatal("Compiled returned nil")
	}
	if !op.HasCompiled() {
		t.Error("HasCompiled false after Compiled")
	}
}

func TestNewErrorMentionsName(t *testing.T) {
	_, err := New("billing.charge", Signature{Inputs: -1}, nopHandler)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "billing.charge") {
		t.Errorf("error %q does not mention the operation name", err)
	}
}
