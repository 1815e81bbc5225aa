package model

import (
	"context"
	"testing"
)

func TestRequestContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rc      *RequestContext
		wantErr bool
	}{
		{name: "valid context", rc: &RequestContext{SubjectID: "user-1"}, wantErr: false},
		{name: "missing SubjectID", rc: &RequestContext{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestContext_HasRole(t *testing.T) {
	rc := &RequestContext{Roles: []string{"admin", "recruiter"}}
	if !rc.HasRole("admin") {
		t.Error("HasRole(admin) = false, want true")
	}
	if rc.HasRole("viewer") {
		t.Error("HasRole(viewer) = true, want false")
	}
}

func TestRequestContext_Claim(t *testing.T) {
	rc := &RequestContext{Claims: map[string]any{"email": "a@b.c"}}
	if rc.Claim("email") != "a@b.c" {
		t.Error("Claim(email) mismatch")
	}
	if rc.Claim("missing") != nil {
		t.Error("Claim(missing) should be nil")
	}
	empty := &RequestContext{}
	if empty.Claim("email") != nil {
		t.Error("Claim on nil Claims should be nil")
	}
}

func TestRequestContext_roundTrip(t *testing.T) {
	rctx := &RequestContext{SubjectID: "user-1", IsAdmin: true}
	ctx := WithRequestContext(context.Background(), rctx)

	got := RequestContextFrom(ctx)
	if got != rctx {
		t.Fatal("RequestContextFrom did not return the stored context")
	}
	if RequestContextFrom(context.Background()) != nil {
		t.Error("RequestContextFrom on empty context should be nil")
	}
}

func TestMustRequestContext_panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustRequestContext should panic without a stored context")
		}
	}()
	MustRequestContext(context.Background())
}
