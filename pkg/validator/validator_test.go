package validator

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEnsureSafeID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		maxLen  int
		want    string
		wantErr bool
	}{
		{name: "Plain", id: "abc123", want: "abc123"},
		{name: "Trimmed", id: "  L1  ", want: "L1"},
		{name: "Punctuation", id: "a.b_c:d-e", want: "a.b_c:d-e"},
		{name: "Empty", id: "   ", wantErr: true},
		{name: "LeadingDash", id: "-abc", wantErr: true},
		{name: "Space", id: "a b", wantErr: true},
		{name: "TooLongForField", id: strings.Repeat("a", 37), maxLen: 36, wantErr: true},
		{name: "TooLongForPattern", id: strings.Repeat("a", 129), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EnsureSafeID("id", tt.id, tt.maxLen)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EnsureSafeID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("EnsureSafeID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		maxLen    int
		multiline bool
		want      string
	}{
		{name: "Trim", in: "  hi  ", maxLen: 10, want: "hi"},
		{name: "StripControl", in: "a\x00b\x07c\x7f", maxLen: 10, want: "abc"},
		{name: "SingleLineDropsNewline", in: "a\nb\tc", maxLen: 10, want: "abc"},
		{name: "MultilineKeepsNewline", in: "a\nb\tc", maxLen: 10, multiline: true, want: "a\nb\tc"},
		{name: "CapRunes", in: "žžžžž", maxLen: 3, want: "žžž"},
		{name: "OnlyControl", in: "\x01\x02", maxLen: 10, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in, tt.maxLen, tt.multiline); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeStringSlice(t *testing.T) {
	got := SanitizeStringSlice([]string{" email ", "", "sms", "email", "push", "in_app", "extra"}, 4, 20)
	want := []string{"email", "sms", "push", "in_app"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizeStringSlice() mismatch (-want +got):\n%s", diff)
	}
}

func TestStruct(t *testing.T) {
	type request struct {
		ListingID string `json:"listing_id" validate:"required,safeid"`
		Body      string `json:"body" validate:"required,max=10"`
		Optional  string `json:"optional" validate:"omitempty,safeid"`
	}

	errs := Struct(request{ListingID: "bad id", Body: "this is far too long"})
	want := ValidationErrors{
		"listing_id": "Must be a valid identifier",
		"body":       "Must be at most 10 characters",
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Errorf("Struct() mismatch (-want +got):\n%s", diff)
	}

	if errs := Struct(request{ListingID: "L1", Body: "ok"}); errs.HasErrors() {
		t.Errorf("Struct() = %v, want no errors", errs)
	}
}
