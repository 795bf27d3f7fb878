package validation

import (
	"errors"
	"testing"
)

// TestValidateLocation verifies trimming, length bounds and the allowed
// character set, including that case is preserved.
func TestValidateLocation(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		maxLen  int
		want    string
		wantErr error
	}{
		{name: "simple", in: "Paris", maxLen: 100, want: "Paris"},
		{name: "trimmed", in: "  New York  ", maxLen: 100, want: "New York"},
		{name: "case preserved", in: "SAN FRANCISCO", maxLen: 100, want: "SAN FRANCISCO"},
		{name: "unicode letters", in: "Zürich", maxLen: 100, want: "Zürich"},
		{name: "comma and hyphen", in: "Winston-Salem, NC", maxLen: 100, want: "Winston-Salem, NC"},
		{name: "apostrophe", in: "Coeur d'Alene", maxLen: 100, want: "Coeur d'Alene"},
		{name: "empty", in: "", maxLen: 100, wantErr: ErrLocationEmpty},
		{name: "whitespace only", in: "   ", maxLen: 100, wantErr: ErrLocationEmpty},
		{name: "too long", in: "abcdef", maxLen: 5, wantErr: ErrLocationTooLong},
		{name: "injection characters", in: "Paris<script>", maxLen: 100, wantErr: ErrLocationInvalidChars},
		{name: "slash", in: "a/b", maxLen: 100, wantErr: ErrLocationInvalidChars},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateLocation(tc.in, tc.maxLen)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ValidateLocation(%q) error = %v, want %v", tc.in, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateLocation(%q) error = %v, want nil", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ValidateLocation(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
