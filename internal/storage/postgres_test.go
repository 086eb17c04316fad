package storage

import "testing"

func TestSanitizeConfidence(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.9632000000000001, 0.9632},
		{0.5, 0.5},
		{-0.3, 0.0},
		{1.7, 1.0},
		{0.0, 0.0},
		{1.0, 1.0},
		{0.12345, 0.1235},
	}
	for _, tc := range cases {
		if got := sanitizeConfidence(tc.in); got != tc.want {
			t.Errorf("sanitizeConfidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	in := []byte(`{"text":"damaged\u0000scan\u0001here"}`)
	got := string(sanitizeJSONForPostgres(in))
	want := `{"text":"damagedscan here"}`
	if got != want {
		t.Errorf("sanitizeJSONForPostgres = %q, want %q", got, want)
	}

	clean := []byte(`{"text":"nothing to strip"}`)
	if got := string(sanitizeJSONForPostgres(clean)); got != string(clean) {
		t.Errorf("clean JSON should pass through unchanged, got %q", got)
	}
}
