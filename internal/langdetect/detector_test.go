package langdetect

import "testing"

func TestDetectShortTextFallsBack(t *testing.T) {
	cases := []string{"", "hi", "   ", "abc def"}
	for _, text := range cases {
		result := Detect(text)
		if result.Language != DefaultLanguage {
			t.Errorf("Detect(%q) language = %q, want %q", text, result.Language, DefaultLanguage)
		}
		if result.Confidence != 0 {
			t.Errorf("Detect(%q) confidence = %v, want 0", text, result.Confidence)
		}
	}
}

func TestDetectEnglish(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog and then the fox runs away with that bone"
	result := Detect(text)
	if result.Language != "en" {
		t.Fatalf("Detect language = %q, want en (confidence=%v)", result.Language, result.Confidence)
	}
	if result.Confidence <= 0 {
		t.Errorf("confidence = %v, want > 0", result.Confidence)
	}
}

func TestDetectSpanish(t *testing.T) {
	text := "El perro come con la familia en la casa porque para ellos es una parte de los suyos"
	result := Detect(text)
	if result.Language != "es" {
		t.Fatalf("Detect language = %q, want es (confidence=%v)", result.Language, result.Confidence)
	}
}

func TestDetectConfidenceBounds(t *testing.T) {
	texts := []string{
		"The quick brown fox jumps over the lazy dog near the riverbank in the morning",
		"El perro grande corre por la calle con los otros perros de la ciudad cada tarde",
		"Le chien mange avec les enfants dans la maison pres de la ville et les champs",
	}
	for _, text := range texts {
		result := Detect(text)
		if result.Confidence < 0 || result.Confidence > 1 {
			t.Errorf("Detect(%q) confidence %v out of [0,1]", text, result.Confidence)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	text := "Vendor invoice for the services provided during the last quarter of the year"
	first := Detect(text)
	for i := 0; i < 5; i++ {
		if got := Detect(text); got != first {
			t.Fatalf("Detect not deterministic: run %d got %+v, first %+v", i, got, first)
		}
	}
}
