// ABOUTME: Tests for guess text normalization
// ABOUTME: Case, diacritic and whitespace folding
package game

import "testing"

func TestNormalizeGuess(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Canción", "cancion"},
		{"  Späce   Fólded  ", "space folded"},
		{"ALREADY lower", "already lower"},
		{"naïve résumé", "naive resume"},
		{"", ""},
		{"日本語", "日本語"},
	}

	for _, tt := range tests {
		if got := NormalizeGuess(tt.in); got != tt.want {
			t.Errorf("NormalizeGuess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
