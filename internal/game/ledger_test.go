// ABOUTME: Tests for per-round guess bookkeeping
// ABOUTME: Covers guess caps and normalized option exclusion
package game

import "testing"

func TestRemainingGuesses(t *testing.T) {
	l := NewLedger()

	if got := l.RemainingGuesses("p1", 3); got != 3 {
		t.Errorf("expected 3 remaining, got %d", got)
	}

	l.RecordGuess("p1")
	l.RecordGuess("p1")
	if got := l.RemainingGuesses("p1", 3); got != 1 {
		t.Errorf("expected 1 remaining after 2 guesses, got %d", got)
	}

	l.RecordGuess("p1")
	l.RecordGuess("p1") // one past the cap
	if got := l.RemainingGuesses("p1", 3); got != 0 {
		t.Errorf("expected remaining clamped at 0, got %d", got)
	}

	// Other players are unaffected.
	if got := l.RemainingGuesses("p2", 3); got != 3 {
		t.Errorf("expected p2 untouched, got %d", got)
	}
}

func TestRemainingGuessesUncapped(t *testing.T) {
	l := NewLedger()
	l.RecordGuess("p1")

	if got := l.RemainingGuesses("p1", 0); got != -1 {
		t.Errorf("expected -1 for uncapped, got %d", got)
	}
}

func TestExclusionIsNormalized(t *testing.T) {
	l := NewLedger()
	l.ExcludeOption("Canción  De Amor")

	for _, label := range []string{"canción de amor", "Cancion de Amor", "  CANCIÓN DE AMOR "} {
		if !l.IsOptionExcluded(label) {
			t.Errorf("expected %q to be excluded", label)
		}
	}
	if l.IsOptionExcluded("Otra Canción") {
		t.Error("unrelated option should not be excluded")
	}
	if l.ExcludedCount() != 1 {
		t.Errorf("expected one exclusion entry, got %d", l.ExcludedCount())
	}
}

func TestExcludeEmptyLabelIgnored(t *testing.T) {
	l := NewLedger()
	l.ExcludeOption("   ")
	if l.ExcludedCount() != 0 {
		t.Error("blank label should not create an exclusion")
	}
}
