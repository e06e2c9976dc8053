// ABOUTME: Per-round guess bookkeeping
// ABOUTME: Counts guesses per player and excludes previously-wrong options
package game

// Ledger tracks one round's guesses. It is pure bookkeeping: no network,
// no timers, no side effects. A new ledger is created at every round start,
// so nothing here ever survives a round boundary.
type Ledger struct {
	guessCounts map[string]int
	excluded    map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		guessCounts: make(map[string]int),
		excluded:    make(map[string]struct{}),
	}
}

// RecordGuess increments the player's guess count for this round.
func (l *Ledger) RecordGuess(playerID string) {
	l.guessCounts[playerID]++
}

// GuessCount returns how many guesses the player has made this round.
func (l *Ledger) GuessCount(playerID string) int {
	return l.guessCounts[playerID]
}

// RemainingGuesses returns how many guesses the player has left under the
// given cap. A cap of zero or less means unlimited.
func (l *Ledger) RemainingGuesses(playerID string, cap int) int {
	if cap <= 0 {
		return -1
	}
	remaining := cap - l.guessCounts[playerID]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExcludeOption marks a label as already guessed wrong, keyed by its
// normalized form, so it is never re-offered this round.
func (l *Ledger) ExcludeOption(label string) {
	key := NormalizeGuess(label)
	if key == "" {
		return
	}
	l.excluded[key] = struct{}{}
}

// IsOptionExcluded reports whether a label was already guessed wrong.
func (l *Ledger) IsOptionExcluded(label string) bool {
	_, ok := l.excluded[NormalizeGuess(label)]
	return ok
}

// ExcludedCount returns the number of excluded options.
func (l *Ledger) ExcludedCount() int {
	return len(l.excluded)
}
