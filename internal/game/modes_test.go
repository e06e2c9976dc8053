// ABOUTME: Tests for mode resolution and guess-label formatting
package game

import (
	"testing"

	"github.com/AleixFerre/guessong-client/internal/catalog"
)

func TestResolveBaseMode(t *testing.T) {
	tests := []struct {
		mode string
		want BaseMode
	}{
		{ModeBuzz, BaseBuzz},
		{ModeWrite, BaseClassic},
		{ModeClassic, BaseClassic},
		{ModeOrigin, BaseOrigin},
		{ModeMidClip, BaseMidClip},
		{ModeOneSecond, BaseMidClip},
		{"SOMETHING_NEW", BaseClassic},
	}

	for _, tt := range tests {
		if got := ResolveBaseMode(tt.mode); got != tt.want {
			t.Errorf("ResolveBaseMode(%s) = %s, want %s", tt.mode, got, tt.want)
		}
	}

	if !RequiresBuzz(ModeBuzz) || RequiresBuzz(ModeWrite) {
		t.Error("only buzz-based modes require the buzz")
	}
	if !IsMidClip(ModeOneSecond) || IsMidClip(ModeBuzz) {
		t.Error("mid-clip detection wrong")
	}
}

func TestFormatGuessLabel(t *testing.T) {
	track := catalog.Track{Title: "Opening 1", Artist: "Some Band", Origin: "Some Show"}

	if got := FormatGuessLabel(track, ModeBuzz, "anime"); got != "Some Band - Opening 1" {
		t.Errorf("song label = %q", got)
	}
	if got := FormatGuessLabel(track, ModeOrigin, "anime"); got != "Some Show" {
		t.Errorf("origin label = %q", got)
	}
	if got := FormatGuessLabel(track, ModeOrigin, "rock"); got != "Some Band" {
		t.Errorf("rock origin label = %q", got)
	}

	noArtist := catalog.Track{Title: "Main Theme"}
	if got := FormatGuessLabel(noArtist, ModeClassic, "ost"); got != "Main Theme" {
		t.Errorf("artist-less label = %q", got)
	}
	if got := FormatGuessLabel(noArtist, ModeOrigin, "ost"); got != "Main Theme" {
		t.Errorf("origin fallback label = %q", got)
	}
}
