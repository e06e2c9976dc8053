// ABOUTME: Lobby game modes and guess-label formatting rules
// ABOUTME: Maps wire modes onto base modes and derives pickable labels
package game

import (
	"strings"

	"github.com/AleixFerre/guessong-client/internal/catalog"
)

// Wire modes, as carried in lobby settings.
const (
	ModeBuzz      = "BUZZ"
	ModeWrite     = "WRITE"
	ModeClassic   = "CLASSIC"
	ModeOrigin    = "ORIGIN"
	ModeMidClip   = "MID_CLIP"
	ModeOneSecond = "ONE_SECOND"
)

// BaseMode groups wire modes by the rules they actually play under.
type BaseMode string

const (
	BaseClassic BaseMode = "CLASSIC"
	BaseBuzz    BaseMode = "BUZZ"
	BaseOrigin  BaseMode = "ORIGIN"
	BaseMidClip BaseMode = "MID_CLIP"
)

// ResolveBaseMode maps a wire mode onto its base mode. Unknown modes play
// as classic.
func ResolveBaseMode(mode string) BaseMode {
	switch mode {
	case ModeBuzz:
		return BaseBuzz
	case ModeOrigin:
		return BaseOrigin
	case ModeMidClip, ModeOneSecond:
		return BaseMidClip
	default:
		return BaseClassic
	}
}

// RequiresBuzz reports whether a guess first needs the buzz to be won.
func RequiresBuzz(mode string) bool {
	return ResolveBaseMode(mode) == BaseBuzz
}

// IsMidClip reports whether the round replays a fragment mid-clip.
func IsMidClip(mode string) bool {
	return ResolveBaseMode(mode) == BaseMidClip
}

const libraryRock = "rock"

// FormatGuessLabel derives the pickable label for a track under the given
// mode and library. Origin mode asks for the source work (or the artist,
// for libraries that have no origin).
func FormatGuessLabel(track catalog.Track, mode, library string) string {
	if ResolveBaseMode(mode) == BaseOrigin {
		return originLabel(track, library)
	}
	return songLabel(track)
}

func songLabel(track catalog.Track) string {
	artist := strings.TrimSpace(track.Artist)
	if artist == "" {
		return track.Title
	}
	return artist + " - " + track.Title
}

func originLabel(track catalog.Track, library string) string {
	if library == libraryRock {
		return track.Artist
	}
	if track.Origin != "" {
		return track.Origin
	}
	return track.Title
}
