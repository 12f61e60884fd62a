// Package media turns an Emby now-playing item into a display payload.
// Rendering is pure: it never performs I/O and never fails. Artwork is
// described by [ImageSource] references that callers resolve later.
package media

import "strings"

// Kind is the closed set of media variants with their own presentation.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindMovie
	KindEpisode
	KindAudio
	KindMusicVideo
	KindAudioBook

	kindCount
)

// kindNames are the lowercase Emby item types for each Kind.
var kindNames = [kindCount]string{
	KindGeneric:    "generic",
	KindMovie:      "movie",
	KindEpisode:    "episode",
	KindAudio:      "audio",
	KindMusicVideo: "musicvideo",
	KindAudioBook:  "audiobook",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// LookupKind maps a kind name (case-insensitive) to its Kind.
func LookupKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return KindGeneric, false
}

// ParseKind maps an Emby item Type to a Kind. Unrecognized types are
// generic.
func ParseKind(embyType string) Kind {
	k, _ := LookupKind(embyType)
	return k
}

// KindNames lists every kind name in declaration order.
func KindNames() []string {
	out := make([]string, len(kindNames))
	copy(out, kindNames[:])
	return out
}
