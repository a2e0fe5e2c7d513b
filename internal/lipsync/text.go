package lipsync

import (
	"strings"
	"unicode"
)

// OculusVisemes are the 15 Oculus lip-sync viseme names in id order.
var OculusVisemes = [...]string{
	"sil", "PP", "FF", "TH", "DD", "kk", "CH", "SS", "nn", "RR", "aa", "E", "I", "O", "U",
}

// VisemeTarget is the morph target name avatars use for an Oculus viseme.
func VisemeTarget(viseme string) string {
	return "viseme_" + viseme
}

var letterVisemes = map[rune]string{
	'p': "PP", 'b': "PP", 'm': "PP",
	'f': "FF", 'v': "FF",
	't': "DD", 'd': "DD",
	'k': "kk", 'g': "kk", 'c': "kk", 'q': "kk", 'x': "kk",
	'j': "CH",
	's': "SS", 'z': "SS",
	'n': "nn", 'l': "nn",
	'r': "RR",
	'a': "aa", 'h': "aa",
	'e': "E",
	'i': "I", 'y': "I",
	'o': "O",
	'u': "U", 'w': "U",
}

var digraphVisemes = map[string]string{
	"th": "TH",
	"ch": "CH",
	"sh": "CH",
}

// Durations in seconds.
const (
	consonantDur = 0.06
	fricativeDur = 0.08
	vowelDur     = 0.10
	wordGap      = 0.08
	clauseGap    = 0.10
	sentenceGap  = 0.15
)

// TrackFromText approximates a viseme track for text when the speech backend
// sends none: one event per letter or th/ch/sh digraph, silences at word and
// sentence boundaries. If duration is positive the track is stretched or
// squeezed to end at duration.
func TrackFromText(text string, duration float64) Track {
	runes := []rune(strings.ToLower(strings.TrimSpace(text)))
	var track Track
	t := 0.0

	pause := func(d float64) {
		if n := len(track); n > 0 && track[n-1].Value == VisemeTarget("sil") {
			track[n-1].End += d
		} else if n > 0 {
			track = append(track, Event{Start: t, End: t + d, Value: VisemeTarget("sil")})
		}
		t += d
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			pause(wordGap)
			continue
		case r == '.' || r == '!' || r == '?':
			pause(sentenceGap)
			continue
		case r == ',' || r == ';' || r == ':':
			pause(clauseGap)
			continue
		}

		viseme, d := "", consonantDur
		if i+1 < len(runes) {
			if v, ok := digraphVisemes[string(runes[i:i+2])]; ok {
				viseme = v
				d = fricativeDur
				i++
			}
		}
		if viseme == "" {
			v, ok := letterVisemes[r]
			if !ok {
				continue
			}
			viseme = v
			switch r {
			case 'a', 'e', 'i', 'o', 'u':
				d = vowelDur
			case 's', 'z', 'f', 'v':
				d = fricativeDur
			}
		}

		if n := len(track); n > 0 && track[n-1].Value == VisemeTarget(viseme) {
			track[n-1].End += d
		} else {
			track = append(track, Event{Start: t, End: t + d, Value: VisemeTarget(viseme)})
		}
		t += d
	}

	// Trailing silence carries no information.
	if n := len(track); n > 0 && track[n-1].Value == VisemeTarget("sil") {
		track = track[:n-1]
	}

	if total := track.Duration(); duration > 0 && total > 0 {
		scale := duration / total
		for i := range track {
			track[i].Start *= scale
			track[i].End *= scale
		}
	}
	return track
}
