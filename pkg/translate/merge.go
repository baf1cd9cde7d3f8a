// Package translate overlays translated dialogue text onto baseline lines
// without losing the baseline's inline events.
package translate

import (
	"strings"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
)

// Merge rebuilds a line's text from its translation while guaranteeing no
// baseline inline event is lost. Translators may keep, move, or drop event
// markers; whatever they drop is re-inserted by the baseline position
// class of each event. Merge never fails: any marker arrangement on either
// side produces a usable line.
//
// The result is missing BEFORE events, then the translated content
// replayed segment-by-segment (visible runs trimmed, event runs
// re-wrapped), then missing MID events, then missing AFTER events. A
// translation with no visible text and no events leaves the baseline
// unchanged.
func Merge(baseline, translated string) string {
	trans := strings.Split(translated, dialogue.EventMarker)
	if !hasContent(trans) {
		return baseline
	}

	kept := make(map[string]bool)
	for i := 1; i < len(trans); i += 2 {
		kept[trans[i]] = true
	}

	// Baseline events the translation dropped, partitioned by position
	// class, baseline order preserved within each class.
	var before, mid, after []string
	for _, ev := range dialogue.ScanEvents(baseline) {
		if kept[ev.Body] {
			continue
		}
		switch ev.Position {
		case dialogue.Before:
			before = append(before, ev.Body)
		case dialogue.Mid:
			mid = append(mid, ev.Body)
		default:
			after = append(after, ev.Body)
		}
	}

	var b strings.Builder
	for _, body := range before {
		writeEvent(&b, body)
	}
	for i, seg := range trans {
		if i%2 == 1 {
			writeEvent(&b, seg)
		} else {
			b.WriteString(strings.TrimSpace(seg))
		}
	}
	for _, body := range mid {
		writeEvent(&b, body)
	}
	for _, body := range after {
		writeEvent(&b, body)
	}
	return b.String()
}

// hasContent reports whether split translation segments carry anything at
// all: a visible run or a non-empty event body. Marker-only or
// whitespace-only translations have neither and fall back to the baseline.
func hasContent(segs []string) bool {
	for i, seg := range segs {
		if i%2 == 1 {
			if seg != "" {
				return true
			}
		} else if strings.TrimSpace(seg) != "" {
			return true
		}
	}
	return false
}

func writeEvent(b *strings.Builder, body string) {
	b.WriteString(dialogue.EventMarker)
	b.WriteString(body)
	b.WriteString(dialogue.EventMarker)
}
