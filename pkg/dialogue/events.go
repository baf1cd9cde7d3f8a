package dialogue

import (
	"strings"
	"unicode/utf8"
)

// Position classifies where an inline event sits relative to a line's
// visible text. Translators reorder words freely, so re-inserting an event
// a translation dropped keys off this class, not a character offset.
type Position string

const (
	Before Position = "before" // no visible text precedes the event
	After  Position = "after"  // no visible text follows it
	Mid    Position = "mid"    // visible text on both sides
)

// InlineEvent is one backtick-delimited command found in line text.
type InlineEvent struct {
	Body     string   // raw command text between the markers
	Position Position // relative to trimmed visible text
	Offset   int      // visible runes preceding the event; its reveal trigger point
}

// ScanEvents extracts the inline events of text in document order.
//
// Splitting on the marker makes odd-indexed segments event bodies and
// even-indexed segments visible text. An unmatched trailing marker leaves
// an odd final segment, which comes back as an event like any other; the
// scan never fails. Offsets count verbatim visible runes, while position
// classes ignore whitespace-only visible runs.
func ScanEvents(text string) []InlineEvent {
	segs := strings.Split(text, EventMarker)
	if len(segs) < 2 {
		return nil
	}

	// visibleBeyond[i] reports whether any even segment after index i has
	// visible (trimmed non-empty) text.
	visibleBeyond := make([]bool, len(segs))
	seen := false
	for i := len(segs) - 1; i >= 0; i-- {
		visibleBeyond[i] = seen
		if i%2 == 0 && strings.TrimSpace(segs[i]) != "" {
			seen = true
		}
	}

	events := make([]InlineEvent, 0, len(segs)/2)
	offset := 0
	visibleSoFar := false
	for i, seg := range segs {
		if i%2 == 0 {
			offset += utf8.RuneCountInString(seg)
			if strings.TrimSpace(seg) != "" {
				visibleSoFar = true
			}
			continue
		}
		pos := Mid
		switch {
		case !visibleSoFar:
			pos = Before
		case !visibleBeyond[i]:
			pos = After
		}
		events = append(events, InlineEvent{Body: seg, Position: pos, Offset: offset})
	}
	return events
}

// VisibleText strips event markup, returning only the characters a reveal
// pass will show.
func VisibleText(text string) string {
	if !strings.Contains(text, EventMarker) {
		return text
	}
	var b strings.Builder
	for i, seg := range strings.Split(text, EventMarker) {
		if i%2 == 0 {
			b.WriteString(seg)
		}
	}
	return b.String()
}

// Command is a parsed event or substitution body.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a pipe-delimited command body. Whitespace around the
// name and each argument is trimmed.
func ParseCommand(body string) Command {
	parts := strings.Split(body, CommandSeparator)
	cmd := Command{Name: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		cmd.Args = parts[1:]
		for i, a := range cmd.Args {
			cmd.Args[i] = strings.TrimSpace(a)
		}
	}
	return cmd
}
