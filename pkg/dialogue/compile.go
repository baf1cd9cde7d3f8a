package dialogue

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Compile reads one dialogue document from r and builds its graph.
//
// The only failure mode is the token stream itself breaking, surfaced as
// ErrMalformedDocument. Structural oddities are tolerated: unknown elements
// and attributes are ignored, a condition or choice with no open container
// is dropped, and duplicate starter or line ids resolve last-write-wins
// (the replacement keeps the original evaluation slot). Downstream tooling
// warns about duplicates; the compiler stays permissive so shipped
// documents keep loading.
func Compile(r io.Reader) (*Graph, error) {
	g := &Graph{Lines: make(map[string]*Line)}

	dec := xml.NewDecoder(r)
	// Author-written text: tolerate bare ampersands and unclosed tags the
	// way the runtime's parser does.
	dec.Strict = false

	var (
		starterIdx = make(map[string]int) // starter id -> slot in g.Starters
		curStarter = -1
		inStarter  bool
		curLine    *Line
		curBranch  = -1 // slot in curLine.Branches
		open       []string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			open = append(open, t.Name.Local)
			switch t.Name.Local {
			case "starter":
				st := Gate{ID: attr(t, "id"), Quantifier: quantifierOf(t)}
				if i, ok := starterIdx[st.ID]; ok {
					g.Starters[i] = st
					curStarter = i
				} else {
					g.Starters = append(g.Starters, st)
					curStarter = len(g.Starters) - 1
					starterIdx[st.ID] = curStarter
				}
				inStarter = true

			case "line":
				curLine = &Line{ID: attr(t, "id"), Next: attr(t, "next")}
				g.Lines[curLine.ID] = curLine
				curBranch = -1

			case "choice":
				if curLine != nil {
					curLine.Choices = append(curLine.Choices, Choice{
						Text: attr(t, "text"),
						Next: attr(t, "next"),
					})
				}

			case "conditional_next":
				if curLine != nil {
					br := Gate{ID: attr(t, "id"), Quantifier: quantifierOf(t)}
					curBranch = -1
					for i := range curLine.Branches {
						if curLine.Branches[i].ID == br.ID {
							curLine.Branches[i] = br
							curBranch = i
							break
						}
					}
					if curBranch < 0 {
						curLine.Branches = append(curLine.Branches, br)
						curBranch = len(curLine.Branches) - 1
					}
				}

			case "condition":
				c := Condition{
					Key:      attr(t, "key"),
					Operator: operatorOf(t),
					Value:    attr(t, "value"),
				}
				switch {
				case inStarter && curStarter >= 0:
					g.Starters[curStarter].Conditions = append(g.Starters[curStarter].Conditions, c)
				case curLine != nil && curBranch >= 0:
					curLine.Branches[curBranch].Conditions = append(curLine.Branches[curBranch].Conditions, c)
				}
				// No open container: dropped.
			}

		case xml.EndElement:
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
			if t.Name.Local == "starter" {
				inStarter = false
			}

		case xml.CharData:
			// Only text sitting directly inside a line element counts;
			// whitespace runs between child elements never clobber it.
			if curLine != nil && len(open) > 0 && open[len(open)-1] == "line" {
				if text := strings.TrimSpace(string(t)); text != "" {
					curLine.Text = text
				}
			}
		}
	}

	return g, nil
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// quantifierOf reads all_true: the exact text "true" means ALL, anything
// else (including absence) means ANY.
func quantifierOf(t xml.StartElement) Quantifier {
	if attr(t, "all_true") == "true" {
		return QuantifierAll
	}
	return QuantifierAny
}

func operatorOf(t xml.StartElement) Operator {
	switch Operator(attr(t, "operator")) {
	case OpGT:
		return OpGT
	case OpLT:
		return OpLT
	case OpGTE:
		return OpGTE
	case OpLTE:
		return OpLTE
	default:
		return OpEQ
	}
}
