package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
)

func main() {
	baseline := flag.String("baseline", "en", "language the dialogue documents are authored in")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-baseline en] <data-dir> | <document.dlg.xml> [more documents...]\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	failed := false
	for _, arg := range flag.Args() {
		info, err := os.Stat(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		if info.IsDir() {
			if !validateDataDir(arg, *baseline) {
				failed = true
			}
			continue
		}
		if !validateOne(arg) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func validateOne(filename string) bool {
	v := &DocumentValidator{}
	if err := v.validateFile(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		return false
	}
	for _, w := range v.warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	fmt.Printf("%s is valid (%d warnings)\n", filename, len(v.warnings))
	return true
}

// validateDataDir validates every document under dir/dialogue/<lang>/ and
// then reports how much of the baseline each translation language covers.
func validateDataDir(dir, baseline string) bool {
	root := filepath.Join(dir, "dialogue")
	entries, err := os.ReadDir(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		return false
	}

	ok := true
	graphs := map[string]map[string]*dialogue.Graph{} // lang -> doc -> graph
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		lang := entry.Name()
		if _, err := language.Parse(lang); err != nil {
			fmt.Printf("  warning: directory %q is not a language tag and is skipped by the loader\n", lang)
			continue
		}
		files, err := filepath.Glob(filepath.Join(root, lang, "*"+docExt))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			return false
		}
		graphs[lang] = map[string]*dialogue.Graph{}
		for _, filename := range files {
			if !validateOne(filename) {
				ok = false
				continue
			}
			f, err := os.Open(filename)
			if err != nil {
				continue
			}
			g, err := dialogue.Compile(f)
			f.Close()
			if err == nil {
				doc := strings.TrimSuffix(filepath.Base(filename), docExt)
				graphs[lang][doc] = g
			}
		}
	}

	baseDocs, found := graphs[baseline]
	if !found {
		fmt.Fprintf(os.Stderr, "Validation failed: baseline language %q has no directory under %s\n", baseline, root)
		return false
	}
	if len(baseDocs) == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: baseline language %q has no documents\n", baseline)
		return false
	}

	langs := make([]string, 0, len(graphs))
	for lang := range graphs {
		if lang != baseline {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	for _, lang := range langs {
		reportCoverage(lang, baseDocs, graphs[lang])
	}
	return ok
}

// reportCoverage counts, per baseline document, the lines a translation
// language leaves untranslated. Absent documents fall back whole.
func reportCoverage(lang string, baseDocs, transDocs map[string]*dialogue.Graph) {
	docs := make([]string, 0, len(baseDocs))
	for doc := range baseDocs {
		docs = append(docs, doc)
	}
	sort.Strings(docs)

	for _, doc := range docs {
		trans, found := transDocs[doc]
		if !found {
			fmt.Printf("  coverage %s/%s: no translation document, all %d lines fall back to baseline\n",
				lang, doc, len(baseDocs[doc].Lines))
			continue
		}
		missing := 0
		for id := range baseDocs[doc].Lines {
			tl := trans.Line(id)
			if tl == nil || strings.TrimSpace(dialogue.VisibleText(tl.Text)) == "" {
				missing++
			}
		}
		if missing > 0 {
			fmt.Printf("  coverage %s/%s: %d of %d lines untranslated\n",
				lang, doc, missing, len(baseDocs[doc].Lines))
		} else {
			fmt.Printf("  coverage %s/%s: complete\n", lang, doc)
		}
	}
}

const docExt = ".dlg.xml"

type DocumentValidator struct {
	errors   []string
	warnings []string
}

func (v *DocumentValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, docExt) {
		return fmt.Errorf("dialogue document must have .dlg.xml extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, docExt)
	if !isValidDocumentFilename(nameWithoutExt) {
		return fmt.Errorf("document filename '%s' must be lowercase snake_case (e.g., tavern_keeper.dlg.xml)", baseName)
	}

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer f.Close()

	graph, err := dialogue.Compile(f)
	if err != nil {
		return fmt.Errorf("file %s failed to compile: %w", filename, err)
	}

	v.errors = nil
	v.warnings = nil

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", filename, err)
	}
	v.checkRawStream(f)
	v.validateGraph(graph)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

// checkRawStream re-scans the token stream for what the permissive
// compiler papers over: repeated starter and line ids (the last definition
// silently wins) and operator spellings that fall back to EQ.
func (v *DocumentValidator) checkRawStream(r io.Reader) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	seen := map[string]map[string]int{"starter": {}, "line": {}}
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if start.Name.Local == "condition" {
			for _, a := range start.Attr {
				if a.Name.Local != "operator" {
					continue
				}
				switch dialogue.Operator(a.Value) {
				case dialogue.OpEQ, dialogue.OpGT, dialogue.OpLT, dialogue.OpGTE, dialogue.OpLTE, "":
				default:
					v.warnings = append(v.warnings, fmt.Sprintf(
						"condition operator %q is no known operator and is treated as EQ", a.Value))
				}
			}
			continue
		}

		ids, tracked := seen[start.Name.Local]
		if !tracked {
			continue
		}
		for _, a := range start.Attr {
			if a.Name.Local == "id" {
				ids[a.Value]++
				if ids[a.Value] == 2 {
					v.warnings = append(v.warnings, fmt.Sprintf(
						"duplicate %s id %q: the last definition silently replaces the earlier ones",
						start.Name.Local, a.Value))
				}
			}
		}
	}
}

func (v *DocumentValidator) validateGraph(g *dialogue.Graph) {
	if len(g.Starters) == 0 {
		v.errors = append(v.errors, "document has no starters: no conversation can begin")
	}

	hasDefault := false
	for _, st := range g.Starters {
		if g.Line(st.ID) == nil {
			v.errors = append(v.errors, fmt.Sprintf("starter %q has no line with the same id", st.ID))
		}
		if len(st.Conditions) == 0 {
			hasDefault = true
		}
		v.validateConditions(st.Conditions, "starter "+st.ID)
	}
	if !hasDefault {
		v.warnings = append(v.warnings,
			"no unconditional starter: the conversation is unreachable until some flag combination passes")
	}

	for id, line := range g.Lines {
		v.validateLine(id, line, g)
	}
	v.checkReachability(g)
}

func (v *DocumentValidator) validateLine(id string, line *dialogue.Line, g *dialogue.Graph) {
	if line.Next != "" && g.Line(line.Next) == nil {
		v.errors = append(v.errors, fmt.Sprintf("line %q: next references unknown line %q", id, line.Next))
	}
	for i, c := range line.Choices {
		if c.Next == "" {
			v.warnings = append(v.warnings, fmt.Sprintf("line %q: choice %d ends the conversation", id, i))
		} else if g.Line(c.Next) == nil {
			v.errors = append(v.errors, fmt.Sprintf("line %q: choice %d references unknown line %q", id, i, c.Next))
		}
	}
	for _, br := range line.Branches {
		if g.Line(br.ID) == nil {
			v.errors = append(v.errors, fmt.Sprintf("line %q: conditional_next references unknown line %q", id, br.ID))
		}
		v.validateConditions(br.Conditions, fmt.Sprintf("line %q branch %q", id, br.ID))
	}
	if len(line.Choices) > 0 && len(line.Branches) > 0 {
		v.warnings = append(v.warnings, fmt.Sprintf(
			"line %q has both choices and conditional_next; choices win and the branches never run", id))
	}

	events := dialogue.ScanEvents(line.Text)
	visible := strings.TrimSpace(dialogue.VisibleText(line.Text))
	if visible == "" && len(events) == 0 && line.Next == "" && len(line.Choices) == 0 && len(line.Branches) == 0 {
		v.errors = append(v.errors, fmt.Sprintf("line %q presents nothing and goes nowhere", id))
	}
	if strings.Count(line.Text, dialogue.EventMarker)%2 != 0 {
		v.warnings = append(v.warnings, fmt.Sprintf("line %q has an unmatched event marker", id))
	}
	if strings.Count(line.Text, dialogue.SubstitutionMarker)%2 != 0 {
		v.warnings = append(v.warnings, fmt.Sprintf("line %q has an unmatched substitution marker", id))
	}
	for _, ev := range events {
		if strings.TrimSpace(ev.Body) == "" {
			v.warnings = append(v.warnings, fmt.Sprintf("line %q has an empty inline event", id))
		}
	}
}

func (v *DocumentValidator) validateConditions(conds []dialogue.Condition, where string) {
	for _, c := range conds {
		if c.Key == "" {
			v.errors = append(v.errors, fmt.Sprintf("%s: condition with empty key", where))
		}
	}
}

// checkReachability walks the graph from every starter and reports lines
// nothing points at.
func (v *DocumentValidator) checkReachability(g *dialogue.Graph) {
	reached := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		line := g.Line(id)
		if line == nil || reached[id] {
			return
		}
		reached[id] = true
		walk(line.Next)
		for _, c := range line.Choices {
			walk(c.Next)
		}
		for _, br := range line.Branches {
			walk(br.ID)
		}
	}
	for _, st := range g.Starters {
		walk(st.ID)
	}

	for id := range g.Lines {
		if !reached[id] {
			v.warnings = append(v.warnings, fmt.Sprintf("line %q is unreachable from any starter", id))
		}
	}
}

var documentFilenamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func isValidDocumentFilename(name string) bool {
	return documentFilenamePattern.MatchString(name)
}
