package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, root, lang, name, content string) {
	t.Helper()
	dir := filepath.Join(root, "dialogue", lang)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+DocExt), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
}

const baselineIntro = `
<dialogue>
	<starter id="greet"/>
	<line id="greet" next="ask">Hello there.` + "`wave`" + `</line>
	<line id="ask">
		What will it be?
		<choice text="Aye" next="yes"/>
		<choice text="Nay" next="no"/>
	</line>
	<line id="yes">Good.</line>
	<line id="no">Suit yourself.</line>
</dialogue>`

const frenchIntro = `
<dialogue>
	<starter id="greet"/>
	<line id="greet" next="ask">Bonjour.</line>
	<line id="ask">
		Que sera-ce ?
		<choice text="Oui"/>
	</line>
</dialogue>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadLibrary(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "en", "intro", baselineIntro)
	writeDoc(t, root, "en", "broken", `<dialogue><line id="x">Oops`)
	writeDoc(t, root, "fr", "intro", frenchIntro)
	writeDoc(t, root, "not a tag", "intro", baselineIntro)

	lib, err := LoadLibrary(root, "en", testLogger())
	if err != nil {
		t.Fatalf("LoadLibrary failed: %v", err)
	}

	// The broken document is skipped, not fatal.
	docs := lib.Documents("")
	if len(docs) != 1 || docs[0] != "intro" {
		t.Errorf("Expected only the intro document, got %v", docs)
	}

	// The invalid language directory is skipped.
	langs := lib.Languages()
	if len(langs) != 2 || langs[0] != "en" || langs[1] != "fr" {
		t.Errorf("Expected [en fr], got %v", langs)
	}

	if lib.Baseline() != "en" {
		t.Errorf("Expected baseline en, got %q", lib.Baseline())
	}

	stats := lib.Stats()
	if stats.Baseline != "en" || stats.Documents != 1 || len(stats.Languages) != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if dl := lib.DocumentLanguages("intro"); len(dl) != 2 || dl[0] != "en" || dl[1] != "fr" {
		t.Errorf("Expected intro in [en fr], got %v", dl)
	}
	if dl := lib.DocumentLanguages("ghost"); len(dl) != 0 {
		t.Errorf("Expected no languages for a missing document, got %v", dl)
	}

	// An unloaded language's inventory is the baseline's.
	if docs := lib.Documents("de"); len(docs) != 1 || docs[0] != "intro" {
		t.Errorf("Expected baseline inventory for unloaded language, got %v", docs)
	}
}

func TestLibraryTranslationMerge(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "en", "intro", baselineIntro)
	writeDoc(t, root, "fr", "intro", frenchIntro)

	lib, err := LoadLibrary(root, "en", testLogger())
	if err != nil {
		t.Fatalf("LoadLibrary failed: %v", err)
	}

	g, ok := lib.Graph("fr", "intro")
	if !ok {
		t.Fatal("Expected the french intro graph")
	}

	// Translated text replaces the baseline, with the baseline's inline
	// event carried over.
	if got := g.Line("greet").Text; got != "Bonjour.`wave`" {
		t.Errorf("Unexpected merged text: %q", got)
	}

	// Choice text overwrites positionally; targets stay the baseline's.
	ask := g.Line("ask")
	if len(ask.Choices) != 2 {
		t.Fatalf("Expected baseline choice count, got %d", len(ask.Choices))
	}
	if ask.Choices[0].Text != "Oui" || ask.Choices[0].Next != "yes" {
		t.Errorf("Unexpected first choice: %+v", ask.Choices[0])
	}
	if ask.Choices[1].Text != "Nay" || ask.Choices[1].Next != "no" {
		t.Errorf("Unexpected second choice: %+v", ask.Choices[1])
	}

	// Untranslated lines keep the baseline text.
	if got := g.Line("yes").Text; got != "Good." {
		t.Errorf("Untranslated line should keep baseline text, got %q", got)
	}

	// The baseline graph is untouched by merging.
	base, _ := lib.Graph("en", "intro")
	if base.Line("ask").Choices[0].Text != "Aye" {
		t.Error("Merging mutated the baseline graph")
	}
}

func TestLibraryFallbacks(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "en", "intro", baselineIntro)
	writeDoc(t, root, "fr", "intro", frenchIntro)

	lib, err := LoadLibrary(root, "en", testLogger())
	if err != nil {
		t.Fatalf("LoadLibrary failed: %v", err)
	}

	// Unknown language falls back to the baseline.
	if g, ok := lib.Graph("de", "intro"); !ok || g.Line("greet").Text != "Hello there.`wave`" {
		t.Error("Expected baseline fallback for an unloaded language")
	}
	// Empty language means baseline.
	if _, ok := lib.Graph("", "intro"); !ok {
		t.Error("Expected baseline graph for empty language")
	}
	// Unknown document is missing in every language.
	if _, ok := lib.Graph("fr", "ghost"); ok {
		t.Error("Expected missing document to stay missing")
	}

	// Source binds a language.
	if g, ok := lib.Source("fr").Graph("intro"); !ok || g.Line("greet").Text != "Bonjour.`wave`" {
		t.Error("Expected bound source to serve the merged graph")
	}
}

func TestLoadLibraryErrors(t *testing.T) {
	root := t.TempDir()

	if _, err := LoadLibrary(root, "en", testLogger()); err == nil {
		t.Error("Expected error for missing dialogue directory")
	}

	writeDoc(t, root, "fr", "intro", frenchIntro)
	if _, err := LoadLibrary(root, "en", testLogger()); err == nil {
		t.Error("Expected error for missing baseline directory")
	}

	if _, err := LoadLibrary(root, "not a tag", testLogger()); err == nil {
		t.Error("Expected error for invalid baseline tag")
	}
}
