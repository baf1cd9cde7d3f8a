package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/translate"
)

// DocExt is the dialogue document file extension
const DocExt = ".dlg.xml"

// Library holds every compiled dialogue graph, keyed by language tag and
// document id. Documents live on disk under dataDir/dialogue/<lang>/, are
// compiled once at startup, and are immutable afterwards, so lookups need
// no locking.
type Library struct {
	baseline string
	docs     map[string]map[string]*dialogue.Graph
}

// LoadLibrary compiles the document tree rooted at dataDir. The baseline
// language directory must exist and yield at least one document; translation
// languages are merged against it line by line. A document that fails to
// compile is skipped with a logged error rather than failing the load.
func LoadLibrary(dataDir, baseline string, logger *slog.Logger) (*Library, error) {
	baseTag, err := language.Parse(baseline)
	if err != nil {
		return nil, fmt.Errorf("invalid baseline language %q: %w", baseline, err)
	}

	root := filepath.Join(dataDir, "dialogue")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dialogue directory %s: %w", root, err)
	}

	lib := &Library{
		baseline: baseTag.String(),
		docs:     make(map[string]map[string]*dialogue.Graph),
	}

	// Baseline first: translations merge against it.
	baseDocs, err := loadLanguageDir(filepath.Join(root, baseline), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline language %q: %w", baseline, err)
	}
	if len(baseDocs) == 0 {
		return nil, fmt.Errorf("baseline language %q has no documents", baseline)
	}
	lib.docs[lib.baseline] = baseDocs

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == baseline {
			continue
		}
		tag, err := language.Parse(entry.Name())
		if err != nil {
			logger.Warn("Skipping directory with invalid language tag",
				"dir", entry.Name(), "error", err)
			continue
		}

		transDocs, err := loadLanguageDir(filepath.Join(root, entry.Name()), logger)
		if err != nil {
			logger.Error("Failed to load translation language",
				"language", entry.Name(), "error", err)
			continue
		}

		merged := make(map[string]*dialogue.Graph, len(transDocs))
		for doc, trans := range transDocs {
			base, ok := baseDocs[doc]
			if !ok {
				logger.Warn("Translation has no baseline document",
					"language", entry.Name(), "document", doc)
				continue
			}
			merged[doc] = mergeGraphs(base, trans)
		}
		lib.docs[tag.String()] = merged

		logger.Info("Loaded translation language",
			"language", tag.String(), "documents", len(merged))
	}

	logger.Info("Dialogue library loaded",
		"baseline", lib.baseline,
		"languages", len(lib.docs),
		"documents", len(baseDocs))
	return lib, nil
}

// loadLanguageDir compiles every document in one language directory.
func loadLanguageDir(dir string, logger *slog.Logger) (map[string]*dialogue.Graph, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]*dialogue.Graph)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), DocExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		graph, err := compileFile(path)
		if err != nil {
			logger.Error("Failed to compile document", "path", path, "error", err)
			continue
		}
		docs[strings.TrimSuffix(entry.Name(), DocExt)] = graph
	}
	return docs, nil
}

func compileFile(path string) (*dialogue.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dialogue.Compile(f)
}

// mergeGraphs builds a translated graph: structure from the baseline, text
// merged line by line. Choice texts overwrite positionally; targets stay
// the baseline's.
func mergeGraphs(base, trans *dialogue.Graph) *dialogue.Graph {
	merged := &dialogue.Graph{
		Starters: base.Starters,
		Lines:    make(map[string]*dialogue.Line, len(base.Lines)),
	}
	for id, bl := range base.Lines {
		ml := *bl
		ml.Choices = append([]dialogue.Choice(nil), bl.Choices...)
		if tl := trans.Line(id); tl != nil {
			ml.Text = translate.Merge(bl.Text, tl.Text)
			for i := range ml.Choices {
				if i < len(tl.Choices) && tl.Choices[i].Text != "" {
					ml.Choices[i].Text = tl.Choices[i].Text
				}
			}
		}
		merged.Lines[id] = &ml
	}
	return merged
}

// Baseline returns the canonical baseline language tag
func (l *Library) Baseline() string {
	return l.baseline
}

// Graph resolves a document for the given language. Unknown or invalid
// languages fall back to the baseline, as does a language missing this
// particular document.
func (l *Library) Graph(lang, document string) (*dialogue.Graph, bool) {
	if lang != "" && lang != l.baseline {
		if tag, err := language.Parse(lang); err == nil {
			if g, ok := l.docs[tag.String()][document]; ok {
				return g, true
			}
		}
	}
	g, ok := l.docs[l.baseline][document]
	return g, ok
}

// Source binds a language, yielding the graph lookup a conversation uses.
func (l *Library) Source(lang string) conversation.GraphSource {
	return conversation.GraphSourceFunc(func(document string) (*dialogue.Graph, bool) {
		return l.Graph(lang, document)
	})
}

// Documents lists the document ids available in lang, sorted. An empty,
// invalid, or unloaded language means the baseline inventory.
func (l *Library) Documents(lang string) []string {
	docs := l.docs[l.baseline]
	if lang != "" && lang != l.baseline {
		if tag, err := language.Parse(lang); err == nil {
			if d, ok := l.docs[tag.String()]; ok {
				docs = d
			}
		}
	}
	out := make([]string, 0, len(docs))
	for doc := range docs {
		out = append(out, doc)
	}
	sort.Strings(out)
	return out
}

// Languages lists the loaded language tags, sorted.
func (l *Library) Languages() []string {
	out := make([]string, 0, len(l.docs))
	for lang := range l.docs {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// DocumentLanguages lists the languages that carry document, sorted. The
// baseline is included whenever the document exists at all.
func (l *Library) DocumentLanguages(document string) []string {
	var out []string
	for lang, docs := range l.docs {
		if _, ok := docs[document]; ok {
			out = append(out, lang)
		}
	}
	sort.Strings(out)
	return out
}

// Stats summarizes the library for health and inventory surfaces.
type Stats struct {
	Baseline  string   `json:"baseline"`
	Languages []string `json:"languages"`
	Documents int      `json:"documents"`
}

func (l *Library) Stats() Stats {
	return Stats{
		Baseline:  l.baseline,
		Languages: l.Languages(),
		Documents: len(l.docs[l.baseline]),
	}
}
