package conversation

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayName turns a speaker id like "guard_captain" into a presentable
// nametag for collaborators that have no richer name source.
func DisplayName(id string) string {
	name := strings.TrimSpace(strings.ReplaceAll(id, "_", " "))
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(name)
}
