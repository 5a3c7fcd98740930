package edges

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// identifierNodeTypes lists the tree-sitter node types, per language, that
// name a code entity worth matching between chunks. Field/property/type
// identifiers are included alongside plain identifiers so a shared struct
// field or type name still counts as a code-entity reference.
var identifierNodeTypes = map[string]map[string]bool{
	"go": {
		"identifier":       true,
		"field_identifier": true,
		"type_identifier":  true,
	},
	"python": {
		"identifier": true,
	},
	"javascript": {
		"identifier":          true,
		"property_identifier": true,
		"shorthand_property_identifier": true,
	},
	"typescript": {
		"identifier":          true,
		"property_identifier": true,
		"type_identifier":     true,
	},
}

var languageByFenceHint = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"golang":     golang.GetLanguage(),
	"python":     python.GetLanguage(),
	"py":         python.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"js":         javascript.GetLanguage(),
	"typescript": typescript.GetLanguage(),
	"ts":         typescript.GetLanguage(),
}

// ExtractIdentifiers pulls code-entity candidates out of content's fenced
// code blocks and inline code spans only: tree-sitter parse when a fence's
// language hint has a registered grammar, falling back to a plain
// word-boundary scan for unrecognized languages or inline spans. Prose
// outside code blocks/spans is never scanned — ordinary English words
// would otherwise "share an identifier" between almost any two chunks and
// swamp the classifier. Stop words and short tokens are dropped so the
// result reflects genuine identifiers, not keywords.
func ExtractIdentifiers(content string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tok string) {
		tok = strings.TrimSpace(tok)
		if len(tok) < 3 || isStopWord(tok) || seen[tok] {
			return
		}
		seen[tok] = true
		out = append(out, tok)
	}

	for _, m := range fencedCodeBlockPattern.FindAllStringSubmatch(content, -1) {
		lang := strings.ToLower(strings.TrimSpace(m[1]))
		body := m[2]
		tsLang, ok := languageByFenceHint[lang]
		if !ok {
			for _, tok := range identifierTokenPattern.FindAllString(body, -1) {
				add(tok)
			}
			continue
		}
		for _, tok := range extractWithTreeSitter(tsLang, normalizeLangKey(lang), body) {
			add(tok)
		}
	}

	for _, span := range inlineCodeSpanPattern.FindAllStringSubmatch(content, -1) {
		for _, tok := range identifierTokenPattern.FindAllString(span[1], -1) {
			add(tok)
		}
	}

	return out
}

func normalizeLangKey(hint string) string {
	switch hint {
	case "golang":
		return "go"
	case "py":
		return "python"
	case "js":
		return "javascript"
	case "ts":
		return "typescript"
	default:
		return hint
	}
}

func extractWithTreeSitter(lang *sitter.Language, langKey, source string) []string {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil || tree == nil {
		return identifierTokenPattern.FindAllString(source, -1)
	}

	wanted := identifierNodeTypes[langKey]
	var out []string
	src := []byte(source)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if wanted[n.Type()] {
			out = append(out, string(src[n.StartByte():n.EndByte()]))
		}
		for i := uint32(0); i < n.ChildCount(); i++ {
			walk(n.Child(int(i)))
		}
	}
	walk(tree.RootNode())
	return out
}

func isStopWord(tok string) bool {
	lower := strings.ToLower(tok)
	for _, sw := range CommonIdentifierStopWordsV1 {
		if lower == sw {
			return true
		}
	}
	return false
}
