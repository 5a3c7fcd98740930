package edges

import "regexp"

// TopicShiftMarkersV1 is the frozen v1 list of phrases that, when they appear
// anywhere in the next chunk's content, signal an unrelated new topic and gate off a
// within-chain edge. Versioned because the set is
// load-bearing for which edges exist at all: changing it changes history.
var TopicShiftMarkersV1 = []string{
	"let's switch gears",
	"switching topics",
	"on a different note",
	"unrelated question",
	"off topic",
	"new task:",
	"new feature request:",
	"changing the subject",
	"different issue:",
	"forget about that",
	"never mind the above",
}

// CommonIdentifierStopWordsV1 extends keyword.DefaultCodeStopWords with
// tokens common enough across languages that sharing one between two
// chunks says nothing about a real code reference.
var CommonIdentifierStopWordsV1 = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while", "switch", "case",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
	"string", "int", "bool", "true", "false", "nil", "null",
	"self", "this", "new", "import", "package", "public", "private",
	"static", "void", "type", "interface", "struct", "async", "await",
}

// ExplicitBackrefPhrasesV1 is the frozen v1 list of phrases that signal an
// explicit reference back to earlier conversation, used by the
// explicit-backref classifier.
var ExplicitBackrefPhrasesV1 = []string{
	"as mentioned above",
	"as i said earlier",
	"going back to",
	"referring to my earlier",
	"per my previous message",
	"as discussed before",
	"like i mentioned",
	"circling back to",
	"as noted earlier",
}

// toolOutputMarkerPattern matches conversation-log conventions for
// embedded tool output (a tool result block, a captured stdout/exit code).
var toolOutputMarkerPattern = regexp.MustCompile(`(?i)(tool[_ -]?result|stdout:|stderr:|exit code|exit status \d+)`)

// errorFragmentPattern matches a propagated error/exception message.
var errorFragmentPattern = regexp.MustCompile(`(?m)^\s*(panic:|Error:|Exception|Traceback \(most recent call last\)|fatal error:).*$`)

// filePathPattern extracts path-like tokens: at least one path separator
// or a recognized source-file extension.
var filePathPattern = regexp.MustCompile(`\b[\w.\-/]+/[\w.\-]+\.[A-Za-z]{1,6}\b|\b[\w.\-]+\.(go|py|js|ts|tsx|jsx|java|rb|rs|c|cc|cpp|h|hpp|yaml|yml|json|md)\b`)

// fencedCodeBlockPattern extracts fenced code blocks with their fence info
// string (the language hint after the opening backticks).
var fencedCodeBlockPattern = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")

// inlineCodeSpanPattern extracts single-backtick inline code spans, the
// other place an identifier legitimately shows up outside a fenced block.
var inlineCodeSpanPattern = regexp.MustCompile("`([^`\\n]+)`")

// identifierTokenPattern is the fallback identifier extractor used when a
// fenced block's language has no tree-sitter grammar registered.
var identifierTokenPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]{2,}\b`)
