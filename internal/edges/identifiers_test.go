package edges

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIdentifiersFromGoFencedBlock(t *testing.T) {
	content := "here's the fix:\n```go\nfunc parseConfig(path string) (*Config, error) {\n\treturn loadYAML(path)\n}\n```"

	got := ExtractIdentifiers(content)

	assert.Contains(t, got, "parseConfig")
	assert.Contains(t, got, "loadYAML")
	assert.Contains(t, got, "path")
}

func TestExtractIdentifiersFiltersStopWords(t *testing.T) {
	content := "```go\nfunc run() { var err error; return }\n```"

	got := ExtractIdentifiers(content)

	assert.NotContains(t, got, "var")
	assert.NotContains(t, got, "err")
	assert.NotContains(t, got, "return")
	assert.NotContains(t, got, "func")
}

func TestExtractIdentifiersFromInlineCodeSpan(t *testing.T) {
	content := "did you update `computeChecksum` in the handler?"

	got := ExtractIdentifiers(content)

	assert.Contains(t, got, "computeChecksum")
}

func TestExtractIdentifiersIgnoresPlainProse(t *testing.T) {
	content := "this is just a normal sentence about the roadmap and priorities"

	got := ExtractIdentifiers(content)

	assert.Empty(t, got)
}

func TestExtractIdentifiersFallsBackForUnrecognizedLanguage(t *testing.T) {
	content := "```brainfuck\nsomeWeirdToken anotherToken\n```"

	got := ExtractIdentifiers(content)

	assert.Contains(t, got, "someWeirdToken")
	assert.Contains(t, got, "anotherToken")
}

func TestExtractIdentifiersDedupesRepeatedTokens(t *testing.T) {
	content := "```go\nfunc helperName() {}\nfunc helperName2() { helperName() }\n```"

	got := ExtractIdentifiers(content)

	count := 0
	for _, tok := range got {
		if tok == "helperName" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
