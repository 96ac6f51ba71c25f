package compress

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"golang.org/x/text/width"
)

const defaultCharsPerToken = 4

// tokenCounter accumulates runes across fields before converting to tokens,
// so splitting text over several fields does not inflate the estimate.
type tokenCounter struct {
	charsPerToken int
	narrow        int
	wide          int
}

func (t *tokenCounter) addText(s string) {
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			t.wide++
		default:
			t.narrow++
		}
	}
}

func (t *tokenCounter) addJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		t.addText(fmt.Sprint(v))
		return
	}
	t.addText(string(data))
}

func (t *tokenCounter) tokens() int {
	cpt := t.charsPerToken
	if cpt <= 0 {
		cpt = defaultCharsPerToken
	}
	n := t.wide + t.narrow/cpt
	// Minimum 1 token for non-empty input.
	if n == 0 && t.narrow+t.wide > 0 {
		n = 1
	}
	return n
}

// EstimateTokens estimates the token count of text with the default ratio.
// CJK wide and fullwidth runes count as one token each; all other runes count
// as a quarter token.
func EstimateTokens(text string) int {
	c := tokenCounter{charsPerToken: defaultCharsPerToken}
	c.addText(text)
	return c.tokens()
}

// EstimateTokens estimates the token count of text.
func (c *Compressor) EstimateTokens(text string) int {
	tc := tokenCounter{charsPerToken: c.opts.CharsPerToken}
	tc.addText(text)
	return tc.tokens()
}

// EstimatePackage estimates the token count of every narrative field of pkg
// plus the canonical JSON of its maps.
func (c *Compressor) EstimatePackage(pkg *core.ContextPackage) int {
	if pkg == nil {
		return 0
	}
	tc := tokenCounter{charsPerToken: c.opts.CharsPerToken}
	tc.addText(pkg.TaskDescription)
	for _, s := range pkg.Constraints {
		tc.addText(s)
	}
	for _, s := range pkg.ShortTermContext {
		tc.addText(s)
	}
	for _, s := range pkg.LongTermReferences {
		tc.addText(s)
	}
	if len(pkg.RelevantKnowledge) > 0 {
		tc.addJSON(pkg.RelevantKnowledge)
	}
	if len(pkg.MidTermContext) > 0 {
		tc.addJSON(pkg.MidTermContext)
	}
	if len(pkg.InputData) > 0 {
		tc.addJSON(pkg.InputData)
	}
	return tc.tokens()
}
