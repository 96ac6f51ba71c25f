package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// Knowledge categories derived from knowledge_updates keys.
const (
	CategoryFact       = "fact"
	CategoryInsight    = "insight"
	CategoryConclusion = "conclusion"
	CategoryGeneral    = "general"
)

// MetaUpdateKey records the knowledge_updates key a general entry came from.
const MetaUpdateKey = "update_key"

const maxTitleRunes = 80

var categoryKeys = []struct {
	key      string
	category string
}{
	{"facts", CategoryFact},
	{"insights", CategoryInsight},
	{"conclusions", CategoryConclusion},
}

// candidate is one knowledge entry waiting to be written.
type candidate struct {
	title    string
	content  string
	category string
	tags     []string
	key      string
}

// deriveCandidates turns knowledge_updates into entries: facts, insights and
// conclusions first, then every other key in sorted order. List values
// yield one entry per item.
func deriveCandidates(updates map[string]any) []candidate {
	if len(updates) == 0 {
		return nil
	}
	var out []candidate
	known := make(map[string]bool, len(categoryKeys))
	for _, ck := range categoryKeys {
		known[ck.key] = true
		if v, ok := updates[ck.key]; ok {
			out = append(out, expand(ck.key, ck.category, v)...)
		}
	}

	rest := make([]string, 0, len(updates))
	for k := range updates {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, expand(k, CategoryGeneral, updates[k])...)
	}
	return out
}

func expand(key, category string, v any) []candidate {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		items = t
	case []string:
		items = make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
	default:
		items = []any{v}
	}

	out := make([]candidate, 0, len(items))
	for _, item := range items {
		if c, ok := toCandidate(key, category, item); ok {
			out = append(out, c)
		}
	}
	return out
}

func toCandidate(key, category string, item any) (candidate, bool) {
	c := candidate{category: category, key: key}
	switch t := item.(type) {
	case nil:
		return c, false
	case string:
		c.content = strings.TrimSpace(t)
	case map[string]any:
		c.title, _ = t["title"].(string)
		if content, ok := t["content"].(string); ok {
			c.content = strings.TrimSpace(content)
		} else {
			c.content = stringify(t)
		}
		c.tags = tagsOf(t["tags"])
	default:
		c.content = stringify(t)
	}
	if c.content == "" {
		return c, false
	}
	if c.title == "" {
		c.title = titleFrom(c.content)
	}
	return c, true
}

func (c candidate) entry(res *core.ResultPackage, trackingID string) core.KnowledgeEntry {
	tags := append([]string{c.category}, c.tags...)
	if res.AgentID != "" {
		tags = append(tags, res.AgentID)
	}
	meta := core.Values{
		core.MetaSourceResultID:  core.StringValue(res.ResultID),
		core.MetaSourceContextID: core.StringValue(res.ContextPackageID),
		core.MetaAgentID:         core.StringValue(res.AgentID),
		core.MetaTrackingID:      core.StringValue(trackingID),
	}
	if c.category == CategoryGeneral {
		meta[MetaUpdateKey] = core.StringValue(c.key)
	}
	return core.KnowledgeEntry{
		Title:    c.title,
		Content:  c.content,
		Category: c.category,
		Tags:     dedupe(tags),
		Metadata: meta,
	}
}

func titleFrom(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	r := []rune(line)
	if len(r) <= maxTitleRunes {
		return line
	}
	return string(r[:maxTitleRunes-3]) + "..."
}

func tagsOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return core.CloneStrings(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
