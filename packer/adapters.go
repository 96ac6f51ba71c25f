package packer

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// Context manager snapshot keys understood by PackFromContextManager.
const (
	SnapshotShortTerm    = "short_term"
	SnapshotMidTerm      = "mid_term"
	SnapshotLongTermRefs = "long_term_refs"
	SnapshotConstraints  = "constraints"
	SnapshotTask         = "task"
)

// ShortTermFromBuffer flattens a conversation buffer of {role, content}
// messages into "role: content" lines, oldest first. Messages without content
// are skipped.
func ShortTermFromBuffer(buffer []map[string]any) []string {
	out := make([]string, 0, len(buffer))
	for _, msg := range buffer {
		content := stringify(msg["content"])
		if strings.TrimSpace(content) == "" {
			continue
		}
		role := stringify(msg["role"])
		if role == "" {
			out = append(out, content)
			continue
		}
		out = append(out, role+": "+content)
	}
	return out
}

// MidTermFromSummary copies a mid-term summary, dropping nil values.
func MidTermFromSummary(summary map[string]any) map[string]any {
	out := core.CloneMap(summary)
	for k, v := range out {
		if v == nil {
			delete(out, k)
		}
	}
	return out
}

// PackWithShortTermMemory packs task with the conversation buffer as
// short-term context.
func (p *Packer) PackWithShortTermMemory(task string, buffer []map[string]any, optFns ...func(o *PackOptions)) (*core.ContextPackage, error) {
	short := ShortTermFromBuffer(buffer)
	return p.Pack(task, prepend(func(o *PackOptions) { o.ShortTermContext = short }, optFns)...)
}

// PackWithMidTermMemory packs task with a mid-term summary.
func (p *Packer) PackWithMidTermMemory(task string, summary map[string]any, optFns ...func(o *PackOptions)) (*core.ContextPackage, error) {
	mid := MidTermFromSummary(summary)
	return p.Pack(task, prepend(func(o *PackOptions) { o.MidTermContext = mid }, optFns)...)
}

// PackFromContextManager packs a context manager snapshot. The task argument
// wins over the snapshot's task key when both are set.
func (p *Packer) PackFromContextManager(task string, snapshot map[string]any, optFns ...func(o *PackOptions)) (*core.ContextPackage, error) {
	if task == "" {
		task = stringify(snapshot[SnapshotTask])
	}
	fromSnapshot := func(o *PackOptions) {
		o.ShortTermContext = shortTermFromAny(snapshot[SnapshotShortTerm])
		if mid, ok := snapshot[SnapshotMidTerm].(map[string]any); ok {
			o.MidTermContext = MidTermFromSummary(mid)
		}
		o.LongTermReferences = stringsFromAny(snapshot[SnapshotLongTermRefs])
		o.Constraints = stringsFromAny(snapshot[SnapshotConstraints])
	}
	return p.Pack(task, prepend(fromSnapshot, optFns)...)
}

func prepend(first func(o *PackOptions), rest []func(o *PackOptions)) []func(o *PackOptions) {
	return append([]func(o *PackOptions){first}, rest...)
}

// shortTermFromAny accepts plain strings as well as message maps.
func shortTermFromAny(v any) []string {
	switch x := v.(type) {
	case []string:
		return core.CloneStrings(x)
	case []map[string]any:
		return ShortTermFromBuffer(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				out = append(out, ShortTermFromBuffer([]map[string]any{m})...)
				continue
			}
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringsFromAny(v any) []string {
	switch x := v.(type) {
	case []string:
		return core.CloneStrings(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
