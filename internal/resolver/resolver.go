// Package resolver extracts provider task identifiers from upstream documents
// whose shape varies between provider revisions.
package resolver

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
)

// Candidate is one location where an identifier may appear.
// Path elements are object keys (string) or array indexes (int).
type Candidate struct {
	Name string
	Path []interface{}
}

// DefaultCandidates lists id locations in priority order
var DefaultCandidates = []Candidate{
	{Name: "id", Path: []interface{}{"id"}},
	{Name: "data.id", Path: []interface{}{"data", "id"}},
	{Name: "data.task_id", Path: []interface{}{"data", "task_id"}},
	{Name: "data.taskId", Path: []interface{}{"data", "taskId"}},
	{Name: "data.uuid", Path: []interface{}{"data", "uuid"}},
	{Name: "data.data[0].id", Path: []interface{}{"data", "data", 0, "id"}},
	{Name: "data", Path: []interface{}{"data"}},
}

// ResolveID returns the first non-empty string found at DefaultCandidates,
// or "" when the document carries no identifier.
func ResolveID(body []byte) string {
	id, _ := Resolve(body, DefaultCandidates)
	return id
}

// Resolve tries candidates in order and reports which one matched
func Resolve(body []byte, candidates []Candidate) (string, string) {
	if len(body) == 0 {
		return "", ""
	}
	for _, c := range candidates {
		if v := StringAt(body, c.Path...); v != "" {
			return v, c.Name
		}
	}
	return "", ""
}

// StringAt returns the trimmed string at path, or "" when the node is missing
// or not a string.
func StringAt(body []byte, path ...interface{}) string {
	node, err := sonic.Get(body, path...)
	if err != nil || node.Type() != ast.V_STRING {
		return ""
	}
	s, err := node.String()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Source is one named request location that may carry a value
type Source struct {
	Name  string
	Value string
}

// First returns the first source with a non-empty value
func First(sources ...Source) (Source, bool) {
	for _, s := range sources {
		if strings.TrimSpace(s.Value) != "" {
			return Source{Name: s.Name, Value: strings.TrimSpace(s.Value)}, true
		}
	}
	return Source{}, false
}
