package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveID(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantID    string
		wantMatch string
	}{
		{name: "top-level id", body: `{"id":"a1"}`, wantID: "a1", wantMatch: "id"},
		{name: "data.id", body: `{"code":200,"data":{"id":"b2"}}`, wantID: "b2", wantMatch: "data.id"},
		{name: "data.task_id", body: `{"data":{"task_id":"c3"}}`, wantID: "c3", wantMatch: "data.task_id"},
		{name: "data.taskId", body: `{"code":200,"msg":"success","data":{"taskId":"d4"}}`, wantID: "d4", wantMatch: "data.taskId"},
		{name: "data.uuid", body: `{"data":{"uuid":"e5"}}`, wantID: "e5", wantMatch: "data.uuid"},
		{name: "nested data array", body: `{"data":{"data":[{"id":"f6"},{"id":"f7"}]}}`, wantID: "f6", wantMatch: "data.data[0].id"},
		{name: "data is a string", body: `{"data":"g7"}`, wantID: "g7", wantMatch: "data"},
		{name: "top-level id wins over nested", body: `{"id":"top","data":{"taskId":"nested"}}`, wantID: "top", wantMatch: "id"},
		{name: "data.id wins over data.taskId", body: `{"data":{"taskId":"t","id":"i"}}`, wantID: "i", wantMatch: "data.id"},
		{name: "empty id falls through", body: `{"id":"","data":{"taskId":"h8"}}`, wantID: "h8", wantMatch: "data.taskId"},
		{name: "whitespace id falls through", body: `{"id":"   ","data":"i9"}`, wantID: "i9", wantMatch: "data"},
		{name: "numeric id is ignored", body: `{"id":42}`},
		{name: "null data", body: `{"code":200,"data":null}`},
		{name: "empty data array", body: `{"data":{"data":[]}}`},
		{name: "data object without candidates", body: `{"data":{"status":"PENDING"}}`},
		{name: "no candidates", body: `{"code":400,"msg":"bad request"}`},
		{name: "top-level array", body: `[{"id":"x"}]`},
		{name: "not json", body: `<html>502</html>`},
		{name: "empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, match := Resolve([]byte(tt.body), DefaultCandidates)

			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantMatch, match)
			assert.Equal(t, tt.wantID, ResolveID([]byte(tt.body)))
		})
	}
}

func TestResolveID_Idempotent(t *testing.T) {
	body := []byte(`{"code":200,"data":{"taskId":"stable"}}`)

	first := ResolveID(body)
	second := ResolveID(body)

	assert.Equal(t, "stable", first)
	assert.Equal(t, first, second)
}

func TestResolve_CustomCandidates(t *testing.T) {
	body := []byte(`{"data":{"response":{"taskId":"deep"}}}`)
	candidates := append([]Candidate{{Name: "data.response.taskId", Path: []interface{}{"data", "response", "taskId"}}}, DefaultCandidates...)

	id, match := Resolve(body, candidates)

	assert.Equal(t, "deep", id)
	assert.Equal(t, "data.response.taskId", match)
}

func TestFirst(t *testing.T) {
	tests := []struct {
		name     string
		sources  []Source
		wantName string
		wantOK   bool
	}{
		{
			name:     "query id first",
			sources:  []Source{{Name: "query.id", Value: "q"}, {Name: "path.id", Value: "p"}},
			wantName: "query.id",
			wantOK:   true,
		},
		{
			name:     "falls back to path",
			sources:  []Source{{Name: "query.id", Value: ""}, {Name: "query.taskId", Value: " "}, {Name: "path.id", Value: "p"}},
			wantName: "path.id",
			wantOK:   true,
		},
		{
			name:    "nothing present",
			sources: []Source{{Name: "query.id"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := First(tt.sources...)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}
