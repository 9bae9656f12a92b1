package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

func TestCompileJQ(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		wantErr string
	}{
		{name: "none", filters: nil},
		{name: "valid", filters: []string{".result", "length"}},
		{name: "parse error", filters: []string{".["}, wantErr: "failed to parse jq filter"},
		{name: "unknown function", filters: []string{"nosuchfn(1)"}, wantErr: "failed to compile jq filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQ(tt.filters)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, codes, len(tt.filters))
		})
	}
}

func TestApplyJQ(t *testing.T) {
	input := map[string]any{
		"rows": []any{
			map[string]any{"state": "succeeded", "amount": "1"},
			map[string]any{"state": "failed", "amount": "2"},
			map[string]any{"state": "succeeded", "amount": "3"},
		},
	}

	codes, err := compileJQ([]string{".rows[]", `select(.state == "succeeded")`, ".amount"})
	require.NoError(t, err)

	got, err := applyJQ(codes, input)
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "3"}, got)
}

func TestApplyJQ_RuntimeError(t *testing.T) {
	codes, err := compileJQ([]string{".a.b"})
	require.NoError(t, err)

	_, err = applyJQ(codes, map[string]any{"a": "text"})
	assert.ErrorContains(t, err, "jq filter failed")
}

func TestPrintJSON(t *testing.T) {
	value := struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}{Name: "run", Count: 5}

	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, value, nil))
	assert.JSONEq(t, `{"name":"run","count":5}`, buf.String())

	codes, err := compileJQ([]string{".count * 2"})
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, printJSON(&buf, value, codes))
	assert.Equal(t, "10\n", buf.String())
}
