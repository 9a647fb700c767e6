package lsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLocations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Location
	}{
		{
			name: "null",
			raw:  `null`,
			want: []Location{},
		},
		{
			name: "single location",
			raw:  `{"uri":"file:///a.py","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":5}}}`,
			want: []Location{{URI: "file:///a.py", Range: Range{Start: Position{1, 2}, End: Position{1, 5}}}},
		},
		{
			name: "location array",
			raw: `[{"uri":"file:///a.py","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}},
			       {"uri":"file:///b.py","range":{"start":{"line":3,"character":0},"end":{"line":3,"character":4}}}]`,
			want: []Location{
				{URI: "file:///a.py", Range: Range{Start: Position{0, 0}, End: Position{0, 1}}},
				{URI: "file:///b.py", Range: Range{Start: Position{3, 0}, End: Position{3, 4}}},
			},
		},
		{
			name: "location links use the selection range",
			raw: `[{"targetUri":"file:///c.py",
			        "targetRange":{"start":{"line":10,"character":0},"end":{"line":12,"character":0}},
			        "targetSelectionRange":{"start":{"line":10,"character":4},"end":{"line":10,"character":9}}}]`,
			want: []Location{{URI: "file:///c.py", Range: Range{Start: Position{10, 4}, End: Position{10, 9}}}},
		},
		{
			name: "empty array",
			raw:  `[]`,
			want: []Location{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeLocations(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeLocationsInvalid(t *testing.T) {
	_, err := decodeLocations(json.RawMessage(`"nope"`))
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestDecodeDocumentSymbols(t *testing.T) {
	t.Run("hierarchical", func(t *testing.T) {
		raw := `[{"name":"A","kind":5,
		          "range":{"start":{"line":0,"character":0},"end":{"line":4,"character":0}},
		          "selectionRange":{"start":{"line":0,"character":6},"end":{"line":0,"character":7}},
		          "children":[{"name":"m","kind":6,
		                       "range":{"start":{"line":1,"character":4},"end":{"line":2,"character":0}},
		                       "selectionRange":{"start":{"line":1,"character":8},"end":{"line":1,"character":9}}}]}]`
		got, err := decodeDocumentSymbols(json.RawMessage(raw))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "A", got[0].Name)
		assert.Equal(t, SymbolKindClass, got[0].Kind)
		assert.Nil(t, got[0].Location)
		require.Len(t, got[0].Children, 1)
		assert.Equal(t, "m", got[0].Children[0].Name)
		assert.Equal(t, SymbolKindMethod, got[0].Children[0].Kind)
	})

	t.Run("flat symbol information", func(t *testing.T) {
		raw := `[{"name":"f","kind":12,"containerName":"mod",
		          "location":{"uri":"file:///a.py","range":{"start":{"line":2,"character":0},"end":{"line":3,"character":0}}}}]`
		got, err := decodeDocumentSymbols(json.RawMessage(raw))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "f", got[0].Name)
		assert.Equal(t, SymbolKindFunction, got[0].Kind)
		assert.Equal(t, "mod", got[0].ContainerName)
		require.NotNil(t, got[0].Location)
		assert.Equal(t, "file:///a.py", got[0].Location.URI)
		assert.Equal(t, got[0].Location.Range, got[0].Range)
	})

	t.Run("null", func(t *testing.T) {
		got, err := decodeDocumentSymbols(json.RawMessage(`null`))
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestDecodeCompletions(t *testing.T) {
	t.Run("item array", func(t *testing.T) {
		got, err := decodeCompletions(json.RawMessage(`[{"label":"a"},{"label":"b","kind":3}]`))
		require.NoError(t, err)
		assert.False(t, got.IsIncomplete)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "b", got.Items[1].Label)
		assert.Equal(t, CompletionItemKind(3), got.Items[1].Kind)
	})

	t.Run("completion list", func(t *testing.T) {
		got, err := decodeCompletions(json.RawMessage(`{"isIncomplete":true,"items":[{"label":"x"}]}`))
		require.NoError(t, err)
		assert.True(t, got.IsIncomplete)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "x", got.Items[0].Label)
	})

	t.Run("null", func(t *testing.T) {
		got, err := decodeCompletions(json.RawMessage(`null`))
		require.NoError(t, err)
		assert.False(t, got.IsIncomplete)
		assert.NotNil(t, got.Items)
		assert.Empty(t, got.Items)
	})

	t.Run("list without items", func(t *testing.T) {
		got, err := decodeCompletions(json.RawMessage(`{"isIncomplete":false}`))
		require.NoError(t, err)
		assert.NotNil(t, got.Items)
	})
}

func TestDecodeHover(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want MarkupContent
	}{
		{
			name: "markup content",
			raw:  `{"contents":{"kind":"markdown","value":"**x**"}}`,
			want: MarkupContent{Kind: "markdown", Value: "**x**"},
		},
		{
			name: "marked string",
			raw:  `{"contents":"plain"}`,
			want: MarkupContent{Kind: "plaintext", Value: "plain"},
		},
		{
			name: "marked string with language",
			raw:  `{"contents":{"language":"python","value":"def f(): ..."}}`,
			want: MarkupContent{Kind: "markdown", Value: "```python\ndef f(): ...\n```"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeHover(json.RawMessage(tt.raw))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Contents)
		})
	}
}

func TestDecodeHoverNull(t *testing.T) {
	got, err := decodeHover(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeHoverArrayKeepsRange(t *testing.T) {
	raw := `{"contents":["one",{"language":"go","value":"func f()"}],
	         "range":{"start":{"line":1,"character":1},"end":{"line":1,"character":2}}}`
	got, err := decodeHover(json.RawMessage(raw))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "markdown", got.Contents.Kind)
	assert.Contains(t, got.Contents.Value, "one")
	assert.Contains(t, got.Contents.Value, "func f()")
	require.NotNil(t, got.Range)
	assert.Equal(t, Position{1, 1}, got.Range.Start)
}

func TestSymbolKindString(t *testing.T) {
	assert.Equal(t, "Class", SymbolKindClass.String())
	assert.Equal(t, "Function", SymbolKindFunction.String())
}
