package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedModel = `{
  "id": "root",
  "speckle_type": "Speckle.Core.Models.Collection",
  "elements": [
    {
      "id": "level-1",
      "speckle_type": "Speckle.Core.Models.Collection",
      "@elements": [
        {"id": "w1", "category": "Muri", "speckle_type": "Objects.BuiltElements.Wall"},
        {"id": "d1", "category": "Porte", "speckle_type": "Objects.BuiltElements.Door"}
      ]
    },
    [
      {"id": "f1", "category": "Pavimenti"},
      {"category": "no identity"},
      42
    ],
    {"id": "org", "speckle_type": "Objects.Organization.Model"},
    {"id": "w2", "category": "Muri", "elements": []}
  ]
}`

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestFlatten_NestedShapes(t *testing.T) {
	root, err := Decode([]byte(nestedModel))
	require.NoError(t, err)

	leaves := Flatten(root)
	assert.Equal(t, []string{"w1", "d1", "f1", "w2"}, ids(leaves))
}

func TestFlatten_ContainerIsNotEmitted(t *testing.T) {
	root, err := Decode([]byte(`{"id": "wall", "category": "Muri", "elements": [{"id": "door", "category": "Porte"}]}`))
	require.NoError(t, err)

	assert.Equal(t, KindContainer, root.Kind)
	assert.Equal(t, []string{"door"}, ids(Flatten(root)))
}

func TestFlatten_IncludeHosts(t *testing.T) {
	root, err := Decode([]byte(`{
	  "id": "c", "speckle_type": "Speckle.Core.Models.Collection",
	  "elements": [{"id": "wall", "category": "Muri", "elements": [{"id": "door"}]}]
	}`))
	require.NoError(t, err)

	got := Flattener{IncludeHosts: true}.Flatten(root)
	assert.Equal(t, []string{"wall", "door"}, ids(got))
}

func TestFlatten_Idempotent(t *testing.T) {
	root, err := Decode([]byte(nestedModel))
	require.NoError(t, err)

	first := Flatten(root)
	second := Flatten(&Node{Kind: KindSequence, Children: first})
	assert.Equal(t, first, second)
}

func TestFlatten_NoDuplicateLeaves(t *testing.T) {
	shared := &Node{Kind: KindLeaf, ID: "shared"}
	other := &Node{Kind: KindLeaf, ID: "other"}
	inner := &Node{Kind: KindContainer, ID: "inner", Children: []*Node{shared}}
	root := &Node{Kind: KindContainer, Children: []*Node{inner, shared, other, inner}}

	assert.Equal(t, []string{"shared", "other"}, ids(Flatten(root)))
}

func TestFlatten_Cycle(t *testing.T) {
	a := &Node{Kind: KindContainer, ID: "a"}
	leaf := &Node{Kind: KindLeaf, ID: "leaf"}
	a.Children = []*Node{leaf, a}

	assert.Equal(t, []string{"leaf"}, ids(Flatten(a)))
}

func TestFlatten_NilAndUnknown(t *testing.T) {
	assert.Empty(t, Flatten(nil))
	assert.Empty(t, Flatten(&Node{Kind: KindUnknown, ID: "x"}))
}

func TestDecode_UnrecognizedRoot(t *testing.T) {
	for _, doc := range []string{`null`, `42`, `"text"`, `true`} {
		_, err := Decode([]byte(doc))
		assert.ErrorIs(t, err, ErrUnrecognizedRoot, doc)
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnrecognizedRoot)
}

func TestDecode_NumericIDAndParametersBag(t *testing.T) {
	root, err := Decode([]byte(`{"id": 1234, "parameters": {"Testo": {"Fire_Rating": {"value": "REI60"}}}}`))
	require.NoError(t, err)

	assert.Equal(t, KindLeaf, root.Kind)
	assert.Equal(t, "1234", root.ID)
	require.NotNil(t, root.Properties)
	assert.Contains(t, root.Properties, "Testo")
}

func TestNode_Field(t *testing.T) {
	root, err := Decode([]byte(`{"id": "w", "volume": 12.5, "area": null}`))
	require.NoError(t, err)

	v, ok := root.Field("volume")
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	_, ok = root.Field("area")
	assert.False(t, ok)

	var nilNode *Node
	_, ok = nilNode.Field("volume")
	assert.False(t, ok)
}
