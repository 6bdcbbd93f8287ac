package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semaudit/element"
)

func decode(t *testing.T, doc string) *element.Node {
	t.Helper()
	n, err := element.Decode([]byte(doc))
	require.NoError(t, err)
	return n
}

func TestResolve_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		want      any
		wantShape string
	}{
		{
			name:      "group value",
			doc:       `{"id": "a", "properties": {"Testo": {"Fire_Rating": {"value": "REI60"}}}}`,
			want:      "REI60",
			wantShape: "group-value",
		},
		{
			name:      "instance parameters",
			doc:       `{"id": "a", "properties": {"Parameters": {"Instance Parameters": {"Testo": {"Fire_Rating": {"value": "REI90"}}}}}}`,
			want:      "REI90",
			wantShape: "instance-parameters",
		},
		{
			name:      "type parameters",
			doc:       `{"id": "a", "properties": {"Parameters": {"Type Parameters": {"Testo": {"Fire_Rating": {"value": "REI120"}}}}}}`,
			want:      "REI120",
			wantShape: "type-parameters",
		},
		{
			name:      "flat attribute in bag",
			doc:       `{"id": "a", "properties": {"Testo": {"Fire_Rating": "EI30"}}}`,
			want:      "EI30",
			wantShape: "flat-attribute",
		},
		{
			name:      "flat attribute on element",
			doc:       `{"id": "a", "Testo": {"Fire_Rating": "EI45"}}`,
			want:      "EI45",
			wantShape: "flat-attribute",
		},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, shape, ok := r.ResolveShape(decode(t, tt.doc), "Testo", "Fire_Rating")
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.wantShape, shape)
		})
	}
}

func TestResolve_PriorityFirstShapeWins(t *testing.T) {
	el := decode(t, `{"id": "a", "properties": {
	  "Testo": {"Fire_Rating": {"value": "group"}},
	  "Parameters": {"Instance Parameters": {"Testo": {"Fire_Rating": {"value": "instance"}}}}
	}}`)

	v, ok := NewResolver().Resolve(el, "Testo", "Fire_Rating")
	require.True(t, ok)
	assert.Equal(t, "group", v)
}

func TestResolve_NullValueFallsThrough(t *testing.T) {
	el := decode(t, `{"id": "a", "properties": {
	  "Testo": {"Fire_Rating": {"value": null}},
	  "Parameters": {"Type Parameters": {"Testo": {"Fire_Rating": {"value": "REI60"}}}}
	}}`)

	v, ok := NewResolver().Resolve(el, "Testo", "Fire_Rating")
	require.True(t, ok)
	assert.Equal(t, "REI60", v)
}

func TestResolve_MissingBranchesNeverPanic(t *testing.T) {
	docs := []string{
		`{"id": "a"}`,
		`{"id": "a", "properties": {}}`,
		`{"id": "a", "properties": {"Parameters": "not a map"}}`,
		`{"id": "a", "properties": {"Parameters": {"Instance Parameters": []}}}`,
		`{"id": "a", "properties": {"Testo": 5}}`,
		`{"id": "a", "properties": {"Testo": {"Fire_Rating": {"other": 1}}}}`,
		`{"id": "a", "properties": {"Testo": {"Fire_Rating": {}}}}`,
	}
	r := NewResolver()
	for _, doc := range docs {
		assert.NotPanics(t, func() {
			_, ok := r.Resolve(decode(t, doc), "Testo", "Fire_Rating")
			assert.False(t, ok, doc)
		})
	}

	_, ok := r.Resolve(nil, "Testo", "Fire_Rating")
	assert.False(t, ok)
}

func TestResolve_ShapeBWhenShapeAAbsent(t *testing.T) {
	el := decode(t, `{"id": "a", "properties": {"Parameters": {"Instance Parameters": {"Altro": {"Seal": {"value": true}}}}}}`)

	v, ok := NewResolver().Get(el, Ref{Group: "Altro", Name: "Seal"})
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestResolve_EmptyGroup(t *testing.T) {
	el := decode(t, `{"id": "a", "properties": {"Cost": {"value": 12}}, "level": "L1"}`)
	r := NewResolver()

	v, ok := r.Resolve(el, "", "Cost")
	require.True(t, ok)
	assert.Equal(t, float64(12), v)

	v, ok = r.Resolve(el, "", "level")
	require.True(t, ok)
	assert.Equal(t, "L1", v)
}

func TestResolve_CustomShapes(t *testing.T) {
	el := decode(t, `{"id": "a", "properties": {"Testo": {"Fire_Rating": {"value": "group"}}}}`)

	_, ok := NewResolver(TypeParameters).Resolve(el, "Testo", "Fire_Rating")
	assert.False(t, ok)
}

func TestRef(t *testing.T) {
	assert.Equal(t, "Testo/Fire_Rating", Ref{Group: "Testo", Name: "Fire_Rating"}.String())
	assert.Equal(t, "Cost", Ref{Name: "Cost"}.String())
	assert.True(t, Ref{}.IsZero())
}
