// Package params resolves semantic (group, name) parameters from element parameter
// bags whose structure varies between model producers.
package params

import "github.com/c360studio/semaudit/element"

// Shape is one known encoding of a parameter inside an element. Lookup reports
// false when any step of the path is missing or the value is nil.
type Shape struct {
	Name   string
	Lookup func(el *element.Node, group, name string) (any, bool)
}

// Known shapes, in the order they are tried by DefaultShapes.
var (
	// GroupValue reads bag[group][name].value.
	GroupValue = Shape{Name: "group-value", Lookup: func(el *element.Node, group, name string) (any, bool) {
		return valueAt(el.Properties, refPath(group, name)...)
	}}

	// InstanceParameters reads bag["Parameters"]["Instance Parameters"][group][name].value.
	InstanceParameters = Shape{Name: "instance-parameters", Lookup: func(el *element.Node, group, name string) (any, bool) {
		return valueAt(el.Properties, refPath(group, name, "Parameters", "Instance Parameters")...)
	}}

	// TypeParameters reads bag["Parameters"]["Type Parameters"][group][name].value.
	TypeParameters = Shape{Name: "type-parameters", Lookup: func(el *element.Node, group, name string) (any, bool) {
		return valueAt(el.Properties, refPath(group, name, "Parameters", "Type Parameters")...)
	}}

	// FlatAttribute reads bag[group][name] holding the value directly, or the
	// element attribute group.name when the bag is absent.
	FlatAttribute = Shape{Name: "flat-attribute", Lookup: func(el *element.Node, group, name string) (any, bool) {
		path := refPath(group, name)
		if v, ok := scalarAt(el.Properties, path...); ok {
			return v, true
		}
		return scalarAt(el.Fields, path...)
	}}
)

// DefaultShapes returns the shapes in resolution priority order.
func DefaultShapes() []Shape {
	return []Shape{GroupValue, InstanceParameters, TypeParameters, FlatAttribute}
}

// Resolver tries each shape in order and returns the first value found.
type Resolver struct {
	shapes []Shape
}

// NewResolver creates a resolver over the given shapes. With no shapes the
// default order is used.
func NewResolver(shapes ...Shape) *Resolver {
	if len(shapes) == 0 {
		shapes = DefaultShapes()
	}
	return &Resolver{shapes: shapes}
}

// Resolve returns the value of (group, name) on el from the first shape that has
// it. Missing branches abort only the current shape; absence is reported as false.
func (r *Resolver) Resolve(el *element.Node, group, name string) (any, bool) {
	v, _, ok := r.ResolveShape(el, group, name)
	return v, ok
}

// ResolveShape is Resolve that also reports which shape matched.
func (r *Resolver) ResolveShape(el *element.Node, group, name string) (any, string, bool) {
	if el == nil {
		return nil, "", false
	}
	for _, s := range r.shapes {
		if v, ok := s.Lookup(el, group, name); ok {
			return v, s.Name, true
		}
	}
	return nil, "", false
}

// Ref identifies a semantic parameter.
type Ref struct {
	Group string `yaml:"group" json:"group"`
	Name  string `yaml:"name" json:"name"`
}

// String renders the ref as group/name.
func (p Ref) String() string {
	if p.Group == "" {
		return p.Name
	}
	return p.Group + "/" + p.Name
}

// IsZero reports whether the ref names no parameter.
func (p Ref) IsZero() bool {
	return p.Name == ""
}

// Get resolves ref on el.
func (r *Resolver) Get(el *element.Node, ref Ref) (any, bool) {
	return r.Resolve(el, ref.Group, ref.Name)
}

// valueAt walks keys through nested maps and returns the "value" entry of the
// final map.
func valueAt(m map[string]any, keys ...string) (any, bool) {
	leaf, ok := walk(m, keys...)
	if !ok {
		return nil, false
	}
	param, ok := leaf.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := param["value"]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// scalarAt walks keys and returns the final value when it is not itself a map.
func scalarAt(m map[string]any, keys ...string) (any, bool) {
	v, ok := walk(m, keys...)
	if !ok || v == nil {
		return nil, false
	}
	if _, isMap := v.(map[string]any); isMap {
		return nil, false
	}
	return v, true
}

// refPath builds the key path prefix/group/name. An empty group addresses name
// directly under the prefix.
func refPath(group, name string, prefix ...string) []string {
	path := append([]string{}, prefix...)
	if group != "" {
		path = append(path, group)
	}
	return append(path, name)
}

func walk(m map[string]any, keys ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
