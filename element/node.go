// Package element decodes design-model object graphs into a tagged node tree and
// flattens that tree into the leaf elements the rules evaluate.
//
// The upstream model producer emits nodes in several shapes: rich objects with an
// "elements" list, legacy objects using "@elements", bare arrays, and objects that
// carry no identity at all. Decode resolves each raw value to exactly one Kind so the
// rest of the pipeline can switch on the kind instead of probing types.
package element

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrUnrecognizedRoot is returned when the model root is neither an object nor an
// array, so no element can ever be reached from it.
var ErrUnrecognizedRoot = errors.New("unrecognized model root")

// Kind discriminates the variants of Node.
type Kind int

const (
	// KindUnknown is a value that is neither a container, a sequence nor an
	// identifiable object. It is dropped during flattening.
	KindUnknown Kind = iota

	// KindContainer is an object exposing a non-empty child list.
	KindContainer

	// KindSequence is a bare array of nodes.
	KindSequence

	// KindLeaf is an object without children that carries an id.
	KindLeaf
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindSequence:
		return "sequence"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// ChildKeys are the attribute names that may hold a node's children, in the order
// they are checked. The first key holding a non-empty list wins.
var ChildKeys = []string{"elements", "@elements", "children", "@children"}

// typeKeys are the attribute names that may hold the type tag.
var typeKeys = []string{"speckle_type", "speckleType"}

// Node is one decoded graph node.
type Node struct {
	Kind Kind

	// ID is the node identity. Empty when the node carries none.
	ID string

	// Type is the type tag, e.g. "Objects.BuiltElements.Wall:Objects.BuiltElements.Revit.RevitWall".
	Type string

	// Category is the free-form category string ("Muri", "Porte", ...).
	Category string

	// Children holds the child nodes of a container or the items of a sequence.
	Children []*Node

	// Properties is the parameter bag. Its shape is not guaranteed.
	Properties map[string]any

	// Fields holds the raw object attributes, including volume/area/level.
	Fields map[string]any
}

// Field returns a raw attribute of the node. Nil values are reported as absent.
func (n *Node) Field(name string) (any, bool) {
	if n == nil || n.Fields == nil {
		return nil, false
	}
	v, ok := n.Fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Decode parses a JSON model document into a node tree.
func Decode(data []byte) (*Node, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse model JSON: %w", err)
	}

	root := FromValue(raw)
	if root.Kind == KindUnknown && root.Fields == nil {
		return nil, ErrUnrecognizedRoot
	}
	return root, nil
}

// DecodeFile reads and decodes a JSON model snapshot from disk.
func DecodeFile(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	root, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return root, nil
}

// FromValue converts a generic decoded JSON value into a Node.
func FromValue(v any) *Node {
	switch val := v.(type) {
	case []any:
		n := &Node{Kind: KindSequence, Children: make([]*Node, 0, len(val))}
		for _, item := range val {
			n.Children = append(n.Children, FromValue(item))
		}
		return n
	case map[string]any:
		return fromObject(val)
	default:
		return &Node{Kind: KindUnknown}
	}
}

func fromObject(obj map[string]any) *Node {
	n := &Node{
		ID:         identity(obj["id"]),
		Type:       firstString(obj, typeKeys),
		Category:   stringField(obj, "category"),
		Properties: bag(obj),
		Fields:     obj,
	}

	for _, key := range ChildKeys {
		items, ok := obj[key].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		n.Kind = KindContainer
		n.Children = make([]*Node, 0, len(items))
		for _, item := range items {
			n.Children = append(n.Children, FromValue(item))
		}
		return n
	}

	if n.ID != "" {
		n.Kind = KindLeaf
	}
	return n
}

// bag picks the parameter bag: "properties" when present, else the older
// "parameters" map.
func bag(obj map[string]any) map[string]any {
	if m, ok := obj["properties"].(map[string]any); ok {
		return m
	}
	if m, ok := obj["parameters"].(map[string]any); ok {
		return m
	}
	return nil
}

func identity(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func firstString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		if s := stringField(obj, key); s != "" {
			return s
		}
	}
	return ""
}
