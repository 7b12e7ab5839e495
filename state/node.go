// Package state is the attribute/child-node tree handed to the persistence
// layer.
package state

import (
	"encoding/json"
	"strconv"

	"go-midimodel/seqerr"
)

// Node is one element of a state document.
type Node struct {
	Name     string            `json:"name"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

func New(name string) *Node {
	return &Node{Name: name}
}

// Set stores an attribute and returns n for chaining.
func (n *Node) Set(key, value string) *Node {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[key] = value
	return n
}

func (n *Node) SetInt(key string, v int64) *Node { return n.Set(key, strconv.FormatInt(v, 10)) }

func (n *Node) SetBool(key string, v bool) *Node { return n.Set(key, strconv.FormatBool(v)) }

func (n *Node) Get(key string) (string, bool) {
	v, ok := n.Attrs[key]
	return v, ok
}

// Int reads a required integer attribute.
func (n *Node) Int(key string) (int64, error) {
	s, ok := n.Attrs[key]
	if !ok {
		return 0, seqerr.MalformedState("%s: missing %q", n.Name, key)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, seqerr.MalformedState("%s: %q=%q is not an integer", n.Name, key, s)
	}
	return v, nil
}

// IntOr reads an optional integer attribute.
func (n *Node) IntOr(key string, def int64) (int64, error) {
	if _, ok := n.Attrs[key]; !ok {
		return def, nil
	}
	return n.Int(key)
}

func (n *Node) Bool(key string) (bool, error) {
	s, ok := n.Attrs[key]
	if !ok {
		return false, seqerr.MalformedState("%s: missing %q", n.Name, key)
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, seqerr.MalformedState("%s: %q=%q is not a bool", n.Name, key, s)
	}
	return v, nil
}

// Add appends a child and returns it.
func (n *Node) Add(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// AddChild appends a new named child and returns it.
func (n *Node) AddChild(name string) *Node {
	return n.Add(New(name))
}

// Child returns the first child named name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child named name.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Marshal encodes the tree as indented JSON.
func Marshal(n *Node) ([]byte, error) {
	return json.MarshalIndent(n, "", "  ")
}

// Unmarshal decodes a tree produced by Marshal.
func Unmarshal(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, seqerr.Wrap(err, "decode state")
	}
	return &n, nil
}
