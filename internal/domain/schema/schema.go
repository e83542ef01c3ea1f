// Package schema holds the node definitions the core consults to learn which
// attributes and relationships a node kind carries.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

type AttributeSchema struct {
	Name     string `yaml:"name" json:"name"`
	Kind     string `yaml:"kind" json:"kind"`
	Optional bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
	// BranchAgnostic attributes are written on the global pseudo-branch.
	BranchAgnostic bool `yaml:"branch_agnostic,omitempty" json:"branch_agnostic,omitempty"`
}

type RelationshipSchema struct {
	Name        string      `yaml:"name" json:"name"`
	Peer        string      `yaml:"peer" json:"peer"`
	Identifier  string      `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	Cardinality Cardinality `yaml:"cardinality" json:"cardinality"`
	Optional    bool        `yaml:"optional,omitempty" json:"optional,omitempty"`
}

type NodeSchema struct {
	Kind          string               `yaml:"kind" json:"kind"`
	Attributes    []AttributeSchema    `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Relationships []RelationshipSchema `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

func (n NodeSchema) Attribute(name string) (AttributeSchema, bool) {
	for _, a := range n.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSchema{}, false
}

func (n NodeSchema) Relationship(name string) (RelationshipSchema, bool) {
	for _, r := range n.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return RelationshipSchema{}, false
}

func (n NodeSchema) RelationshipByIdentifier(identifier string) (RelationshipSchema, bool) {
	for _, r := range n.Relationships {
		if r.Identifier == identifier {
			return r, true
		}
	}
	return RelationshipSchema{}, false
}

// DefaultIdentifier names the relationship vertex shared by both sides.
func DefaultIdentifier(kind, peer string) string {
	pair := []string{strings.ToLower(kind), strings.ToLower(peer)}
	sort.Strings(pair)
	return pair[0] + "__" + pair[1]
}

func (n *NodeSchema) normalize() error {
	n.Kind = strings.TrimSpace(n.Kind)
	if n.Kind == "" {
		return fmt.Errorf("schema: node without kind")
	}
	seen := map[string]struct{}{}
	for i := range n.Attributes {
		a := &n.Attributes[i]
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return fmt.Errorf("schema: %s has an attribute without name", n.Kind)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("schema: %s.%s defined twice", n.Kind, a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.Kind == "" {
			a.Kind = "Text"
		}
	}
	for i := range n.Relationships {
		r := &n.Relationships[i]
		r.Name = strings.TrimSpace(r.Name)
		r.Peer = strings.TrimSpace(r.Peer)
		if r.Name == "" || r.Peer == "" {
			return fmt.Errorf("schema: %s has a relationship without name or peer", n.Kind)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("schema: %s.%s defined twice", n.Kind, r.Name)
		}
		seen[r.Name] = struct{}{}
		switch r.Cardinality {
		case "":
			r.Cardinality = CardinalityMany
		case CardinalityOne, CardinalityMany:
		default:
			return fmt.Errorf("schema: %s.%s has unknown cardinality %q", n.Kind, r.Name, r.Cardinality)
		}
		if r.Identifier == "" {
			r.Identifier = DefaultIdentifier(n.Kind, r.Peer)
		}
	}
	return nil
}
