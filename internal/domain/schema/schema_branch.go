package schema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

// SchemaBranch is one immutable set of node definitions identified by the
// hash of its content.
type SchemaBranch struct {
	hash  string
	nodes map[string]NodeSchema
}

type schemaFile struct {
	Nodes []NodeSchema `yaml:"nodes" json:"nodes"`
}

// NewSchemaBranch validates the definitions and computes the content hash.
func NewSchemaBranch(nodes []NodeSchema) (*SchemaBranch, error) {
	byKind := make(map[string]NodeSchema, len(nodes))
	for _, n := range nodes {
		if err := n.normalize(); err != nil {
			return nil, err
		}
		if _, dup := byKind[n.Kind]; dup {
			return nil, fmt.Errorf("schema: kind %s defined twice", n.Kind)
		}
		byKind[n.Kind] = n
	}
	for _, n := range byKind {
		for _, r := range n.Relationships {
			if _, ok := byKind[r.Peer]; !ok {
				return nil, fmt.Errorf("schema: %s.%s points at unknown kind %s", n.Kind, r.Name, r.Peer)
			}
		}
	}
	hash, err := contentHash(byKind)
	if err != nil {
		return nil, err
	}
	return &SchemaBranch{hash: hash, nodes: byKind}, nil
}

func contentHash(nodes map[string]NodeSchema) (string, error) {
	kinds := make([]string, 0, len(nodes))
	for k := range nodes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	ordered := make([]NodeSchema, 0, len(kinds))
	for _, k := range kinds {
		ordered = append(ordered, nodes[k])
	}
	raw, err := json.Marshal(ordered)
	if err != nil {
		return "", fmt.Errorf("schema: encode for hash: %w", err)
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Load parses a YAML document with a top-level "nodes" list.
func Load(r io.Reader) (*SchemaBranch, error) {
	var f schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	return NewSchemaBranch(f.Nodes)
}

func LoadFile(path string) (*SchemaBranch, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer fh.Close()
	return Load(fh)
}

func (s *SchemaBranch) Hash() string { return s.hash }

func (s *SchemaBranch) Node(kind string) (NodeSchema, bool) {
	if s == nil {
		return NodeSchema{}, false
	}
	n, ok := s.nodes[kind]
	return n, ok
}

// Kinds returns every node kind, sorted.
func (s *SchemaBranch) Kinds() []string {
	out := make([]string, 0, len(s.nodes))
	for k := range s.nodes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
