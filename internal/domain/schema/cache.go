package schema

import "sync"

// Cache is the per-branch schema cache. Branches sharing identical content
// share one SchemaBranch through its hash. Lookups on a branch without its own
// entry fall back to the default branch.
type Cache struct {
	mu            sync.RWMutex
	defaultBranch string
	byHash        map[string]*SchemaBranch
	byBranch      map[string]string
}

func NewCache(defaultBranch string) *Cache {
	return &Cache{
		defaultBranch: defaultBranch,
		byHash:        map[string]*SchemaBranch{},
		byBranch:      map[string]string{},
	}
}

// Set registers sb for branch and returns its hash.
func (c *Cache) Set(branch string, sb *SchemaBranch) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.byHash[sb.Hash()]; ok {
		sb = existing
	} else {
		c.byHash[sb.Hash()] = sb
	}
	previous := c.byBranch[branch]
	c.byBranch[branch] = sb.Hash()
	if previous != "" && previous != sb.Hash() {
		c.gcLocked(previous)
	}
	return sb.Hash()
}

// Copy makes branch share the schema of from; used on branch creation.
func (c *Cache) Copy(from, branch string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.byBranch[from]
	if !ok {
		hash, ok = c.byBranch[c.defaultBranch]
	}
	if !ok {
		return "", false
	}
	c.byBranch[branch] = hash
	return hash, true
}

// Drop forgets branch.
func (c *Cache) Drop(branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.byBranch[branch]
	if !ok {
		return
	}
	delete(c.byBranch, branch)
	c.gcLocked(hash)
}

func (c *Cache) gcLocked(hash string) {
	for _, h := range c.byBranch {
		if h == hash {
			return
		}
	}
	delete(c.byHash, hash)
}

// Get returns the schema of branch, falling back to the default branch.
func (c *Cache) Get(branch string) (*SchemaBranch, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.byBranch[branch]
	if !ok {
		hash, ok = c.byBranch[c.defaultBranch]
	}
	if !ok {
		return nil, false
	}
	sb, ok := c.byHash[hash]
	return sb, ok
}

// Hash returns the schema hash of branch, or "" when unknown.
func (c *Cache) Hash(branch string) string {
	sb, ok := c.Get(branch)
	if !ok {
		return ""
	}
	return sb.Hash()
}

func (c *Cache) Node(branch, kind string) (NodeSchema, bool) {
	sb, ok := c.Get(branch)
	if !ok {
		return NodeSchema{}, false
	}
	return sb.Node(kind)
}

func (c *Cache) Relationship(branch, kind, name string) (RelationshipSchema, bool) {
	n, ok := c.Node(branch, kind)
	if !ok {
		return RelationshipSchema{}, false
	}
	return n.Relationship(name)
}

// RelationshipByIdentifier looks the identifier up on the given kind.
func (c *Cache) RelationshipByIdentifier(branch, kind, identifier string) (RelationshipSchema, bool) {
	n, ok := c.Node(branch, kind)
	if !ok {
		return RelationshipSchema{}, false
	}
	return n.RelationshipByIdentifier(identifier)
}
