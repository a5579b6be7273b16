// Package auth resolves bearer tokens to actor identities.
package auth

import (
	"crypto/subtle"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry maps bearer tokens to actor ids. Inline tokens come from the
// main config; file tokens are loaded from a YAML map and can be reloaded
// at runtime. File tokens override inline tokens with the same key.
type Registry struct {
	mu     sync.RWMutex
	inline map[string]string
	file   map[string]string
	path   string
}

// NewRegistry creates a registry from inline tokens and, when path is
// non-empty, the tokens file at path.
func NewRegistry(inline map[string]string, path string) (*Registry, error) {
	r := &Registry{
		inline: make(map[string]string, len(inline)),
		file:   map[string]string{},
		path:   path,
	}
	for tok, actor := range inline {
		r.inline[tok] = actor
	}
	if path != "" {
		if err := r.Reload(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Path returns the tokens file path, or "" when none is configured.
func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the tokens file. On failure the previous file tokens stay active.
func (r *Registry) Reload() error {
	tokens, err := loadTokensFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.file = tokens
	r.mu.Unlock()
	return nil
}

// Resolve returns the actor id for token.
func (r *Registry) Resolve(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if actor, ok := lookup(r.file, token); ok {
		return actor, true
	}
	return lookup(r.inline, token)
}

// Len returns the number of distinct tokens known to the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.file)
	for tok := range r.inline {
		if _, dup := r.file[tok]; !dup {
			n++
		}
	}
	return n
}

// lookup compares every key in constant time so that the position of a
// match does not leak through timing.
func lookup(tokens map[string]string, token string) (string, bool) {
	var (
		found string
		ok    bool
	)
	for tok, actor := range tokens {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1 {
			found, ok = actor, true
		}
	}
	return found, ok
}

func loadTokensFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read tokens file %s: %w", path, err)
	}
	var doc struct {
		Tokens map[string]string `yaml:"tokens"`
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("auth: parse tokens file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc.Tokens))
	for tok, actor := range doc.Tokens {
		if tok == "" || actor == "" {
			return nil, fmt.Errorf("auth: tokens file %s: empty token or actor", path)
		}
		out[tok] = actor
	}
	return out, nil
}
