// Package schema checks documents against JSON schemas before they are
// written to a store.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/medequip/internal/errs"
)

const (
	Equipment     = "equipment"
	Maintenance   = "maintenance"
	FailureReport = "failure_report"
)

// Validator caches compiled schemas keyed by file name without extension.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewValidator compiles every *.json file under dir in fsys.
func NewValidator(fsys fs.FS, dir string) (*Validator, error) {
	v := &Validator{cache: make(map[string]*jsonschema.Schema)}
	if err := v.Reload(fsys, dir); err != nil {
		return nil, err
	}
	return v, nil
}

// Reload replaces the cached schemas with the ones found in fsys.
func (v *Validator) Reload(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read schemas dir: %w", err)
	}

	next := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal(b, rs); err != nil {
			return fmt.Errorf("compile schema %s: %w", e.Name(), err)
		}
		next[strings.TrimSuffix(e.Name(), ".json")] = rs
	}

	v.mu.Lock()
	v.cache = next
	v.mu.Unlock()
	return nil
}

func (v *Validator) get(name string) (*jsonschema.Schema, bool) {
	v.mu.RLock()
	s, ok := v.cache[name]
	v.mu.RUnlock()
	return s, ok
}

// Validate checks doc against the named schema. Violations come back as a
// validation error naming the first offending field.
func (v *Validator) Validate(ctx context.Context, name string, doc any) error {
	s, ok := v.get(name)
	if !ok {
		return fmt.Errorf("no schema named %q", name)
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", name, err)
	}

	verrs, err := s.ValidateBytes(ctx, b)
	if err != nil {
		return fmt.Errorf("validate %s document: %w", name, err)
	}
	if len(verrs) == 0 {
		return nil
	}

	first := verrs[0]
	return errs.Validation(fieldOf(first), "%s", strings.TrimSpace(first.Message))
}

// fieldOf extracts the top-level property a KeyError refers to. Missing
// required properties are reported at the root with the name quoted in the
// message.
func fieldOf(ke jsonschema.KeyError) string {
	p := strings.Trim(ke.PropertyPath, "/")
	if p != "" {
		if i := strings.Index(p, "/"); i >= 0 {
			return p[:i]
		}
		return p
	}
	if i := strings.Index(ke.Message, `"`); i >= 0 {
		if j := strings.Index(ke.Message[i+1:], `"`); j >= 0 {
			return ke.Message[i+1 : i+1+j]
		}
	}
	return ""
}
