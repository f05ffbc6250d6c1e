// Package manifest loads and merges the per-node function manifest: the
// catalogue of shell functions a node can execute, the codebase glob sets
// used by sync_code, the warmup command list, and the optional fractions
// that let several role manifests be composed onto one node name.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// OutputSpec describes how to extract a named output from a function's run:
// Cmd is run (after $output_i/$K substitution) and its stdout is matched
// against the Format regular expression.
type OutputSpec struct {
	Cmd    string `json:"cmd"`
	Format string `json:"format"`
}

// FunctionConfig is one entry of the "functions" manifest section.
type FunctionConfig struct {
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Commands    []string               `json:"commands,omitempty"`
	Outputs     map[string]OutputSpec  `json:"outputs,omitempty"`
}

// Manifest is the full per-node configuration document.
type Manifest struct {
	Name      string                    `json:"name,omitempty"`
	Codebase  map[string][]string       `json:"codebase,omitempty"`
	Functions map[string]FunctionConfig `json:"functions,omitempty"`
	Warmup    []string                  `json:"warmup,omitempty"`
	Fractions map[string]string         `json:"fractions,omitempty"`

	dir string
}

// Dir returns the directory the manifest file was loaded from; codebase
// globs are resolved relative to it. Relative fraction paths are not: they
// resolve against ./manifest under the process's working directory.
func (m *Manifest) Dir() string { return m.dir }

// Load reads and decodes a manifest file, then applies any fractions whose
// role token is present in name (split on '-'), or in the manifest's own
// declared name when name is empty. The payload is arbitrary,
// heterogeneously-typed JSON (parameter defaults can be any scalar), so it
// is decoded with encoding/json rather than bound through viper.
func Load(path, name string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{dir: filepath.Dir(path)}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = name
	}
	if name == "" {
		name = m.Name
	}
	if err := m.applyFractions(name); err != nil {
		return nil, err
	}
	return m, nil
}

// fracManifestRoot is where relative fraction paths are resolved from.
const fracManifestRoot = "./manifest"

// applyFractions walks the role tokens of name (split on '-') in order and,
// for each token that has a declared fraction, merges that fraction's
// manifest in. A later token's fraction overrides an earlier one for the
// same codebase or function key; warmup command lists accumulate.
func (m *Manifest) applyFractions(name string) error {
	if len(m.Fractions) == 0 {
		return nil
	}

	for _, tok := range strings.Split(name, "-") {
		frac, ok := m.Fractions[tok]
		if !ok {
			continue
		}
		path := frac
		if !filepath.IsAbs(path) {
			path = filepath.Join(fracManifestRoot, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var part Manifest
		if err := json.Unmarshal(raw, &part); err != nil {
			return err
		}
		m.merge(&part)
	}
	return nil
}

func (m *Manifest) merge(part *Manifest) {
	if m.Codebase == nil {
		m.Codebase = map[string][]string{}
	}
	for k, v := range part.Codebase {
		m.Codebase[k] = v
	}
	if m.Functions == nil {
		m.Functions = map[string]FunctionConfig{}
	}
	for k, v := range part.Functions {
		m.Functions[k] = v
	}
	m.Warmup = append(m.Warmup, part.Warmup...)
}

// CodebaseGlobs returns the glob set declared for basename, or, for
// basename == "*", the union of every declared glob set.
func (m *Manifest) CodebaseGlobs(basename string) []string {
	if basename == "*" {
		var all []string
		for _, g := range m.Codebase {
			all = append(all, g...)
		}
		return all
	}
	return m.Codebase[basename]
}
