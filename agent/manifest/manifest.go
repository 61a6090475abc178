// Package manifest holds the static capability table shared by the router,
// the handler registry and the formatter.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	"gopkg.in/yaml.v3"
)

//go:embed manifest.yaml
var defaultRaw []byte

type AgentDescriptor struct {
	Key         string   `yaml:"key" json:"key"`
	DisplayName string   `yaml:"display_name" json:"display_name"`
	Description string   `yaml:"description" json:"description"`
	Intents     []string `yaml:"intents" json:"intents"`
}

// Manifest is read-only after Load.
type Manifest struct {
	agents    []AgentDescriptor
	byKey     map[string]int
	byDisplay map[string]int
	intents   map[string]string
}

type file struct {
	Agents []AgentDescriptor `yaml:"agents"`
}

// Default returns the manifest compiled into the binary.
func Default() (*Manifest, error) {
	return Parse(defaultRaw)
}

// Load reads the manifest from path, or the embedded default when path is empty.
func Load(path string) (*Manifest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", contractx.ErrManifest, path, err)
	}
	return Parse(raw)
}

func MustLoad(path string) *Manifest {
	m, err := Load(path)
	if err != nil {
		panic(err)
	}
	return m
}

func Parse(raw []byte) (*Manifest, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", contractx.ErrManifest, err)
	}
	return New(f.Agents)
}

func New(agents []AgentDescriptor) (*Manifest, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: no agents declared", contractx.ErrManifest)
	}

	m := &Manifest{
		agents:    make([]AgentDescriptor, 0, len(agents)),
		byKey:     make(map[string]int, len(agents)),
		byDisplay: make(map[string]int, len(agents)),
		intents:   make(map[string]string),
	}

	var errs []error
	for _, a := range agents {
		a.Key = strings.TrimSpace(a.Key)
		a.DisplayName = strings.TrimSpace(a.DisplayName)
		if a.Key == "" {
			errs = append(errs, errors.New("agent key is empty"))
			continue
		}
		if a.DisplayName == "" {
			a.DisplayName = a.Key
		}
		if _, dup := m.byKey[a.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate key %q", a.Key))
			continue
		}
		display := normalize(a.DisplayName)
		if _, dup := m.byDisplay[display]; dup {
			errs = append(errs, fmt.Errorf("duplicate display name %q", a.DisplayName))
			continue
		}

		idx := len(m.agents)
		a.Intents = append([]string(nil), a.Intents...)
		m.agents = append(m.agents, a)
		m.byKey[a.Key] = idx
		m.byDisplay[display] = idx
		for _, intent := range a.Intents {
			intent = strings.TrimSpace(intent)
			if owner, dup := m.intents[intent]; dup && owner != a.Key {
				errs = append(errs, fmt.Errorf("intent %q claimed by %q and %q", intent, owner, a.Key))
				continue
			}
			m.intents[intent] = a.Key
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", contractx.ErrManifest, errors.Join(errs...))
	}
	return m, nil
}

func (m *Manifest) ByKey(key string) (AgentDescriptor, bool) {
	idx, ok := m.byKey[strings.TrimSpace(key)]
	if !ok {
		return AgentDescriptor{}, false
	}
	return m.copyAt(idx), true
}

func (m *Manifest) ByDisplayName(name string) (AgentDescriptor, bool) {
	idx, ok := m.byDisplay[normalize(name)]
	if !ok {
		return AgentDescriptor{}, false
	}
	return m.copyAt(idx), true
}

// Resolve maps an untrusted agent name (display name first, then key) to a manifest key.
func (m *Manifest) Resolve(name string) (string, bool) {
	if d, ok := m.ByDisplayName(name); ok {
		return d.Key, true
	}
	if d, ok := m.ByKey(strings.ToLower(strings.TrimSpace(name))); ok {
		return d.Key, true
	}
	return "", false
}

func (m *Manifest) Has(key string) bool {
	_, ok := m.byKey[key]
	return ok
}

// All returns the descriptors in declaration order.
func (m *Manifest) All() []AgentDescriptor {
	out := make([]AgentDescriptor, 0, len(m.agents))
	for i := range m.agents {
		out = append(out, m.copyAt(i))
	}
	return out
}

func (m *Manifest) Keys() []string {
	out := make([]string, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a.Key)
	}
	return out
}

// IntentTable maps every declared intent to the key of its agent.
func (m *Manifest) IntentTable() map[string]string {
	out := make(map[string]string, len(m.intents))
	for k, v := range m.intents {
		out[k] = v
	}
	return out
}

func (m *Manifest) DisplayName(key string) string {
	if d, ok := m.ByKey(key); ok {
		return d.DisplayName
	}
	return key
}

func (m *Manifest) copyAt(idx int) AgentDescriptor {
	a := m.agents[idx]
	a.Intents = append([]string(nil), a.Intents...)
	return a
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
