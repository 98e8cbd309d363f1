// Package taxonomy holds the equipment type enumeration and the issues
// permitted for each type. A Taxonomy is immutable once built and is handed
// to the services that need it; there is no package-level instance.
package taxonomy

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// EquipmentType is the canonical name of an equipment type.
type EquipmentType string

const (
	Defibrillator  EquipmentType = "Defibrillator"
	InfusionPump   EquipmentType = "Infusion pump"
	PatientMonitor EquipmentType = "Patient monitor"
	SuctionMachine EquipmentType = "Suction machine"
)

// fallbackPrefix is used when a type yields no usable letters.
const fallbackPrefix = "EQP"

// Entry describes one equipment type.
type Entry struct {
	Type   EquipmentType `yaml:"type" json:"type"`
	Prefix string        `yaml:"prefix" json:"prefix"`
	Issues []string      `yaml:"issues" json:"issues"`
}

// defaultEntries is the single definition both the type enumeration and the
// issue lists are derived from.
var defaultEntries = []Entry{
	{
		Type:   Defibrillator,
		Prefix: "DEF",
		Issues: []string{
			"Battery Failure",
			"Electrode Malfunction",
			"Charging Issues",
			"Shock Delivery Failure",
			"Software Error",
			"Power Supply Problem",
			"Display Not Working",
		},
	},
	{
		Type:   InfusionPump,
		Prefix: "INF",
		Issues: []string{
			"Occlusion Detected",
			"Flow Rate Inaccurate",
			"Air-in-Line Alarm",
			"Battery Not Charging",
			"Pump Motor Error",
			"Keypad/Touchscreen Fault",
			"Alarm Not Functioning",
		},
	},
	{
		Type:   PatientMonitor,
		Prefix: "PAT",
		Issues: []string{
			"ECG Lead Detachment",
			"SpO₂ Sensor Malfunction",
			"Display Flickering or Dead",
			"Inaccurate Readings",
			"Power Supply Issues",
			"Alarm Not Triggering",
			"Data Communication Failure",
		},
	},
	{
		Type:   SuctionMachine,
		Prefix: "SUC",
		Issues: []string{
			"Low Suction Pressure",
			"Motor Overheating",
			"Tubing Blockage",
			"Canister Leak",
			"Filter Clogging",
			"Noisy Operation",
			"Power Switch Malfunction",
		},
	},
}

// Taxonomy maps equipment types to their permitted issues.
type Taxonomy struct {
	entries []Entry
	index   map[string]int
	issues  []map[string]string
}

// New builds a Taxonomy from entries. Type names must be unique after
// normalisation and every entry needs at least one issue.
func New(entries []Entry) (*Taxonomy, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("taxonomy: no equipment types")
	}

	t := &Taxonomy{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
		issues:  make([]map[string]string, 0, len(entries)),
	}
	for _, e := range entries {
		name := strings.TrimSpace(string(e.Type))
		if name == "" {
			return nil, fmt.Errorf("taxonomy: empty equipment type")
		}
		key := normalize(name)
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate equipment type %q", name)
		}
		if len(e.Issues) == 0 {
			return nil, fmt.Errorf("taxonomy: type %q has no issues", name)
		}

		prefix := strings.ToUpper(strings.TrimSpace(e.Prefix))
		if prefix == "" {
			prefix = derivePrefix(name)
		}
		for _, r := range prefix {
			if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
				return nil, fmt.Errorf("taxonomy: prefix %q for %q must be alphanumeric", prefix, name)
			}
		}

		issues := make([]string, 0, len(e.Issues))
		lookup := make(map[string]string, len(e.Issues))
		for _, is := range e.Issues {
			is = strings.TrimSpace(is)
			if is == "" {
				continue
			}
			if _, dup := lookup[normalize(is)]; dup {
				continue
			}
			lookup[normalize(is)] = is
			issues = append(issues, is)
		}

		t.index[key] = len(t.entries)
		t.entries = append(t.entries, Entry{Type: EquipmentType(name), Prefix: prefix, Issues: issues})
		t.issues = append(t.issues, lookup)
	}

	return t, nil
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := New(defaultEntries)
	if err != nil {
		panic(err)
	}
	return t
}

type file struct {
	Types []Entry `yaml:"types"`
}

// Load reads a taxonomy from a YAML file of the form `types: [{type, prefix, issues}]`.
func Load(path string) (*Taxonomy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}

	return New(f.Types)
}

// Types returns the equipment types in definition order.
func (t *Taxonomy) Types() []EquipmentType {
	out := make([]EquipmentType, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Type
	}
	return out
}

// ParseType resolves s to its canonical type, ignoring case and repeated
// whitespace.
func (t *Taxonomy) ParseType(s string) (EquipmentType, bool) {
	i, ok := t.index[normalize(s)]
	if !ok {
		return "", false
	}
	return t.entries[i].Type, true
}

// Issues returns a copy of the permitted issues for typ.
func (t *Taxonomy) Issues(typ EquipmentType) ([]string, bool) {
	i, ok := t.index[normalize(string(typ))]
	if !ok {
		return nil, false
	}
	return append([]string(nil), t.entries[i].Issues...), true
}

// Prefix returns the id prefix for typ.
func (t *Taxonomy) Prefix(typ EquipmentType) string {
	if i, ok := t.index[normalize(string(typ))]; ok {
		return t.entries[i].Prefix
	}
	return derivePrefix(string(typ))
}

// CanonicalIssue reports whether issue is permitted for typ and returns its
// canonical spelling. known is false when typ has no taxonomy entry at all.
func (t *Taxonomy) CanonicalIssue(typ EquipmentType, issue string) (canonical string, permitted, known bool) {
	i, ok := t.index[normalize(string(typ))]
	if !ok {
		return "", false, false
	}
	c, ok := t.issues[i][normalize(issue)]
	return c, ok, true
}

// All returns every type with its issues.
func (t *Taxonomy) All() map[EquipmentType][]string {
	out := make(map[EquipmentType][]string, len(t.entries))
	for _, e := range t.entries {
		out[e.Type] = append([]string(nil), e.Issues...)
	}
	return out
}

// Entries returns a copy of the ordered entries.
func (t *Taxonomy) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{Type: e.Type, Prefix: e.Prefix, Issues: append([]string(nil), e.Issues...)}
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func derivePrefix(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			b.WriteRune(unicode.ToUpper(r))
			if b.Len() == 3 {
				return b.String()
			}
		}
	}
	return fallbackPrefix
}
