package risk

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Names of the embedded rule sets.
const (
	BuiltinBasic    = "basic"
	BuiltinExtended = "extended"
)

//go:embed rulesets/*.yaml
var builtinFS embed.FS

var loadBuiltins = sync.OnceValues(func() (map[string]*RuleSet, error) {
	entries, err := builtinFS.ReadDir("rulesets")
	if err != nil {
		return nil, fmt.Errorf("risk: read embedded rule sets: %w", err)
	}
	out := make(map[string]*RuleSet, len(entries))
	for _, e := range entries {
		data, err := builtinFS.ReadFile("rulesets/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("risk: read %s: %w", e.Name(), err)
		}
		rs, err := ParseRuleSet(data)
		if err != nil {
			return nil, fmt.Errorf("risk: embedded %s: %w", e.Name(), err)
		}
		if want := strings.TrimSuffix(e.Name(), ".yaml"); rs.Name() != want {
			return nil, fmt.Errorf("risk: embedded %s declares name %q", e.Name(), rs.Name())
		}
		out[rs.Name()] = rs
	}
	return out, nil
})

// Builtin returns the embedded rule set with the given name.
func Builtin(name string) (*RuleSet, error) {
	all, err := loadBuiltins()
	if err != nil {
		return nil, err
	}
	rs, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("risk: unknown rule set %q (have %s)",
			name, strings.Join(BuiltinNames(), ", "))
	}
	return rs, nil
}

// BuiltinNames lists the embedded rule sets in sorted order.
func BuiltinNames() []string {
	all, err := loadBuiltins()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MustBuiltin is like Builtin but panics on error. For use in initialisers
// and tests.
func MustBuiltin(name string) *RuleSet {
	rs, err := Builtin(name)
	if err != nil {
		panic(err)
	}
	return rs
}

// Default returns the extended rule set.
func Default() *RuleSet {
	return MustBuiltin(BuiltinExtended)
}
