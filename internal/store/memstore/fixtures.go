package memstore

import (
	"fmt"
	"io"
	"sort"

	query "github.com/hanpama/entityql/internal/query"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
	value "github.com/hanpama/entityql/internal/value"
	"gopkg.in/yaml.v3"
)

// Fixtures is a YAML document of writes grouped by block:
//
//	blocks:
//	  - number: 1
//	    set:
//	      User:
//	        - {id: u1, name: Alice}
//	    remove:
//	      User: [u2]
type Fixtures struct {
	Blocks []FixtureBlock `yaml:"blocks"`
}

type FixtureBlock struct {
	Number store.BlockNumber           `yaml:"number"`
	Set    map[string][]map[string]any `yaml:"set"`
	Remove map[string][]string         `yaml:"remove"`
}

// LoadFixtures decodes fixtures from r and writes them to st. Attribute
// values are converted using the field types of s; every entity type needs
// a subgraph id.
func LoadFixtures(s *schema.Schema, st *Store, r io.Reader) error {
	var f Fixtures
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return fmt.Errorf("decoding fixtures: %w", err)
	}
	for _, b := range f.Blocks {
		for _, typeName := range sortedKeys(b.Set) {
			t, id, err := entityType(s, typeName)
			if err != nil {
				return err
			}
			for i, raw := range b.Set[typeName] {
				e, err := fixtureEntity(t, raw)
				if err != nil {
					return fmt.Errorf("block %d: %s[%d]: %w", b.Number, typeName, i, err)
				}
				st.Set(id, b.Number, e)
			}
		}
		for _, typeName := range sortedKeys(b.Remove) {
			_, id, err := entityType(s, typeName)
			if err != nil {
				return err
			}
			for _, entityID := range b.Remove[typeName] {
				st.Remove(id, b.Number, typeName, entityID)
			}
		}
	}
	return nil
}

func entityType(s *schema.Schema, name string) (*schema.Type, store.DeploymentHash, error) {
	t := s.Type(name)
	if t == nil || t.Kind != schema.TypeKindObject || !t.IsEntity() {
		return nil, "", fmt.Errorf("%s is not an entity object type", name)
	}
	id, err := query.ParseSubgraphID(t)
	if err != nil {
		return nil, "", err
	}
	return t, id, nil
}

func fixtureEntity(t *schema.Type, raw map[string]any) (store.Entity, error) {
	if _, ok := raw["id"]; !ok {
		return store.Entity{}, fmt.Errorf("missing id")
	}
	attrs := make(map[string]store.Value, len(raw))
	for k, v := range raw {
		f := t.Field(k)
		if f == nil {
			return store.Entity{}, fmt.Errorf("entity %s has no attribute %s", t.Name, k)
		}
		sv, err := store.FromQueryValue(fixtureValue(value.FromGo(v), f.Type), f.Type)
		if err != nil {
			return store.Entity{}, fmt.Errorf("%s: %w", k, err)
		}
		attrs[k] = sv
	}
	return store.Entity{Type: t.Name, Attributes: attrs}, nil
}

// fixtureValue lets YAML numbers stand for BigInt and BigDecimal attributes.
func fixtureValue(v value.Value, t *schema.TypeRef) value.Value {
	if t.IsNonNull() {
		t = t.OfType
	}
	if t.Kind == schema.TypeRefKindList {
		items, ok := v.(value.List)
		if !ok {
			return v
		}
		out := make(value.List, len(items))
		for i, item := range items {
			out[i] = fixtureValue(item, t.OfType)
		}
		return out
	}
	vt, ok := store.ValueTypeOf(t)
	if !ok || (vt != store.ValueTypeBigInt && vt != store.ValueTypeBigDecimal) {
		return v
	}
	switch v.(type) {
	case value.Int, value.Float:
		return value.String(v.String())
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
