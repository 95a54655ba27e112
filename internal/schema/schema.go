// Package schema declares mappers and their relations in a YAML file:
//
//	mappers:
//	  users:
//	    relations:
//	      posts: {type: hasMany, target: posts, otherKey: author_id}
//	  posts:
//	    relations:
//	      author: {type: belongsTo, target: users, selfKey: author_id}
package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// Relation types accepted in a schema file.
const (
	BelongsTo     = "belongsTo"
	HasOne        = "hasOne"
	HasMany       = "hasMany"
	BelongsToMany = "belongsToMany"
)

type Schema struct {
	Mappers map[string]MapperDef `yaml:"mappers"`
}

type MapperDef struct {
	// Table defaults to the slug of the mapper name.
	Table     string                 `yaml:"table"`
	ID        KeyList                `yaml:"id"`
	Defaults  map[string]interface{} `yaml:"defaults"`
	Relations map[string]RelationDef `yaml:"relations"`
}

type RelationDef struct {
	Type     string    `yaml:"type"`
	Target   string    `yaml:"target"`
	SelfKey  KeyList   `yaml:"selfKey"`
	OtherKey KeyList   `yaml:"otherKey"`
	Single   bool      `yaml:"single"`
	Pivot    *PivotDef `yaml:"pivot"`

	// Where constrains the target with equality matches.
	Where map[string]interface{} `yaml:"where"`
}

type PivotDef struct {
	Table    string   `yaml:"table"`
	SelfKey  KeyList  `yaml:"selfKey"`
	OtherKey KeyList  `yaml:"otherKey"`
	Columns  []string `yaml:"columns"`
}

// KeyList is a key written either as a single column or as a list.
type KeyList []string

func (k *KeyList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*k = KeyList{node.Value}
		return nil
	case yaml.SequenceNode:
		var cols []string
		if err := node.Decode(&cols); err != nil {
			return err
		}
		*k = cols
		return nil
	default:
		return fmt.Errorf("line %d: key must be a column or a list of columns", node.Line)
	}
}

// Load reads and validates a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks relation types and targets.
func (s *Schema) Validate() error {
	if len(s.Mappers) == 0 {
		return fmt.Errorf("schema declares no mappers")
	}
	for _, name := range s.Names() {
		def := s.Mappers[name]
		for _, relName := range sortedKeys(def.Relations) {
			rel := def.Relations[relName]
			switch rel.Type {
			case BelongsTo, HasOne, HasMany, BelongsToMany:
			default:
				return fmt.Errorf("%s.%s: unknown relation type %q", name, relName, rel.Type)
			}
			if _, ok := s.Mappers[rel.Target]; !ok {
				return fmt.Errorf("%s.%s: unknown target %q", name, relName, rel.Target)
			}
			if rel.Pivot != nil && rel.Type != BelongsToMany {
				return fmt.Errorf("%s.%s: pivot is only valid for %s", name, relName, BelongsToMany)
			}
			if rel.Single && rel.Type != BelongsToMany {
				return fmt.Errorf("%s.%s: single is only valid for %s", name, relName, BelongsToMany)
			}
		}
	}
	return nil
}

// Names lists the mapper names in sorted order.
func (s *Schema) Names() []string {
	return sortedKeys(s.Mappers)
}

// TableName resolves the table of a mapper, slugging the mapper name when no
// table is given ("Blog Posts" becomes "blog_posts").
func (s *Schema) TableName(name string) string {
	if def, ok := s.Mappers[name]; ok && def.Table != "" {
		return def.Table
	}
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
