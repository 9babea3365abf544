package schema

import (
	"github.com/acksell/larder/dynamodb/index"
	"github.com/acksell/larder/dynamodb/index/val"
	"github.com/acksell/larder/dynamodb/table"
)

// Description is a serializable view of the table layout, printed by
// `larder schema` and usable to create the table elsewhere.
type Description struct {
	Name         string              `yaml:"name" json:"name"`
	PartitionKey KeyDescription      `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDescription     `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
	GSIs         []GSIDescription    `yaml:"gsis,omitempty" json:"gsis,omitempty"`
	Entities     []EntityDescription `yaml:"entities,omitempty" json:"entities,omitempty"`
}

type KeyDescription struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"` // "S", "N", or "B"
}

type GSIDescription struct {
	Name         string          `yaml:"name" json:"name"`
	PartitionKey KeyDescription  `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDescription `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
}

// EntityDescription describes where an entity type is stored.
type EntityDescription struct {
	Type                string       `yaml:"type" json:"type"`
	PartitionKeyPattern string       `yaml:"partitionKeyPattern" json:"partitionKeyPattern"`
	SortKeyPattern      string       `yaml:"sortKeyPattern,omitempty" json:"sortKeyPattern,omitempty"`
	GSIMappings         []GSIMapping `yaml:"gsiMappings,omitempty" json:"gsiMappings,omitempty"`
}

// GSIMapping describes how an entity maps to a GSI.
type GSIMapping struct {
	GSI              string `yaml:"gsi" json:"gsi"`
	PartitionPattern string `yaml:"partitionPattern" json:"partitionPattern"`
	SortPattern      string `yaml:"sortPattern,omitempty" json:"sortPattern,omitempty"`
}

// Describe renders the table and entity layout.
func (ix Indexes) Describe() Description {
	d := Description{
		Name:         ix.Table.Name,
		PartitionKey: describeKey(ix.Table.KeyDefinitions.PartitionKey),
		SortKey:      describeSortKey(ix.Table.KeyDefinitions.SortKey),
	}
	for _, g := range ix.Table.GSIs {
		d.GSIs = append(d.GSIs, GSIDescription{
			Name:         g.Name,
			PartitionKey: describeKey(g.KeyDefinitions.PartitionKey),
			SortKey:      describeSortKey(g.KeyDefinitions.SortKey),
		})
	}
	for _, pi := range ix.All() {
		e := EntityDescription{
			Type:                pi.EntityType,
			PartitionKeyPattern: pattern(pi.PartitionKey),
		}
		if pi.SortKey != nil {
			e.SortKeyPattern = pattern(*pi.SortKey)
		}
		for _, si := range pi.Secondary {
			e.GSIMappings = append(e.GSIMappings, describeMapping(si))
		}
		d.Entities = append(d.Entities, e)
	}
	return d
}

func describeKey(k table.KeyDef) KeyDescription {
	return KeyDescription{Name: k.Name, Kind: string(k.Kind)}
}

func describeSortKey(k table.KeyDef) *KeyDescription {
	if k.Name == "" {
		return nil
	}
	d := describeKey(k)
	return &d
}

func describeMapping(si index.SecondaryIndex) GSIMapping {
	m := GSIMapping{GSI: si.Name(), PartitionPattern: pattern(si.Partition)}
	if si.Sort != nil {
		m.SortPattern = pattern(*si.Sort)
	}
	return m
}

func pattern(v val.ValDef) string {
	switch {
	case v.Format != nil:
		return v.Format.String()
	case v.FromField != "":
		return "{" + v.FromField + "}"
	case v.Const != nil:
		return v.Const.String()
	}
	return ""
}
