package schema

import (
	"fmt"

	"github.com/GoCodeAlone/tradestore/migration"
)

// Version IDs, in apply order.
const (
	VersionBaseline       = "0001_baseline_schema"
	VersionTouchTimestamp = "0002_touch_updated_at"
)

// TouchTimestamps keeps order.updated_at and position.last_updated current
// on every UPDATE.
func TouchTimestamps() *Schema {
	return &Schema{
		Functions: []Function{
			{Name: "touch_updated_at", Body: "    NEW.updated_at := now();\n    RETURN NEW;"},
			{Name: "touch_last_updated", Body: "    NEW.last_updated := now();\n    RETURN NEW;"},
		},
		Triggers: []Trigger{
			{
				Name:     "trg_order_touch_updated_at",
				Table:    TableOrder,
				Timing:   "BEFORE",
				Events:   []string{"UPDATE"},
				Function: "touch_updated_at",
			},
			{
				Name:     "trg_position_touch_last_updated",
				Table:    TablePosition,
				Timing:   "BEFORE",
				Events:   []string{"UPDATE"},
				Function: "touch_last_updated",
			},
		},
	}
}

type versionDef struct {
	id          string
	description string
	schema      func() *Schema
}

var versionDefs = []versionDef{
	{VersionBaseline, "enums, tables, indexes and the audit_event trigger pair", Baseline},
	{VersionTouchTimestamp, "touch triggers for order.updated_at and position.last_updated", TouchTimestamps},
}

// Definitions returns each version's schema, in apply order.
func Definitions() []*Schema {
	defs := make([]*Schema, len(versionDefs))
	for i, d := range versionDefs {
		defs[i] = d.schema()
	}
	return defs
}

// Versions validates every definition against the ones before it and
// returns the migration set.
func Versions() ([]migration.Version, error) {
	defs := Definitions()
	versions := make([]migration.Version, len(defs))
	for i, def := range defs {
		if err := def.Validate(defs[:i]...); err != nil {
			return nil, fmt.Errorf("version %s: %w", versionDefs[i].id, err)
		}
		versions[i] = migration.Version{
			ID:          versionDefs[i].id,
			Description: versionDefs[i].description,
			Up:          def.CreateStatements(),
			Down:        def.DropStatements(),
		}
	}
	return versions, nil
}

// Merged returns every object declared by defs as one schema.
func Merged(defs ...*Schema) *Schema {
	out := &Schema{}
	for _, d := range defs {
		out.Extensions = append(out.Extensions, d.Extensions...)
		out.Enums = append(out.Enums, d.Enums...)
		out.Tables = append(out.Tables, d.Tables...)
		out.Indexes = append(out.Indexes, d.Indexes...)
		out.Functions = append(out.Functions, d.Functions...)
		out.Triggers = append(out.Triggers, d.Triggers...)
	}
	return out
}
