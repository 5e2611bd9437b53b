package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTables() []Table {
	return []Table{
		{Name: "parent", Columns: []Column{{Name: "id", Type: "BIGSERIAL", PrimaryKey: true}}},
		{Name: "child", Columns: []Column{
			{Name: "id", Type: "BIGSERIAL", PrimaryKey: true},
			{Name: "parent_id", Type: "BIGINT", References: &ForeignKey{Name: "fk_child__parent", Table: "parent", Column: "id"}},
			{Name: "kind", Enum: "kind_enum"},
		}},
	}
}

func TestValidate_Accepts(t *testing.T) {
	s := &Schema{
		Enums:  []Enum{{Name: "kind_enum", Values: []string{"A", "B"}}},
		Tables: validTables(),
	}
	require.NoError(t, s.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Schema)
		want   string
	}{
		{
			name:   "fk to later table",
			mutate: func(s *Schema) { s.Tables[0], s.Tables[1] = s.Tables[1], s.Tables[0] },
			want:   "not declared before",
		},
		{
			name: "fk to unknown column",
			mutate: func(s *Schema) {
				s.Tables[1].Columns[1].References = &ForeignKey{Name: "fk_child__parent", Table: "parent", Column: "uuid"}
			},
			want: "unknown column parent.uuid",
		},
		{
			name:   "undeclared enum",
			mutate: func(s *Schema) { s.Enums = nil },
			want:   `undeclared enum "kind_enum"`,
		},
		{
			name:   "type and enum",
			mutate: func(s *Schema) { s.Tables[1].Columns[2].Type = "TEXT" },
			want:   "exactly one of type or enum",
		},
		{
			name:   "duplicate table",
			mutate: func(s *Schema) { s.Tables = append(s.Tables, s.Tables[0]) },
			want:   `table "parent" declared twice`,
		},
		{
			name: "index on unknown table",
			mutate: func(s *Schema) {
				s.Indexes = []Index{{Name: "ix_ghost", Table: "ghost", Columns: []string{"id"}}}
			},
			want: `unknown table "ghost"`,
		},
		{
			name: "index name clashes with constraint",
			mutate: func(s *Schema) {
				s.Tables[0].Uniques = []Unique{{Name: "uq_parent__id", Columns: []string{"id"}}}
				s.Indexes = []Index{{Name: "uq_parent__id", Table: "parent", Columns: []string{"id"}}}
			},
			want: "clashes",
		},
		{
			name: "trigger with undeclared function",
			mutate: func(s *Schema) {
				s.Triggers = []Trigger{{Name: "trg", Table: "parent", Timing: "BEFORE", Events: []string{"UPDATE"}, Function: "nope"}}
			},
			want: `undeclared function "nope"`,
		},
		{
			name:   "no primary key",
			mutate: func(s *Schema) { s.Tables[0].Columns[0].PrimaryKey = false },
			want:   "exactly one primary key",
		},
		{
			name:   "repeated enum value",
			mutate: func(s *Schema) { s.Enums[0].Values = []string{"A", "A"} },
			want:   `repeats value "A"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Schema{
				Enums:  []Enum{{Name: "kind_enum", Values: []string{"A", "B"}}},
				Tables: validTables(),
			}
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDefinition))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_PriorSchemas(t *testing.T) {
	touch := TouchTimestamps()
	err := touch.Validate()
	require.Error(t, err, "triggers on tables from an earlier version need that version")
	assert.Contains(t, err.Error(), `unknown table "order"`)

	require.NoError(t, touch.Validate(Baseline()))

	err = Baseline().Validate(Baseline())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}
