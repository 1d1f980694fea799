package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PreferenceRecord holds the schema definition for the PreferenceRecord entity
// (semantic memory: user preferences).
type PreferenceRecord struct {
	ent.Schema
}

// Fields of the PreferenceRecord.
func (PreferenceRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("key").
			Immutable(),
		field.Text("value"),
		field.Enum("source").
			Values("explicit", "inferred"),
		field.Float("confidence").
			Default(0.5).
			Comment("in [0,1]"),
		field.Int("times_used").
			Default(0),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the PreferenceRecord.
func (PreferenceRecord) Edges() []ent.Edge {
	return nil
}

// Indexes of the PreferenceRecord.
func (PreferenceRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "key").
			Unique(),
		index.Fields("user_id", "confidence"),
	}
}

func (PreferenceRecord) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
