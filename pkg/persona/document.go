package persona

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldKind tags the shape a schema field is allowed to hold.
type FieldKind string

const (
	FieldScalar     FieldKind = "scalar"
	FieldScalarList FieldKind = "scalar_list"
	FieldObjectList FieldKind = "object_list"
)

// FieldSpec describes one top-level profile field. The description doubles as
// extraction guidance for the delta collaborator.
type FieldSpec struct {
	Name        string
	Kind        FieldKind
	Description string
}

// Schema is the fixed field registry shared by the document mutator and the
// delta-extraction collaborator. Fields keep declaration order for stable
// prompts and stable flatten output.
type Schema struct {
	fields map[string]FieldSpec
	order  []string
}

func NewSchema(specs ...FieldSpec) *Schema {
	s := &Schema{fields: make(map[string]FieldSpec, len(specs))}
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		if _, ok := s.fields[name]; ok {
			continue
		}
		spec.Name = name
		s.fields[name] = spec
		s.order = append(s.order, name)
	}
	return s
}

func (s *Schema) Field(name string) (FieldSpec, bool) {
	spec, ok := s.fields[name]
	return spec, ok
}

func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// FieldReference renders "name (kind): description" lines for every field,
// used as structured guidance to the delta extractor.
func (s *Schema) FieldReference() string {
	var b strings.Builder
	for _, name := range s.order {
		spec := s.fields[name]
		label := "String"
		switch spec.Kind {
		case FieldScalarList:
			label = "list[String]"
		case FieldObjectList:
			label = "list[Object]"
		}
		fmt.Fprintf(&b, "%s (%s): %s\n", name, label, spec.Description)
	}
	return strings.TrimSpace(b.String())
}

// DefaultSchema is the persona profile field registry: identification,
// demographics, education, work, communication, preferences and constraints.
func DefaultSchema() *Schema {
	return NewSchema(
		FieldSpec{Name: "name", Kind: FieldScalar, Description: "Preferred name or nickname, written naturally (e.g., 'Lily', 'call me Jay')."},
		FieldSpec{Name: "gender", Kind: FieldScalar, Description: "Gender identity as expressed by the user, word or phrase."},
		FieldSpec{Name: "age", Kind: FieldScalar, Description: "Approximate age in years if explicitly stated (e.g., 27)."},
		FieldSpec{Name: "age_range", Kind: FieldScalar, Description: "Age bracket or natural expression (e.g., '18-24', 'in my thirties')."},
		FieldSpec{Name: "locale", Kind: FieldScalar, Description: "Preferred language/locale code or description (e.g., 'zh-CN', 'English (US)')."},
		FieldSpec{Name: "languages", Kind: FieldObjectList, Description: "Languages as objects with 'language', optional 'proficiency' and 'preferred' keys."},
		FieldSpec{Name: "home_location", Kind: FieldScalar, Description: "Primary/home location as natural text, may include timezone."},
		FieldSpec{Name: "current_location", Kind: FieldScalar, Description: "Current or temporary location, can include city/country/timezone."},
		FieldSpec{Name: "education_level", Kind: FieldScalar, Description: "Highest education level in natural words."},
		FieldSpec{Name: "education", Kind: FieldScalar, Description: "Detailed education info, free-form."},
		FieldSpec{Name: "employment", Kind: FieldScalar, Description: "Occupation details as natural text."},
		FieldSpec{Name: "personality", Kind: FieldScalar, Description: "Personality description, free-form traits or phrases."},
		FieldSpec{Name: "communication", Kind: FieldScalar, Description: "Preferred communication style described naturally."},
		FieldSpec{Name: "interests", Kind: FieldScalarList, Description: "Likes: topics, genres, activities, categories."},
		FieldSpec{Name: "dislikes", Kind: FieldScalarList, Description: "Avoid list: topics, genres, items."},
		FieldSpec{Name: "brands", Kind: FieldScalarList, Description: "Favorite or avoided brands (prefix with '-' to mark avoidance)."},
		FieldSpec{Name: "content_sensitivities", Kind: FieldScalarList, Description: "Topics to handle carefully (e.g., horror)."},
		FieldSpec{Name: "health_diet", Kind: FieldScalar, Description: "Dietary patterns, allergies, accessibility needs, free-form."},
		FieldSpec{Name: "family", Kind: FieldScalar, Description: "Family or household situation, described naturally."},
		FieldSpec{Name: "constraints", Kind: FieldScalarList, Description: "Other constraints as natural phrases (e.g., 'cannot work weekends')."},
		FieldSpec{Name: "goals", Kind: FieldScalar, Description: "Short- and long-term goals, free-form."},
		FieldSpec{Name: "time_prefs", Kind: FieldScalar, Description: "Availability and scheduling preferences."},
		FieldSpec{Name: "privacy", Kind: FieldScalar, Description: "Privacy and personalization preferences, natural text."},
		FieldSpec{Name: "notes", Kind: FieldScalar, Description: "Additional context that does not fit other fields."},
	)
}

// Document is the in-memory flat persona profile for one user: top-level
// field name to scalar, list-of-scalar, or list-of-object value.
type Document map[string]interface{}

func NewDocument() Document {
	return Document{}
}

// Clone returns a deep copy; mutations on the copy never alias the original.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return val
	}
}

// JSON renders the document as compact JSON for prompts and audit records.
func (d Document) JSON() string {
	raw, err := json.Marshal(map[string]interface{}(d))
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// DocumentFromJSON parses a document; empty input yields an empty document.
func DocumentFromJSON(raw string) (Document, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return NewDocument(), nil
	}
	var d Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("parse profile document: %w", err)
	}
	return d, nil
}

// StringList returns the field's value as strings, tolerating lone scalars.
func (d Document) StringList(field string) []string {
	switch val := d[field].(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}

// FieldNames returns the document's populated field names, sorted.
func (d Document) FieldNames() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
