package domain

import "strings"

// Field names a multilingual property.
type Field string

// The only fields that carry per-language values.
const (
	FieldStationName Field = "station_name"
	FieldStateName   Field = "state_name"
	FieldCountryName Field = "country_name"
	FieldPeriodicity Field = "periodicity"
)

// MultilingualFields lists every Field, in graph-property order.
var MultilingualFields = []Field{FieldStationName, FieldStateName, FieldCountryName, FieldPeriodicity}

// PropertyKey addresses one language variant of a field.
type PropertyKey struct {
	Field    Field
	Language string
}

// String renders the key as the graph property name, e.g. "station_name_en".
func (k PropertyKey) String() string {
	return string(k.Field) + "_" + k.Language
}

// ParsePropertyKey is the inverse of PropertyKey.String for known fields.
func ParsePropertyKey(name string) (PropertyKey, bool) {
	for _, f := range MultilingualFields {
		prefix := string(f) + "_"
		if lang, ok := strings.CutPrefix(name, prefix); ok && lang != "" {
			return PropertyKey{Field: f, Language: lang}, true
		}
	}
	return PropertyKey{}, false
}

// Properties is a lazily allocated (field, language) -> value bag.
type Properties struct {
	values map[PropertyKey]string
}

// Set stores a value for field in language.
func (p *Properties) Set(field Field, language, value string) {
	if p.values == nil {
		p.values = make(map[PropertyKey]string)
	}
	p.values[PropertyKey{Field: field, Language: language}] = value
}

// Get returns the value for field in language, or "" when absent.
func (p *Properties) Get(field Field, language string) string {
	return p.values[PropertyKey{Field: field, Language: language}]
}

// Lookup is Get with a presence flag.
func (p *Properties) Lookup(field Field, language string) (string, bool) {
	v, ok := p.values[PropertyKey{Field: field, Language: language}]
	return v, ok
}

// All returns a copy of every stored value. Nil when nothing was set.
func (p *Properties) All() map[PropertyKey]string {
	if p.values == nil {
		return nil
	}
	out := make(map[PropertyKey]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Len reports how many values are stored.
func (p *Properties) Len() int { return len(p.values) }
