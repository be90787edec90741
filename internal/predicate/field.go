// Package predicate compiles parsing rule scripts into boolean functions over the fixed
// set of raw transaction fields.
package predicate

import "strings"

// Field is one of the raw transaction fields a rule may inspect.
type Field int

const (
	FieldProductGroup Field = iota
	FieldNomination
	FieldInformation
	FieldDocKey
	fieldCount
)

// Values holds the field values of one record, indexed by Field.
type Values [fieldCount]string

var fieldNames = map[string]Field{
	"product_group":  FieldProductGroup,
	"docprodgroup":   FieldProductGroup,
	"nomination":     FieldNomination,
	"docnomination":  FieldNomination,
	"information":    FieldInformation,
	"docinformation": FieldInformation,
	"doc_key":        FieldDocKey,
	"dockey":         FieldDocKey,
}

// LookupField resolves a field name or one of its column aliases, case-insensitively.
func LookupField(name string) (Field, bool) {
	f, ok := fieldNames[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

func (f Field) String() string {
	switch f {
	case FieldProductGroup:
		return "product_group"
	case FieldNomination:
		return "nomination"
	case FieldInformation:
		return "information"
	case FieldDocKey:
		return "doc_key"
	default:
		return "unknown"
	}
}
