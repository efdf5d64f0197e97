package model

// FieldType describes how a field's value should be treated during conflict
// resolution. Identity fields (a person's name) are scored more cautiously
// than descriptive text.
type FieldType string

const (
	FieldTypeIdentity    FieldType = "identity"
	FieldTypeNumeric     FieldType = "numeric"
	FieldTypeText        FieldType = "text"
	FieldTypeCategorical FieldType = "categorical"
)

// fieldTypes maps well-known profile field keys to their resolution type.
// Unknown keys default to text.
var fieldTypes = map[string]FieldType{
	"ceo":            FieldTypeIdentity,
	"founders":       FieldTypeIdentity,
	"company_name":   FieldTypeText,
	"legal_name":     FieldTypeText,
	"description":    FieldTypeText,
	"headquarters":   FieldTypeText,
	"website":        FieldTypeText,
	"phone":          FieldTypeText,
	"employee_count": FieldTypeNumeric,
	"founded_year":   FieldTypeNumeric,
	"revenue":        FieldTypeNumeric,
	"industry":       FieldTypeCategorical,
	"ownership_type": FieldTypeCategorical,
}

// FieldTypeFor returns the resolution type for a field key.
func FieldTypeFor(key string) FieldType {
	if t, ok := fieldTypes[key]; ok {
		return t
	}
	return FieldTypeText
}

// TierWeight converts an ordinal source tier (1 = most reliable) into a
// reliability weight. Tiers beyond 5 floor at 0.2.
func TierWeight(tier int) float64 {
	switch {
	case tier <= 1:
		return 1.0
	case tier == 2:
		return 0.8
	case tier == 3:
		return 0.6
	case tier == 4:
		return 0.4
	default:
		return 0.2
	}
}
