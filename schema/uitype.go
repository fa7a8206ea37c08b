package schema

import "strings"

type UIType string

const (
	UIText        UIType = "text"
	UITextarea    UIType = "textarea"
	UINumber      UIType = "number"
	UICheckbox    UIType = "checkbox"
	UIDate        UIType = "date"
	UIEmail       UIType = "email"
	UIPassword    UIType = "password"
	UISelect      UIType = "select"
	UIMultiselect UIType = "multiselect"
	UITags        UIType = "tags"
	UIFile        UIType = "file"
)

// compatibleUITypes is the closed table of UI types each semantic type may be
// rendered as. The first entry is the plain default.
var compatibleUITypes = map[SemanticType][]UIType{
	Text:           {UIText, UITextarea, UIEmail, UIPassword, UISelect, UIFile},
	Number:         {UINumber, UISelect},
	Boolean:        {UICheckbox},
	Date:           {UIDate},
	Reference:      {UISelect},
	ReferenceArray: {UIMultiselect, UITags},
	TextArray:      {UITags, UIMultiselect, UIFile},
}

func Compatible(t SemanticType, ui UIType) bool {
	for _, c := range compatibleUITypes[t] {
		if c == ui {
			return true
		}
	}
	return false
}

var imageryWords = []string{"image", "photo", "picture", "avatar", "logo", "gallery", "thumbnail"}

func suggestsImagery(name string) bool {
	name = strings.ToLower(name)
	for _, w := range imageryWords {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

func namedAs(name, word string) bool {
	name = strings.ToLower(name)
	return name == word || strings.HasSuffix(name, "_"+word)
}

// defaultUIType infers a UI type from the semantic type and naming conventions alone.
func defaultUIType(f Field) UIType {
	switch f.Type {
	case Text:
		lower := strings.ToLower(f.Name)
		switch {
		case len(f.Enum) > 0:
			return UISelect
		case namedAs(f.Name, "email"):
			return UIEmail
		case namedAs(f.Name, "password"):
			return UIPassword
		case strings.Contains(lower, "description"), strings.Contains(lower, "content"):
			return UITextarea
		}
		return UIText
	case TextArray:
		switch {
		case len(f.Enum) > 0:
			return UIMultiselect
		case suggestsImagery(f.Name):
			return UIFile
		}
		return UITags
	case Reference:
		return UISelect
	case ReferenceArray:
		return UIMultiselect
	case Number:
		return UINumber
	case Boolean:
		return UICheckbox
	case Date:
		return UIDate
	}
	return UIText
}

// UITypeOf returns the UI type a field renders as without overrides.
func UITypeOf(f Field) UIType {
	if f.UIHint != "" {
		return f.UIHint
	}
	return defaultUIType(f)
}
