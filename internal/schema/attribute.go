package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"boorubot/internal/services"
)

// TagType mirrors the category codes used by the booru's tag API.
type TagType int

const (
	TagGeneral     TagType = 0
	TagArtist      TagType = 1
	TagCopyright   TagType = 3
	TagTerminology TagType = 4
	TagMeta        TagType = 5
)

// AllTagTypes lists every category in declaration order.
var AllTagTypes = []TagType{TagGeneral, TagArtist, TagCopyright, TagTerminology, TagMeta}

func (t TagType) String() string {
	switch t {
	case TagGeneral:
		return "general"
	case TagArtist:
		return "artist"
	case TagCopyright:
		return "copyright"
	case TagTerminology:
		return "terminology"
	case TagMeta:
		return "meta"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseTagType maps a category name back to its code.
func ParseTagType(s string) (TagType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "general":
		return TagGeneral, nil
	case "artist":
		return TagArtist, nil
	case "copyright":
		return TagCopyright, nil
	case "terminology":
		return TagTerminology, nil
	case "meta":
		return TagMeta, nil
	}
	return TagGeneral, services.Wrap(services.ErrValidation, "schema", "parse", fmt.Sprintf("unknown tag type %q", s), nil)
}

// ValueType identifies how an attribute value serializes.
type ValueType int

const (
	Integer  ValueType = 0
	Float    ValueType = 1
	String   ValueType = 3
	DateTime ValueType = 4
	Date     ValueType = 5
	Time     ValueType = 6
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Attribute describes one metadata field a tag may carry.
type Attribute struct {
	Code         string
	Name         string
	Type         ValueType
	Format       string // optional link template with a single %v verb
	Pattern      *regexp.Regexp
	RelatedTypes []TagType
	Order        int
}

// AppliesTo reports whether this attribute is valid for a tag category.
func (a *Attribute) AppliesTo(t TagType) bool {
	for _, rt := range a.RelatedTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// Serialize renders a typed value to its storage string. Temporal values
// render in ISO-8601 with a Z suffix for UTC.
func (a *Attribute) Serialize(value any) (string, error) {
	switch a.Type {
	case Date, Time, DateTime:
		ts, ok := value.(time.Time)
		if !ok {
			if s, ok := value.(string); ok {
				if _, err := a.Deserialize(s); err != nil {
					return "", err
				}
				return s, nil
			}
			return "", services.Wrap(services.ErrValidation, "schema", "serialize",
				fmt.Sprintf("%s: expected time value, got %T", a.Code, value), nil)
		}
		switch a.Type {
		case Date:
			return ts.Format(dateLayout), nil
		case Time:
			return ts.Format(timeLayout), nil
		default:
			return ts.Format(time.RFC3339), nil
		}
	default:
		return fmt.Sprintf("%v", value), nil
	}
}

// Deserialize parses a storage string back into its typed value. Invalid
// input is a validation error, never a panic.
func (a *Attribute) Deserialize(raw string) (any, error) {
	switch a.Type {
	case Integer:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "schema", "deserialize",
				fmt.Sprintf("%s: %q is not an integer", a.Code, raw), nil)
		}
		return n, nil
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "schema", "deserialize",
				fmt.Sprintf("%s: %q is not a number", a.Code, raw), nil)
		}
		return f, nil
	case DateTime:
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "schema", "deserialize",
				fmt.Sprintf("%s: %q is not an ISO-8601 datetime", a.Code, raw), nil)
		}
		return ts, nil
	case Date:
		ts, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "schema", "deserialize",
				fmt.Sprintf("%s: %q is not a date", a.Code, raw), nil)
		}
		return ts, nil
	case Time:
		ts, err := time.Parse(timeLayout, raw)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "schema", "deserialize",
				fmt.Sprintf("%s: %q is not a time of day", a.Code, raw), nil)
		}
		return ts, nil
	default:
		return raw, nil
	}
}

// Validate checks a serialized value against the attribute's pattern and
// type without producing the typed value.
func (a *Attribute) Validate(raw string) error {
	if a.Pattern != nil && !a.Pattern.MatchString(raw) {
		return services.Wrap(services.ErrValidation, "schema", "validate",
			fmt.Sprintf("%s: %q does not match expected pattern", a.Code, raw), nil)
	}
	_, err := a.Deserialize(raw)
	return err
}

// Link renders the external URL for a serialized value when the
// attribute carries a template; otherwise it returns the value itself.
func (a *Attribute) Link(raw string) string {
	if a.Format == "" {
		return raw
	}
	return fmt.Sprintf(a.Format, raw)
}
