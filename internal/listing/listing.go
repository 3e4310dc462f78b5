// Package listing turns the model's free-text answer into a canonical listing block.
package listing

import "strings"

const (
	// PlaceholderTitle replaces a missing title.
	PlaceholderTitle = "Clothing item"
	// EmptyResultMessage is returned when the model produced no text at all.
	EmptyResultMessage = "Error: no listing could be generated from the uploaded images."
)

const (
	labelTitle     = "title"
	labelBrand     = "brand"
	labelSize      = "size"
	labelCondition = "condition"
	labelFlaws     = "flaws"
)

// Conditions are the grades a listing may carry, in canonical casing.
var Conditions = []string{"New", "Excellent", "Very Good", "Good", "Fair"}

// Listing holds the labelled fields plus whatever free text surrounded them.
type Listing struct {
	Title       string `json:"title"`
	Brand       string `json:"brand"`
	Size        string `json:"size"`
	Condition   string `json:"condition"`
	Flaws       string `json:"flaws,omitempty"`
	HasFlaws    bool   `json:"-"`
	Description string `json:"description"`
}

// Parse extracts labelled fields from raw text. A label is recognised at the
// start of a line, case-insensitively, with markdown bullets or bold around it.
// The first occurrence of each label wins; repeated label lines and every
// other line are description.
func Parse(raw string) Listing {
	var (
		l    Listing
		seen = map[string]bool{}
		desc []string
	)

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		label, value, ok := splitLabel(line)
		if !ok || seen[label] {
			desc = append(desc, strings.TrimRight(line, " \t"))
			continue
		}
		seen[label] = true

		switch label {
		case labelTitle:
			l.Title = value
		case labelBrand:
			l.Brand = value
		case labelSize:
			l.Size = value
		case labelCondition:
			l.Condition = normalizeCondition(value)
		case labelFlaws:
			l.Flaws = value
			l.HasFlaws = true
		}
	}

	l.Description = strings.Join(trimBlankLines(desc), "\n")
	return l
}

// Repair returns the canonical block for raw and whether a fallback was needed:
// a missing title gets PlaceholderTitle, a missing condition stays blank.
// It never fails; empty input yields EmptyResultMessage.
func Repair(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return EmptyResultMessage, true
	}

	l := Parse(raw)
	fallback := false
	if l.Title == "" {
		l.Title = PlaceholderTitle
		fallback = true
	}
	if l.Condition == "" {
		fallback = true
	}
	return l.String(), fallback
}

// String renders the canonical block.
func (l Listing) String() string {
	var b strings.Builder
	b.WriteString(field("Title", l.Title))
	b.WriteString("\n\n")
	b.WriteString(field("Brand", l.Brand))
	b.WriteString("\n")
	b.WriteString(field("Size", l.Size))
	b.WriteString("\n")
	b.WriteString(field("Condition", l.Condition))
	if l.HasFlaws {
		b.WriteString("\n")
		b.WriteString(field("Flaws", l.Flaws))
	}
	if l.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(l.Description)
	}
	return b.String()
}

func field(label, value string) string {
	if value == "" {
		return label + ":"
	}
	return label + ": " + value
}

func splitLabel(line string) (label, value string, ok bool) {
	s := strings.TrimLeft(strings.TrimSpace(line), "*#->_ \t")
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return "", "", false
	}

	label = strings.ToLower(strings.Trim(s[:idx], "*_ \t"))
	switch label {
	case labelTitle, labelBrand, labelSize, labelCondition, labelFlaws:
	default:
		return "", "", false
	}

	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(s[idx+1:]), "*_"))
	return label, value, true
}

func normalizeCondition(value string) string {
	for _, c := range Conditions {
		if strings.EqualFold(value, c) {
			return c
		}
	}
	return value
}

func trimBlankLines(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}
