package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vedanschi/pebble-outreach/internal/model"
)

// placeholderPattern matches a well-formed merge token: {{ then a single
// identifier then }}, no nesting.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Rendered is the concrete subject/body pair the personalization engine
// produces, plus the fields it could not resolve. Outreach never blocks on
// a missing field; callers use MissingFields to warn the user.
type Rendered struct {
	Subject       string
	Body          string
	MissingFields []string
}

// Render substitutes contact attributes into the subject and body
// templates. Built-in fields resolve first, then the contact's custom
// attributes; unresolved fields become empty strings. Pure and
// deterministic: identical inputs always render identically.
func Render(subjectTmpl, bodyTmpl string, contact *model.Contact) Rendered {
	builtins := map[string]string{
		"firstName":   contact.FirstName,
		"lastName":    contact.LastName,
		"fullName":    contact.FullName(),
		"email":       contact.Email,
		"companyName": contact.CompanyName,
	}

	missing := []string{}
	seen := map[string]bool{}

	resolve := func(tmpl string) string {
		return placeholderPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
			field := token[2 : len(token)-2]
			if v, ok := builtins[field]; ok {
				return v
			}
			if v, ok := contact.CustomFields[field]; ok {
				return v
			}
			if !seen[field] {
				seen[field] = true
				missing = append(missing, field)
			}
			return ""
		})
	}

	subject := resolve(subjectTmpl)
	body := resolve(bodyTmpl)
	return Rendered{Subject: subject, Body: body, MissingFields: missing}
}

// RenderTemplate renders an email template for a contact.
func RenderTemplate(tmpl *model.EmailTemplate, contact *model.Contact) Rendered {
	return Render(tmpl.SubjectTemplate, tmpl.BodyTemplate, contact)
}

// ValidatePlaceholders rejects text in which any {{ does not open a
// well-formed {{identifier}} token.
func ValidatePlaceholders(text string) error {
	for i := 0; i+1 < len(text); i++ {
		if text[i] != '{' || text[i+1] != '{' {
			continue
		}
		loc := placeholderPattern.FindStringIndex(text[i:])
		if loc == nil || loc[0] != 0 {
			snippet := text[i:]
			if len(snippet) > 20 {
				snippet = snippet[:20]
			}
			return fmt.Errorf("malformed placeholder near %q", snippet)
		}
		i += loc[1] - 1
	}
	return nil
}

// ExtractPlaceholders lists the distinct placeholder fields referenced by
// the given texts, in first-occurrence order.
func ExtractPlaceholders(texts ...string) []string {
	fields := []string{}
	seen := map[string]bool{}
	for _, t := range texts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(t, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				fields = append(fields, m[1])
			}
		}
	}
	return fields
}

// TrackingPixelHTML is the 1x1 image tag appended to outgoing bodies.
func TrackingPixelHTML(baseURL, pixelID string) string {
	return fmt.Sprintf(`<img src="%s/track/open/%s.png" width="1" height="1" alt="" style="display:none">`,
		strings.TrimRight(baseURL, "/"), pixelID)
}
