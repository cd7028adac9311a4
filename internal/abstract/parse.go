package abstract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrNoJSONObject = errors.New("no JSON object found")

// RequiredFields must be present at the top level of a model response.
var RequiredFields = []string{"header", "methods", "conclusion"}

// FormatError reports a JSON object that does not have the visual abstract shape.
type FormatError struct {
	Missing []string
	Reason  string
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("invalid visual abstract format: missing %s", strings.Join(e.Missing, ", "))
	}
	return "invalid visual abstract format: " + e.Reason
}

// Parse locates the first JSON object in text and decodes it as a
// VisualAbstract.
func Parse(text string) (VisualAbstract, error) {
	raw, err := FindJSONObject(text)
	if err != nil {
		return VisualAbstract{}, err
	}
	if !gjson.Valid(raw) {
		return VisualAbstract{}, &FormatError{Reason: "response is not valid JSON"}
	}
	doc := gjson.Parse(raw)

	var missing []string
	for _, f := range RequiredFields {
		if !doc.Get(f).Exists() {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return VisualAbstract{}, &FormatError{Missing: missing}
	}
	if !doc.Get("header").IsObject() {
		return VisualAbstract{}, &FormatError{Reason: "header must be an object"}
	}
	if !doc.Get("methods").IsArray() {
		return VisualAbstract{}, &FormatError{Reason: "methods must be an array"}
	}
	for _, f := range []string{"visualizations", "keyFindings"} {
		if v := doc.Get(f); v.Exists() && v.Type != gjson.Null && !v.IsArray() {
			return VisualAbstract{}, &FormatError{Reason: f + " must be an array"}
		}
	}
	// A bare string conclusion is common enough to accept.
	if c := doc.Get("conclusion"); c.Type == gjson.String {
		if raw, err = sjson.Set(raw, "conclusion", Conclusion{Summary: c.String()}); err != nil {
			return VisualAbstract{}, &FormatError{Reason: err.Error()}
		}
	}

	var v VisualAbstract
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return VisualAbstract{}, &FormatError{Reason: err.Error()}
	}
	return v, nil
}

// FindJSONObject returns the first balanced {...} span in text, skipping
// braces inside JSON strings. Markdown code fences are ignored.
func FindJSONObject(text string) (string, error) {
	s := stripCodeFences(text)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	// Unbalanced: fall back to the widest brace span.
	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return "", ErrNoJSONObject
	}
	return s[start : end+1], nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}
