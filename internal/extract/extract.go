// Package extract pulls a rough structure out of a paper summary with
// regular expressions. The result seeds the refinement prompt and stands in
// for the model output when no model is available.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTitle     = "Research Study"
	DefaultStudyType = "Clinical Study"
	DefaultLabel     = "Metric"

	minFragmentRunes = 10
	labelWindowRunes = 50
)

type Metric struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type ProcessedData struct {
	Title     string   `json:"title"`
	StudyType string   `json:"studyType"`
	Methods   []string `json:"methods"`
	Findings  []string `json:"findings"`
	Metrics   []Metric `json:"metrics"`
}

const sectionNames = `title|study\s+type|design|background|introduction|objectives?|aims?|methods?|methodology|protocol|results|findings|discussion|conclusions?|limitations|implications`

var (
	titleLabel     = regexp.MustCompile(`(?i)^(?:title|name)\s*:\s*`)
	studyTypeLabel = regexp.MustCompile(`(?im)\b(?:study\s+type|design)\b\**\s*:\**[\t ]*([^\n]*)`)

	// A section starts at "Label:" anywhere or at a line holding only the label.
	labelInline  = regexp.MustCompile(`(?i)\b(` + sectionNames + `)\**[\t ]*:\**`)
	labelHeading = regexp.MustCompile(`(?im)^[\t #*]*(` + sectionNames + `)[\t *]*$`)

	sentenceBreak = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)
	listMarker    = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

	whitespace = regexp.MustCompile(`\s+`)
)

var (
	methodSections  = []string{"methods", "method", "methodology", "protocol"}
	findingSections = []string{"results", "findings"}
)

var metricPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)\s*(mg|g|mL|ml|L)\b`),
	regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)\s*(%)`),
	regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)\s*(IU/L|U/L|[μµ]mol/L|mg/dL)`),
}

// Extract never fails; fields it cannot find fall back to defaults or stay empty.
func Extract(text string) ProcessedData {
	labels := findLabels(text)
	return ProcessedData{
		Title:     extractTitle(text),
		StudyType: extractStudyType(text),
		Methods:   fragments(section(text, labels, methodSections)),
		Findings:  fragments(section(text, labels, findingSections)),
		Metrics:   extractMetrics(text),
	}
}

func extractTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = cleanMarkup(line)
		line = strings.TrimSpace(titleLabel.ReplaceAllString(line, ""))
		line = cleanMarkup(line)
		if line != "" {
			return line
		}
	}
	return DefaultTitle
}

func extractStudyType(text string) string {
	m := studyTypeLabel.FindStringSubmatch(text)
	if m == nil {
		return DefaultStudyType
	}
	if v := cleanMarkup(m[1]); v != "" {
		return v
	}
	return DefaultStudyType
}

func cleanMarkup(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "# ")
	return strings.TrimSpace(strings.Trim(s, "*_ \t"))
}

type label struct {
	name       string
	start, end int
}

func findLabels(text string) []label {
	var out []label
	for _, re := range []*regexp.Regexp{labelInline, labelHeading} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			name := strings.ToLower(whitespace.ReplaceAllString(text[m[2]:m[3]], " "))
			out = append(out, label{name: name, start: m[0], end: m[1]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// section returns the body of the first label in names, up to the next label.
func section(text string, labels []label, names []string) string {
	for i, l := range labels {
		if !contains(names, l.name) {
			continue
		}
		end := len(text)
		for _, next := range labels[i+1:] {
			if next.start >= l.end {
				end = next.start
				break
			}
		}
		return text[l.end:end]
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func fragments(body string) []string {
	var out []string
	for _, part := range sentenceBreak.Split(body, -1) {
		part = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(part), ""))
		part = strings.Trim(part, "*_ \t")
		if utf8.RuneCountInString(part) > minFragmentRunes {
			out = append(out, part)
		}
	}
	return out
}

func extractMetrics(text string) []Metric {
	var out []Metric
	for _, re := range metricPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			value, err := strconv.ParseFloat(strings.ReplaceAll(text[m[2]:m[3]], ",", ""), 64)
			if err != nil {
				continue
			}
			out = append(out, Metric{
				Label: metricLabel(text[:m[0]]),
				Value: value,
				Unit:  text[m[4]:m[5]],
			})
		}
	}
	return out
}

// metricLabel takes up to labelWindowRunes before a match and keeps what
// follows the last clause delimiter.
func metricLabel(before string) string {
	runes := []rune(before)
	truncated := false
	if len(runes) > labelWindowRunes {
		runes = runes[len(runes)-labelWindowRunes:]
		truncated = true
	}
	cut := -1
	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		if strings.ContainsRune(";:!?\n()[]", r) || (r == '.' && (i+1 == len(runes) || unicode.IsSpace(runes[i+1]))) {
			cut = i
			break
		}
	}
	s := string(runes[cut+1:])
	if cut < 0 && truncated {
		// Drop the partial word the window started in.
		if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
			s = s[i:]
		}
	}
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	s = strings.TrimRight(s, ",-–=* ")
	s = strings.TrimLeft(s, "-*• ")
	if s == "" {
		return DefaultLabel
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
