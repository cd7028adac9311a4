package extract

import "strings"

const DefaultIcon = "activity"

type iconRule struct {
	keyword string
	icon    string
}

// Order matters: the first keyword contained in the text wins.
var iconRules = []iconRule{
	{"random", "shuffle"},
	{"recruit", "users"},
	{"patient", "users"},
	{"participant", "users"},
	{"enrol", "user-plus"},
	{"survey", "clipboard-list"},
	{"questionnaire", "clipboard-list"},
	{"interview", "message-circle"},
	{"blood", "droplet"},
	{"sample", "test-tube"},
	{"laborator", "flask-conical"},
	{"imaging", "scan"},
	{"scan", "scan"},
	{"dose", "pill"},
	{"drug", "pill"},
	{"medication", "pill"},
	{"treatment", "pill"},
	{"follow", "calendar"},
	{"week", "calendar"},
	{"month", "calendar"},
	{"measure", "ruler"},
	{"statistic", "bar-chart"},
	{"analy", "bar-chart"},
	{"compar", "git-compare"},
	{"control", "shield"},
	{"gene", "dna"},
	{"genom", "dna"},
	{"heart", "heart-pulse"},
	{"cardi", "heart-pulse"},
	{"brain", "brain"},
	{"neuro", "brain"},
	{"improv", "trending-up"},
	{"increas", "trending-up"},
	{"reduc", "trending-down"},
	{"decreas", "trending-down"},
}

// IconFor picks an icon name for a method step or finding.
func IconFor(text string) string {
	lower := strings.ToLower(text)
	for _, r := range iconRules {
		if strings.Contains(lower, r.keyword) {
			return r.icon
		}
	}
	return DefaultIcon
}

// AllowedIcons lists every icon IconFor can return, in table order.
func AllowedIcons() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range iconRules {
		if !seen[r.icon] {
			seen[r.icon] = true
			out = append(out, r.icon)
		}
	}
	if !seen[DefaultIcon] {
		out = append(out, DefaultIcon)
	}
	return out
}
