package abstract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResponse = `Here is the abstract you asked for:
{
  "header": {"title": "Drug X in adults", "studyType": "Randomized Controlled Trial"},
  "methods": [{"title": "Recruitment", "description": "120 patients {aged 18-65}", "icon": "users"}],
  "visualizations": [{"type": "bar", "title": "Response", "unit": "%", "data": [{"label": "Drug", "value": 45}, {"label": "Placebo", "value": "12.5"}]}],
  "keyFindings": [{"title": "Improvement", "description": "45% improvement", "icon": "trending-up"}],
  "conclusion": {"summary": "Drug X works.", "implications": ["Larger trials"]}
}
Let me know if you need anything else.`

func TestParseFindsEmbeddedObject(t *testing.T) {
	v, err := Parse(validResponse)
	require.NoError(t, err)
	assert.Equal(t, "Drug X in adults", v.Header.Title)
	assert.Equal(t, "Randomized Controlled Trial", v.Header.StudyType)
	require.Len(t, v.Methods, 1)
	assert.Equal(t, "120 patients {aged 18-65}", v.Methods[0].Description)
	require.Len(t, v.Visualizations, 1)
	assert.Equal(t, ChartBar, v.Visualizations[0].Type)
	assert.Equal(t, []DataPoint{{Label: "Drug", Value: 45}, {Label: "Placebo", Value: 12.5}}, v.Visualizations[0].Data)
	assert.Equal(t, "Drug X works.", v.Conclusion.Summary)
}

func TestParseCodeFenced(t *testing.T) {
	in := "```json\n{\"header\":{\"title\":\"T\"},\"methods\":[],\"conclusion\":{\"summary\":\"S\"}}\n```"
	v, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, "T", v.Header.Title)
	assert.Equal(t, "S", v.Conclusion.Summary)
}

func TestParseNoBraces(t *testing.T) {
	_, err := Parse("I could not produce an abstract for this paper.")
	require.ErrorIs(t, err, ErrNoJSONObject)
	assert.Equal(t, "no JSON object found", err.Error())
}

func TestParseMissingRequiredFields(t *testing.T) {
	_, err := Parse(`{"header": {"title": "T"}, "keyFindings": []}`)
	var fe *FormatError
	require.True(t, errors.As(err, &fe), "expected FormatError, got %v", err)
	assert.Equal(t, []string{"methods", "conclusion"}, fe.Missing)
}

func TestParseRejectsWrongShapes(t *testing.T) {
	for name, in := range map[string]string{
		"methods object": `{"header": {}, "methods": {"a": 1}, "conclusion": {}}`,
		"header string":  `{"header": "T", "methods": [], "conclusion": {}}`,
		"charts string":  `{"header": {}, "methods": [], "visualizations": "none", "conclusion": {}}`,
		"bad value":      `{"header": {}, "methods": [], "visualizations": [{"type":"bar","data":[{"label":"a","value":"lots"}]}], "conclusion": {}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(in)
			var fe *FormatError
			assert.True(t, errors.As(err, &fe), "expected FormatError, got %v", err)
		})
	}
}

func TestParseAcceptsStringConclusion(t *testing.T) {
	v, err := Parse(`{"header": {"title": "T"}, "methods": [], "conclusion": "It works."}`)
	require.NoError(t, err)
	assert.Equal(t, "It works.", v.Conclusion.Summary)
}

func TestFindJSONObjectSkipsBracesInStrings(t *testing.T) {
	got, err := FindJSONObject(`prefix {"a": "}{", "b": {"c": 1}} trailing {"d": 2}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": "}{", "b": {"c": 1}}`, got)
}

func TestFindJSONObjectUnbalancedFallsBack(t *testing.T) {
	got, err := FindJSONObject(`x {"a": {"b": 1} y`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}`, got)

	_, err = FindJSONObject("only an opening { brace")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestSanitize(t *testing.T) {
	v := VisualAbstract{
		Methods:     []Step{{Title: "a", Icon: "Users"}, {Title: "b", Icon: "unicorn"}},
		KeyFindings: []Finding{{Title: "c", Icon: ""}},
		Visualizations: []Chart{
			{Type: "scatter", Data: []DataPoint{{Label: "x", Value: 1}}},
			{Type: "pie", Data: []DataPoint{{Label: " ", Value: 1}}},
		},
	}
	got := Sanitize(v, []string{"users", "activity"}, "activity")
	assert.Equal(t, "users", got.Methods[0].Icon)
	assert.Equal(t, "activity", got.Methods[1].Icon)
	assert.Equal(t, "activity", got.KeyFindings[0].Icon)
	require.Len(t, got.Visualizations, 1)
	assert.Equal(t, ChartBar, got.Visualizations[0].Type)
	// Input is not modified.
	assert.Equal(t, "Users", v.Methods[0].Icon)
}
