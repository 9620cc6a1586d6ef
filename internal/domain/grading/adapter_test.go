package grading_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
)

const fallbackReport = `## Essay Assessment

| Criterion | Score |
|---|---|
| Organization & Flow | 7/10 |
| Topic Focus | 8/10 |
| Evidence & Support | 5/10 |
| Language & Mechanics | 18/20 |
| **TOTAL** | **78/100** |
`

func TestAdapter_Structured(t *testing.T) {
	raw := grading.RawEngineOutput(`{
		"overall_score": 82,
		"feedback_summary": "Solid essay.",
		"structure_analysis": {"score": 80, "comments": "Clear paragraphs"},
		"content_analysis": {"score": 85, "comments": "Good arguments"},
		"style_analysis": {"score": 75, "comments": "Some repetition"},
		"grammar_notes": [
			{"type": "Spelling", "original": "recieve", "suggestion": "receive", "explanation": "i before e"},
			{"original": "their is", "suggestion": "there is", "explanation": "wrong word"}
		]
	}`)

	out, shape, err := grading.NewAdapter().Adapt(raw)
	require.NoError(t, err)
	assert.Equal(t, grading.ShapeStructured, shape)
	assert.Equal(t, 82.0, out.OverallScore)
	assert.Equal(t, "Solid essay.", out.Summary)

	require.Len(t, out.DimensionScores, 3)
	assert.Equal(t, grading.DimensionScore{Category: "Structure", Score: 80, MaxScore: 100, Description: "Clear paragraphs"}, out.DimensionScores[0])
	assert.Equal(t, "Content", out.DimensionScores[1].Category)
	assert.Equal(t, "Style", out.DimensionScores[2].Category)

	require.Len(t, out.Insights, 2)
	for _, in := range out.Insights {
		assert.Equal(t, grading.SeverityCritical, in.Severity)
		assert.Equal(t, "Grammar", in.Category)
	}
	assert.Equal(t, "Spelling", out.Insights[0].Title)
	assert.Equal(t, `i before e (Original: "recieve" -> Suggestion: "receive")`, out.Insights[0].Description)
	assert.Equal(t, "Correction", out.Insights[1].Title)
	assert.Equal(t, "grammar-1", out.Insights[1].ID)
}

func TestAdapter_StructuredNoGrammarNotes(t *testing.T) {
	raw := grading.RawEngineOutput(`{"overall_score": 60, "structure_analysis": {"score": 60}}`)

	out, _, err := grading.NewAdapter().Adapt(raw)
	require.NoError(t, err)
	assert.Empty(t, out.Insights)
	// missing sections still produce their dimension with score 0
	require.Len(t, out.DimensionScores, 3)
	assert.Equal(t, 0.0, out.DimensionScores[1].Score)
}

func TestAdapter_Rubric(t *testing.T) {
	t.Run("PercentageScore", func(t *testing.T) {
		raw := grading.RawEngineOutput(`{
			"feedback_items": [
				{"criterion_name": "Thesis", "score": 4, "max_score": 5, "feedback": "Clear"},
				{"criterion_name": "Evidence", "score": 3, "max_score": 5, "feedback": "Thin"}
			],
			"overall_score": 7,
			"total_possible": 10,
			"percentage_score": 70,
			"overall_feedback": "Good start",
			"strengths": ["Clear thesis"],
			"suggestions": ["Add sources", "Vary sentences"]
		}`)
		out, shape, err := grading.NewAdapter().Adapt(raw)
		require.NoError(t, err)
		assert.Equal(t, grading.ShapeRubric, shape)
		assert.Equal(t, 70.0, out.OverallScore)
		assert.Equal(t, "Good start", out.Summary)
		require.Len(t, out.DimensionScores, 2)
		assert.Equal(t, grading.DimensionScore{Category: "Thesis", Score: 4, MaxScore: 5, Description: "Clear"}, out.DimensionScores[0])
		require.Len(t, out.Insights, 3)
		assert.Equal(t, grading.SeverityStrength, out.Insights[0].Severity)
		assert.Equal(t, grading.SeveritySuggestion, out.Insights[2].Severity)
	})

	t.Run("FractionWithoutPercentage", func(t *testing.T) {
		raw := grading.RawEngineOutput(`{
			"feedback_items": [{"criterion_name": "Thesis", "score": 2, "max_score": 3}],
			"overall_score": 2,
			"total_possible": 3
		}`)
		out, _, err := grading.NewAdapter().Adapt(raw)
		require.NoError(t, err)
		assert.Equal(t, 67.0, out.OverallScore)
	})
}

func TestAdapter_Fallback(t *testing.T) {
	raw := grading.RawEngineOutput(`{"text": ` + quote(fallbackReport) + `}`)

	out, shape, err := grading.NewAdapter().Adapt(raw)
	require.NoError(t, err)
	assert.Equal(t, grading.ShapeFallback, shape)
	assert.Equal(t, 78.0, out.OverallScore)
	require.Len(t, out.DimensionScores, 3)
	assert.Equal(t, 70.0, out.DimensionScores[0].Score)
	assert.Equal(t, 65.0, out.DimensionScores[1].Score)
	assert.Equal(t, 90.0, out.DimensionScores[2].Score)
	require.Len(t, out.Insights, 1)
	assert.Equal(t, grading.SeverityInfo, out.Insights[0].Severity)
	assert.Equal(t, "Full Assessment", out.Insights[0].Title)
	assert.Equal(t, fallbackReport, out.Report)
}

func TestAdapter_FallbackMissingRows(t *testing.T) {
	raw := grading.RawEngineOutput(`{"text": "| Topic Focus | 10/10 |"}`)

	out, _, err := grading.NewAdapter().Adapt(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.OverallScore)
	assert.Equal(t, 0.0, out.DimensionScores[0].Score)
	assert.Equal(t, 50.0, out.DimensionScores[1].Score)
}

type fixedExtractor struct{}

func (fixedExtractor) Row(string, string) (float64, bool) { return 42, true }
func (fixedExtractor) Total(string) (float64, bool)       { return 99, true }

func TestAdapter_CustomExtractor(t *testing.T) {
	a := &grading.Adapter{Extractor: fixedExtractor{}}
	out, _, err := a.Adapt(grading.RawEngineOutput(`{"text": "anything"}`))
	require.NoError(t, err)
	assert.Equal(t, 99.0, out.OverallScore)
	assert.Equal(t, 42.0, out.DimensionScores[1].Score)
}

func TestAdapter_Unparseable(t *testing.T) {
	cases := map[string]grading.RawEngineOutput{
		"absent":       nil,
		"null":         grading.RawEngineOutput(`null`),
		"empty object": grading.RawEngineOutput(`{}`),
		"empty text":   grading.RawEngineOutput(`{"text": ""}`),
		"not json":     grading.RawEngineOutput(`{"text": `),
		"array":        grading.RawEngineOutput(`[1,2]`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, shape, err := grading.NewAdapter().Adapt(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, grading.ErrUnparseable))
			assert.Equal(t, grading.ShapeUnknown, shape)
		})
	}
}

func TestDetectShape(t *testing.T) {
	shape, err := grading.DetectShape(grading.RawEngineOutput(`{"structure_analysis": {}, "text": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, "structured", shape.String())

	shape, err = grading.DetectShape(grading.RawEngineOutput(`{"text": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, grading.ShapeFallback, shape)
}

func quote(s string) string {
	b := []byte{'"'}
	for _, r := range s {
		switch r {
		case '\n':
			b = append(b, '\\', 'n')
		case '"':
			b = append(b, '\\', '"')
		default:
			b = append(b, string(r)...)
		}
	}
	return string(append(b, '"'))
}
