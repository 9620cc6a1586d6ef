package grading

import (
	"encoding/json"
	"fmt"
)

// Shape of an engine outputs payload
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeStructured
	ShapeRubric
	ShapeFallback
)

func (s Shape) String() string {
	switch s {
	case ShapeStructured:
		return "structured"
	case ShapeRubric:
		return "rubric"
	case ShapeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

type sectionAnalysis struct {
	Score       float64  `json:"score"`
	Comments    string   `json:"comments"`
	Suggestions []string `json:"suggestions"`
}

type grammarNote struct {
	Type        string `json:"type"`
	Original    string `json:"original"`
	Suggestion  string `json:"suggestion"`
	Explanation string `json:"explanation"`
}

type feedbackItem struct {
	CriterionName string   `json:"criterion_name"`
	Score         float64  `json:"score"`
	MaxScore      float64  `json:"max_score"`
	Feedback      string   `json:"feedback"`
	Suggestions   []string `json:"suggestions"`
	LevelName     string   `json:"level_name"`
}

// engineOutputs is the union of every field any known shape carries.
type engineOutputs struct {
	// structured
	OverallScore      *float64         `json:"overall_score"`
	FeedbackSummary   string           `json:"feedback_summary"`
	StructureAnalysis *sectionAnalysis `json:"structure_analysis"`
	ContentAnalysis   *sectionAnalysis `json:"content_analysis"`
	StyleAnalysis     *sectionAnalysis `json:"style_analysis"`
	GrammarNotes      []grammarNote    `json:"grammar_notes"`

	// rubric
	FeedbackItems   []feedbackItem `json:"feedback_items"`
	TotalPossible   *float64       `json:"total_possible"`
	PercentageScore *float64       `json:"percentage_score"`
	OverallFeedback string         `json:"overall_feedback"`
	Strengths       []string       `json:"strengths"`
	Suggestions     []string       `json:"suggestions"`

	// fallback
	Text *string `json:"text"`
}

// DetectShape reports which known shape raw is, or an ErrUnparseable error.
func DetectShape(raw RawEngineOutput) (Shape, error) {
	shape, _, err := inspect(raw)
	return shape, err
}

func inspect(raw RawEngineOutput) (Shape, *engineOutputs, error) {
	if !raw.Present() {
		return ShapeUnknown, nil, fmt.Errorf("%w: no outputs in engine response", ErrUnparseable)
	}
	var out engineOutputs
	if err := json.Unmarshal(raw, &out); err != nil {
		return ShapeUnknown, nil, fmt.Errorf("%w: decode outputs: %v", ErrUnparseable, err)
	}
	switch {
	case out.StructureAnalysis != nil:
		return ShapeStructured, &out, nil
	case len(out.FeedbackItems) > 0:
		return ShapeRubric, &out, nil
	case out.Text != nil && *out.Text != "":
		return ShapeFallback, &out, nil
	}
	return ShapeUnknown, &out, fmt.Errorf("%w: outputs match no known shape", ErrUnparseable)
}

// Adapter converts RawEngineOutput into AnalysisOutput.
type Adapter struct {
	Extractor ScoreExtractor
}

// NewAdapter uses the markdown table extractor for fallback reports.
func NewAdapter() *Adapter {
	return &Adapter{Extractor: MarkdownTableExtractor{}}
}

// Adapt normalizes one engine payload. Errors wrap ErrUnparseable.
func (a *Adapter) Adapt(raw RawEngineOutput) (AnalysisOutput, Shape, error) {
	shape, out, err := inspect(raw)
	if err != nil {
		return AnalysisOutput{}, shape, err
	}
	switch shape {
	case ShapeStructured:
		return adaptStructured(out), shape, nil
	case ShapeRubric:
		return adaptRubric(out), shape, nil
	default:
		return a.adaptFallback(*out.Text), shape, nil
	}
}

func adaptStructured(out *engineOutputs) AnalysisOutput {
	section := func(category string, s *sectionAnalysis) DimensionScore {
		d := DimensionScore{Category: category, MaxScore: 100}
		if s != nil {
			d.Score = s.Score
			d.Description = s.Comments
		}
		return d
	}

	res := AnalysisOutput{
		DimensionScores: []DimensionScore{
			section("Structure", out.StructureAnalysis),
			section("Content", out.ContentAnalysis),
			section("Style", out.StyleAnalysis),
		},
		Insights: make([]Insight, 0, len(out.GrammarNotes)),
		Summary:  out.FeedbackSummary,
	}
	if out.OverallScore != nil {
		res.OverallScore = *out.OverallScore
	}
	for i, n := range out.GrammarNotes {
		title := n.Type
		if title == "" {
			title = "Correction"
		}
		res.Insights = append(res.Insights, Insight{
			ID:       fmt.Sprintf("grammar-%d", i),
			Severity: SeverityCritical,
			Category: "Grammar",
			Title:    title,
			Description: fmt.Sprintf(`%s (Original: "%s" -> Suggestion: "%s")`,
				n.Explanation, n.Original, n.Suggestion),
		})
	}
	return res
}

func adaptRubric(out *engineOutputs) AnalysisOutput {
	res := AnalysisOutput{
		DimensionScores: make([]DimensionScore, 0, len(out.FeedbackItems)),
		Insights:        make([]Insight, 0, len(out.Strengths)+len(out.Suggestions)),
		Summary:         out.OverallFeedback,
	}
	for _, it := range out.FeedbackItems {
		res.DimensionScores = append(res.DimensionScores, DimensionScore{
			Category:    it.CriterionName,
			Score:       it.Score,
			MaxScore:    it.MaxScore,
			Description: it.Feedback,
		})
	}

	switch {
	case out.PercentageScore != nil:
		res.OverallScore = *out.PercentageScore
	case out.OverallScore != nil && out.TotalPossible != nil:
		res.OverallScore = NormalizeFraction(*out.OverallScore, *out.TotalPossible)
	}

	for i, s := range out.Strengths {
		res.Insights = append(res.Insights, Insight{
			ID:          fmt.Sprintf("strength-%d", i),
			Severity:    SeverityStrength,
			Category:    "General",
			Title:       "Strength",
			Description: s,
		})
	}
	for i, s := range out.Suggestions {
		res.Insights = append(res.Insights, Insight{
			ID:          fmt.Sprintf("suggestion-%d", i),
			Severity:    SeveritySuggestion,
			Category:    "General",
			Title:       "Suggestion",
			Description: s,
		})
	}
	return res
}

// rubric row labels used by the current markdown report template
const (
	labelOrganization = "Organization & Flow"
	labelTopicFocus   = "Topic Focus"
	labelEvidence     = "Evidence & Support"
	labelLanguage     = "Language & Mechanics"
)

func (a *Adapter) adaptFallback(text string) AnalysisOutput {
	ex := a.Extractor
	if ex == nil {
		ex = MarkdownTableExtractor{}
	}
	// missing rows count as 0, same as the dashboard
	row := func(label string) float64 {
		v, _ := ex.Row(text, label)
		return v
	}
	overall, _ := ex.Total(text)

	return AnalysisOutput{
		OverallScore: overall,
		DimensionScores: []DimensionScore{
			{Category: "Structure", Score: row(labelOrganization), MaxScore: 100, Description: "Derived from Organization & Flow"},
			{Category: "Content", Score: (row(labelTopicFocus) + row(labelEvidence)) / 2, MaxScore: 100, Description: "Derived from Topic Focus & Evidence"},
			{Category: "Style", Score: row(labelLanguage), MaxScore: 100, Description: "Derived from Language & Mechanics"},
		},
		Insights: []Insight{{
			ID:          "full-report",
			Severity:    SeverityInfo,
			Category:    "General",
			Title:       "Full Assessment",
			Description: "See the detailed Markdown report for full feedback.",
		}},
		Report: text,
	}
}
