// Package normalize maps the external analyzer's loosely-typed JSON onto the
// fixed submission report. Every alias and default is resolved here, once.
package normalize

import (
	"encoding/json"
	"math"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

const (
	DefaultVerdict  = "Review Needed"
	DefaultLanguage = "en"
	UnknownSource   = "Unknown"
)

// AnalyzerOutput is the analyzer document after alias resolution and defaults.
type AnalyzerOutput struct {
	PlagiarismScore   float64
	Sources           []domain.Source
	RephrasedDetected bool

	AIProbability     float64
	Entropy           *float64
	Perplexity        *float64
	WatermarkDetected bool

	ConsistencyScore *float64
	AnomalyDetected  bool
	PreviousMatches  []string

	Heatmap      []domain.HeatmapCell
	Language     string
	FinalVerdict string
}

// Decode never fails: anything that is not a JSON object decodes as {}.
func Decode(raw []byte) AnalyzerOutput {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		doc = nil
	}
	return fromObject(asObject(doc))
}

// Report returns a done report for any analyzer output.
func Report(raw []byte) domain.Report {
	return Decode(raw).Report()
}

func fromObject(an object) AnalyzerOutput {
	out := AnalyzerOutput{
		PlagiarismScore:   plagiarismScore(an),
		Sources:           sources(an["sources"]),
		RephrasedDetected: truthy(an["rephrasedDetected"]),
		AIProbability:     aiProbability(an),
		Entropy:           optionalNumber(an["entropy"]),
		Perplexity:        optionalNumber(an["perplexity"]),
		WatermarkDetected: truthy(an["watermarkDetected"]),
		Heatmap:           heatmap(an["heatmap"]),
		Language:          DefaultLanguage,
		FinalVerdict:      DefaultVerdict,
	}

	stylometry := asObject(an["stylometry"])
	out.ConsistencyScore = optionalNumber(stylometry["consistencyScore"])
	out.AnomalyDetected = truthy(stylometry["anomalyDetected"])
	out.PreviousMatches = previousMatches(stylometry["previousMatches"])

	if lang, ok := nonEmptyString(an["language"]); ok {
		out.Language = lang
	}
	if verdict, ok := an.firstString("verdict", "finalVerdict"); ok {
		out.FinalVerdict = verdict
	}
	return out
}

func (o AnalyzerOutput) Report() domain.Report {
	return domain.Report{
		Status: domain.StatusDone,
		Plagiarism: &domain.Plagiarism{
			Score:             int(o.PlagiarismScore),
			Sources:           o.Sources,
			RephrasedDetected: o.RephrasedDetected,
		},
		AIGenerated: &domain.AIGenerated{
			Probability:       o.AIProbability,
			Entropy:           o.Entropy,
			Perplexity:        o.Perplexity,
			WatermarkDetected: o.WatermarkDetected,
		},
		Stylometry: &domain.Stylometry{
			ConsistencyScore: o.ConsistencyScore,
			AnomalyDetected:  o.AnomalyDetected,
			PreviousMatches:  o.PreviousMatches,
		},
		Heatmap:      o.Heatmap,
		Language:     o.Language,
		FinalVerdict: o.FinalVerdict,
	}
}

// plagiarismScore treats values <= 1 as fractions and rescales them to a
// rounded 0..100 percentage.
func plagiarismScore(an object) float64 {
	v, ok := an.first("plagiarismScore", "plagiarism")
	if !ok {
		return 0
	}
	score, ok := number(v)
	if !ok {
		return 0
	}
	if score <= 1 {
		score *= 100
	}
	return clamp(math.Round(score), 0, 100)
}

// aiProbability is kept as a 0..1 fraction; it is never rescaled.
func aiProbability(an object) float64 {
	v, ok := an.first("aiLikelihood", "aiProbability")
	if !ok {
		v, ok = asObject(an["aiGenerated"]).first("probability")
	}
	if !ok {
		return 0
	}
	return clamp(numberOr(v, 0), 0, 1)
}

func sources(v any) []domain.Source {
	items, _ := v.([]any)
	out := make([]domain.Source, 0, len(items))
	for _, item := range items {
		s := asObject(item)
		src := domain.Source{Title: UnknownSource}
		if t, ok := s.firstTruthy("title", "sourceTitle"); ok {
			src.Title = stringify(t)
		}
		if u, ok := s.firstTruthy("url", "sourceUrl"); ok {
			src.URL = stringify(u)
		}
		if overlap, ok := s.first("overlap", "overlapPct"); ok {
			src.Overlap = clamp(numberOr(overlap, 0), 0, 100)
		}
		out = append(out, src)
	}
	return out
}

func heatmap(v any) []domain.HeatmapCell {
	items, ok := v.([]any)
	if !ok {
		return []domain.HeatmapCell{}
	}
	out := make([]domain.HeatmapCell, 0, len(items))
	for i, item := range items {
		cell := asObject(item)
		idx := i
		if f, ok := number(cell["idx"]); ok && f == math.Trunc(f) && f >= math.MinInt && f < math.MaxInt {
			idx = int(f)
		}
		out = append(out, domain.HeatmapCell{
			Idx:   idx,
			Score: numberOr(cell["score"], 0),
		})
	}
	return out
}

func previousMatches(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, stringify(item))
	}
	return out
}
