package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/logging"
	"ImpactWatcher/internal/monitoring"
)

type stubBackend struct {
	answer string
	err    error
	gotIn  string
	gotTxt string
}

func (s *stubBackend) Complete(_ context.Context, instruction, text string) (string, error) {
	s.gotIn = instruction
	s.gotTxt = text
	return s.answer, s.err
}

func TestParseClassification(t *testing.T) {
	t.Parallel()

	neutral := domain.NeutralClassification()
	cases := []struct {
		name    string
		raw     string
		want    domain.Classification
		reasons []string
	}{
		{
			name: "well formed",
			raw:  `{"sentiment":"negative","significant":true,"reasoning":"Tariffs on all imports."}`,
			want: domain.Classification{Direction: domain.DirectionNegative, Significant: true, Rationale: "Tariffs on all imports."},
		},
		{
			name: "case and whitespace in sentiment",
			raw:  `{"sentiment":"  Positive ","significant":false,"reasoning":""}`,
			want: domain.Classification{Direction: domain.DirectionPositive},
		},
		{
			name: "code fence",
			raw:  "```json\n{\"sentiment\":\"positive\",\"significant\":true,\"reasoning\":\"Rate cut.\"}\n```",
			want: domain.Classification{Direction: domain.DirectionPositive, Significant: true, Rationale: "Rate cut."},
		},
		{name: "empty", raw: "   ", want: neutral, reasons: []string{ReasonEmpty}},
		{name: "not json", raw: "The market will go up.", want: neutral, reasons: []string{ReasonInvalidJSON}},
		{name: "array", raw: `["positive", true]`, want: neutral, reasons: []string{ReasonNotObject}},
		{name: "null", raw: `null`, want: neutral, reasons: []string{ReasonNotObject}},
		{
			name:    "missing significant",
			raw:     `{"sentiment":"negative","reasoning":"Sanctions."}`,
			want:    domain.Classification{Direction: domain.DirectionNegative, Rationale: "Sanctions."},
			reasons: []string{ReasonSignificant},
		},
		{
			name:    "string significant",
			raw:     `{"sentiment":"negative","significant":"true","reasoning":"x"}`,
			want:    domain.Classification{Direction: domain.DirectionNegative, Rationale: "x"},
			reasons: []string{ReasonSignificant},
		},
		{
			name:    "out of enum sentiment",
			raw:     `{"sentiment":"bullish","significant":true,"reasoning":"x"}`,
			want:    domain.Classification{Direction: domain.DirectionNeutral, Significant: true, Rationale: "x"},
			reasons: []string{ReasonSentiment},
		},
		{
			name:    "non string fields",
			raw:     `{"sentiment":1,"significant":null,"reasoning":["a"]}`,
			want:    neutral,
			reasons: []string{ReasonSentiment, ReasonSignificant, ReasonReasoning},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, reasons := ParseClassification(tc.raw)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.reasons, reasons)
		})
	}
}

func TestParseClassificationNeverAlertsOnGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"", "{", "}", "```", "```json\n```", `{"significant":true}`,
		`{"sentiment":"bullish","significant":true}`, `{"sentiment":"neutral","significant":true}`,
		`{"sentiment":"negative","significant":"yes"}`, `{"sentiment":"positive"}`,
	} {
		got, _ := ParseClassification(raw)
		require.False(t, got.Alertable(), "raw %q", raw)
	}
}

func TestClassifierBackendErrorFallsBack(t *testing.T) {
	t.Parallel()

	metrics := monitoring.NewCollector()
	backend := &stubBackend{err: errors.New("429 too many requests")}
	c := NewClassifier(backend, logging.Discard(), metrics)

	got := c.Classify(context.Background(), "<p>Tariffs!</p>")
	require.Equal(t, domain.NeutralClassification(), got)
	require.Equal(t, Instruction, backend.gotIn)
	require.Equal(t, "<p>Tariffs!</p>", backend.gotTxt)

	count, err := testutil.GatherAndCount(metrics.Registry(), "impact_watcher_classifier_fallbacks_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestClassifierPassesVerdictThrough(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{answer: `{"sentiment":"positive","significant":true,"reasoning":"Trade deal."}`}
	c := NewClassifier(backend, logging.Discard(), nil)

	got := c.Classify(context.Background(), "deal")
	require.True(t, got.Alertable())
	require.Equal(t, "Trade deal.", got.Rationale)
}
