package report_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/report"
	"github.com/aretw0/keystone/pkg/survey"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

// everyCombination walks the cartesian product of all answers in the default survey.
func everyCombination(t *testing.T, fn func(domain.Responses)) {
	t.Helper()
	def := survey.Default()
	ids := def.QuestionIDs()

	var walk func(i int, acc domain.Responses)
	walk = func(i int, acc domain.Responses) {
		if i == len(ids) {
			fn(acc.Clone())
			return
		}
		item, _ := def.Item(ids[i])
		for _, opt := range item.Options {
			acc[ids[i]] = opt
			walk(i+1, acc)
		}
	}
	walk(0, domain.Responses{})
}

func nonEmptyFields(t *testing.T, r report.Report) {
	t.Helper()
	v := reflect.ValueOf(r)
	for i := 0; i < v.NumField(); i++ {
		assert.NotEmpty(t, v.Field(i).String(), "field %s is empty", v.Type().Field(i).Name)
	}
}

func TestGenerate_TotalForValidAnswers(t *testing.T) {
	count := 0
	everyCombination(t, func(r domain.Responses) {
		count++
		nonEmptyFields(t, report.Generate(r))
	})
	assert.Equal(t, 4*4*4*3*2*3, count)
}

func TestGenerate_Deterministic(t *testing.T) {
	everyCombination(t, func(r domain.Responses) {
		first := report.Generate(r)
		second := report.Generate(r.Clone())
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("Generate not deterministic (-first +second):\n%s", diff)
		}
	})
}

func TestGenerate_FallbackForSkippedOrAbsent(t *testing.T) {
	fallback := report.Fallbacks()

	skipped := domain.Responses{}
	for _, id := range survey.Default().QuestionIDs() {
		skipped[id] = domain.Skipped
	}

	for name, responses := range map[string]domain.Responses{"absent": {}, "skipped": skipped} {
		t.Run(name, func(t *testing.T) {
			got := report.Generate(responses)
			assert.Equal(t, fallback.MotivationText, got.MotivationText)
			assert.Equal(t, fallback.RevenueText, got.RevenueText)
			assert.Equal(t, fallback.TimelineAdvice, got.TimelineAdvice)
			assert.Equal(t, fallback.PreparationAdvice, got.PreparationAdvice)
			assert.Equal(t, fallback.BuyerAdvice, got.BuyerAdvice)
			assert.Equal(t, report.ValuationPending, got.ValuationRange)
			assert.Equal(t, report.MinimumBenchmark, got.SizePercent)
			assert.Equal(t, report.MinimumBenchmark, got.RevenuePercent)
		})
	}

	assert.True(t, strings.HasPrefix(fallback.MotivationText, "You didn't specify your motivation"))
	assert.True(t, strings.HasPrefix(fallback.TimelineAdvice, "You haven't specified a timeline"))
}

func TestGenerate_CatchAllForUnknownAnswers(t *testing.T) {
	got := report.Generate(domain.Responses{
		domain.QuestionMotivation:  "Bored",
		domain.QuestionRevenue:     "$1B",
		domain.QuestionTimeline:    "Tomorrow",
		domain.QuestionPreparation: "Maybe",
	})
	fallback := report.Fallbacks()

	assert.Equal(t, "Based on your specific situation, a customized approach will be needed for your sale process.", got.MotivationText)
	assert.NotEqual(t, fallback.RevenueText, got.RevenueText)
	assert.NotEqual(t, fallback.TimelineAdvice, got.TimelineAdvice)
	assert.NotEqual(t, fallback.PreparationAdvice, got.PreparationAdvice)
	assert.Equal(t, report.ValuationPending, got.ValuationRange)
}

func TestValuationRange(t *testing.T) {
	assert.Equal(t, "$2M - $10M", report.ValuationRange("$1M-$5M"))
	assert.Equal(t, report.ValuationRange("$5M-$20M"), report.ValuationRange("$5M-$20M"))
	assert.Equal(t, "Valuation pending", report.ValuationRange("lots"))
	assert.Equal(t, "Valuation pending", report.ValuationRange(""))
}

func TestBenchmarks(t *testing.T) {
	assert.Equal(t, "30%", report.EmployeeBenchmark("Less than 10"))
	assert.Equal(t, "50%", report.EmployeeBenchmark("10-50"))
	assert.Equal(t, "75%", report.EmployeeBenchmark("50-100"))
	assert.Equal(t, "90%", report.EmployeeBenchmark("More than 100"))
	assert.Equal(t, report.MinimumBenchmark, report.EmployeeBenchmark(domain.Skipped))

	assert.Equal(t, "25%", report.RevenueBenchmark("Less than $1M"))
	assert.Equal(t, "95%", report.RevenueBenchmark("More than $20M"))
	assert.Equal(t, report.MinimumBenchmark, report.RevenueBenchmark("unknown"))
}

func TestMarkdown(t *testing.T) {
	r := report.Generate(domain.Responses{
		domain.QuestionMotivation: "Retirement",
		domain.QuestionRevenue:    "$1M-$5M",
		domain.QuestionEmployees:  "10-50",
	})
	md := report.Markdown(r)

	assert.Contains(t, md, "# Your Best Next Steps Report")
	assert.Contains(t, md, r.MotivationText)
	assert.Contains(t, md, "**Indicative valuation:** $2M - $10M")
	assert.Contains(t, md, "| Size | Average size | 50% |")
}
