// Package report turns a finished set of survey answers into the personalized
// "Best Next Steps" report. Every function here is pure: the same Responses always
// produce the same Report, and no input can make generation fail.
package report

import "github.com/aretw0/keystone/pkg/domain"

// ValuationPending is returned for revenue buckets without a known range.
const ValuationPending = "Valuation pending"

// MinimumBenchmark is the bar width used when a bucket is unknown.
const MinimumBenchmark = "10%"

// Report is the narrative derived from a Responses map.
type Report struct {
	MotivationText    string `json:"motivation_text"`
	RevenueText       string `json:"revenue_text"`
	TimelineAdvice    string `json:"timeline_advice"`
	PreparationAdvice string `json:"preparation_advice"`
	BuyerAdvice       string `json:"buyer_advice"`
	ValuationRange    string `json:"valuation_range"`
	SizeLabel         string `json:"size_label"`
	SizePercent       string `json:"size_percent"`
	RevenueLabel      string `json:"revenue_label"`
	RevenuePercent    string `json:"revenue_percent"`
}

// narrative selects a sentence for one response key.
type narrative struct {
	known    map[string]string
	fallback string // skipped or absent
	catchAll string // an answer outside the known options
}

func (n narrative) pick(responses domain.Responses, key string) string {
	if responses.IsSkipped(key) {
		return n.fallback
	}
	if text, ok := n.known[responses[key]]; ok {
		return text
	}
	return n.catchAll
}

var motivation = narrative{
	known: map[string]string{
		"Retirement":           "As you're preparing for retirement, timing and proper valuation will be critical for your exit strategy.",
		"Growth opportunities": "Since you're focused on growth, consider strategic buyers who can provide resources and market expansion.",
		"Financial liquidity":  "With financial liquidity as your goal, PE firms might offer attractive terms for a partial or complete sale.",
	},
	fallback: "You didn't specify your motivation for selling. Consider reflecting on your primary goals for this process.",
	catchAll: "Based on your specific situation, a customized approach will be needed for your sale process.",
}

var revenue = narrative{
	known: map[string]string{
		"Less than $1M":  "Your revenue is below the typical threshold for PE firms, but strategic buyers may still find value in your operations.",
		"$1M-$5M":        "Your revenue puts you in range for smaller PE firms and many strategic buyers.",
		"$5M-$20M":       "Your revenue exceeds the $5M industry average, making you an attractive target for both PE and strategic buyers.",
		"More than $20M": "Your substantial revenue makes you a prime target for larger PE firms and major strategic buyers.",
	},
	fallback: "You didn't provide revenue information. A professional valuation could help you understand your firm's market position.",
	catchAll: "Your revenue profile is unusual. A professional valuation will clarify which buyers fit your firm.",
}

var timeline = narrative{
	known: map[string]string{
		"Less than 6 months":  "Your accelerated timeline requires immediate preparation. Consider engaging an M&A advisor immediately.",
		"6-12 months":         "Your timeline aligns with typical M&A processes. Begin preparation now to maximize value.",
		"More than 12 months": "Your extended timeline gives you an opportunity to implement value-enhancement strategies before selling.",
	},
	fallback: "You haven't specified a timeline. Consider your ideal timeframe and how it aligns with market conditions.",
	catchAll: "Map your preferred timeline against market conditions with an advisor before committing to a sale date.",
}

var preparation = narrative{
	known: map[string]string{
		"Yes (e.g., valuation, audits)": "Your preparation puts you ahead of many sellers. Focus now on positioning your unique value proposition.",
		"No":                            "We recommend starting with a professional valuation and addressing any financial documentation gaps.",
	},
	fallback: "You haven't indicated your preparation level. Start by assessing your readiness and identifying areas for improvement.",
	catchAll: "Review your financial records and operations to confirm how ready your business is for buyer scrutiny.",
}

var buyer = narrative{
	known: map[string]string{
		"Strategic (e.g., for legacy)":   "Focus on highlighting operational synergies and cultural fit to attract strategic buyers.",
		"PE (e.g., for quick liquidity)": "Prepare detailed growth projections and identify efficiency opportunities to appeal to PE firms.",
		"No preference":                  "Consider a broad marketing approach to both strategic and financial buyers for best valuation.",
	},
	fallback: "You haven't indicated a buyer preference. Learning how strategic and financial buyers differ will help you choose.",
	catchAll: "Consider a broad marketing approach to both strategic and financial buyers for best valuation.",
}

var valuationRanges = map[string]string{
	"Less than $1M":  "$250K - $2M",
	"$1M-$5M":        "$2M - $10M",
	"$5M-$20M":       "$10M - $40M",
	"More than $20M": "$40M+",
}

var employeeBenchmarks = map[string]string{
	"Less than 10":  "30%",
	"10-50":         "50%",
	"50-100":        "75%",
	"More than 100": "90%",
}

var revenueBenchmarks = map[string]string{
	"Less than $1M":  "25%",
	"$1M-$5M":        "50%",
	"$5M-$20M":       "75%",
	"More than $20M": "95%",
}

var sizeLabels = map[string]string{
	"Less than 10":  "Smaller than average",
	"10-50":         "Average size",
	"50-100":        "Larger than average",
	"More than 100": "Larger than average",
}

var revenueLabels = map[string]string{
	"Less than $1M":  "Below average",
	"$1M-$5M":        "Average",
	"$5M-$20M":       "Above average",
	"More than $20M": "Top tier",
}

const notProvided = "Not provided"

// Generate builds the report for a finished survey. It never fails.
func Generate(responses domain.Responses) Report {
	return Report{
		MotivationText:    motivation.pick(responses, domain.QuestionMotivation),
		RevenueText:       revenue.pick(responses, domain.QuestionRevenue),
		TimelineAdvice:    timeline.pick(responses, domain.QuestionTimeline),
		PreparationAdvice: preparation.pick(responses, domain.QuestionPreparation),
		BuyerAdvice:       buyer.pick(responses, domain.QuestionBuyerPreference),
		ValuationRange:    ValuationRange(responses[domain.QuestionRevenue]),
		SizeLabel:         lookup(sizeLabels, responses[domain.QuestionEmployees], notProvided),
		SizePercent:       EmployeeBenchmark(responses[domain.QuestionEmployees]),
		RevenueLabel:      lookup(revenueLabels, responses[domain.QuestionRevenue], notProvided),
		RevenuePercent:    RevenueBenchmark(responses[domain.QuestionRevenue]),
	}
}

// ValuationRange maps a revenue bucket to an indicative valuation range.
func ValuationRange(revenueBucket string) string {
	return lookup(valuationRanges, revenueBucket, ValuationPending)
}

// EmployeeBenchmark maps an employee-count bucket to the width of the size bar.
func EmployeeBenchmark(employeesBucket string) string {
	return lookup(employeeBenchmarks, employeesBucket, MinimumBenchmark)
}

// RevenueBenchmark maps a revenue bucket to the width of the revenue bar.
func RevenueBenchmark(revenueBucket string) string {
	return lookup(revenueBenchmarks, revenueBucket, MinimumBenchmark)
}

// Fallbacks returns the sentence each narrative field takes when its question was skipped.
func Fallbacks() Report {
	return Generate(domain.Responses{})
}

func lookup(table map[string]string, key, def string) string {
	if v, ok := table[key]; ok {
		return v
	}
	return def
}
