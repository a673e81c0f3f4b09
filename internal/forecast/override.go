// Package forecast holds the deterministic weather logic around the model:
// input parsing, feature engineering, rule overrides and risk advice.
package forecast

import "github.com/rainwatch/apiserver/types"

type rule struct {
	matches  func(s types.WeatherSnapshot) bool
	decision types.Decision
}

// Order matters: the strict conjunctions must be tried before the single
// cloud cover bounds that would otherwise shadow them.
var overrideRules = []rule{
	{
		matches: func(s types.WeatherSnapshot) bool {
			return s.Humidity > 85 && s.CloudCover > 70 && s.Pressure < 1005
		},
		decision: types.DecisionYes,
	},
	{
		matches: func(s types.WeatherSnapshot) bool {
			return s.Humidity < 40 && s.CloudCover < 10 && s.Pressure > 1015
		},
		decision: types.DecisionNo,
	},
	{
		matches:  func(s types.WeatherSnapshot) bool { return s.CloudCover > 90 },
		decision: types.DecisionYes,
	},
	{
		matches:  func(s types.WeatherSnapshot) bool { return s.CloudCover < 10 },
		decision: types.DecisionNo,
	},
}

// Decide applies the override rules to the model decision. The first
// matching rule wins; with no match the model decision stands. overridden
// is true only when the result differs from modelDecision.
func Decide(s types.WeatherSnapshot, modelDecision types.Decision) (final types.Decision, overridden bool) {
	final = modelDecision
	for _, r := range overrideRules {
		if r.matches(s) {
			final = r.decision
			break
		}
	}
	return final, final != modelDecision
}
