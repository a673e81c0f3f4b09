package forecast

import (
	"strings"

	"github.com/rainwatch/apiserver/internal/cache"
	"github.com/rainwatch/apiserver/types"
)

const (
	highHumidity  = 80
	lowPressure   = 1005
	denseCloud    = 70
	strongWind    = 10
	veryHighTemp  = 35
	veryLowTemp   = 5
	normalSummary = "normal conditions"
)

var precautionsByFactor = []struct {
	factor     string
	precaution string
}{
	{"high humidity", "Wear breathable clothes"},
	{"low pressure", "Carry an umbrella"},
	{"dense cloud cover", "Be prepared for poor visibility"},
	{"strong wind", "Secure loose objects outdoors"},
	{"very high temperature", "Stay hydrated and avoid sun exposure"},
	{"very low temperature", "Wear warm clothing and stay indoors if possible"},
}

// RiskKey records which risk thresholds a snapshot crosses. Thresholds are
// compared on the raw values, so snapshots with the same notable conditions
// share one cache entry.
type RiskKey struct {
	HighHumidity bool
	LowPressure  bool
	DenseCloud   bool
	StrongWind   bool
	VeryHighTemp bool
	VeryLowTemp  bool
}

// KeyFor evaluates the risk thresholds against s.
func KeyFor(s types.WeatherSnapshot) RiskKey {
	return RiskKey{
		HighHumidity: s.Humidity > highHumidity,
		LowPressure:  s.Pressure < lowPressure,
		DenseCloud:   s.CloudCover > denseCloud,
		StrongWind:   s.WindSpeed > strongWind,
		VeryHighTemp: s.Temperature > veryHighTemp,
		VeryLowTemp:  s.Temperature < veryLowTemp,
	}
}

// Summarize describes the notable conditions in k.
func Summarize(k RiskKey) string {
	var factors []string
	if k.HighHumidity {
		factors = append(factors, "high humidity")
	}
	if k.LowPressure {
		factors = append(factors, "low pressure")
	}
	if k.DenseCloud {
		factors = append(factors, "dense cloud cover")
	}
	if k.StrongWind {
		factors = append(factors, "strong wind")
	}
	if k.VeryHighTemp {
		factors = append(factors, "very high temperature")
	} else if k.VeryLowTemp {
		factors = append(factors, "very low temperature")
	}
	if len(factors) == 0 {
		return normalSummary
	}
	return strings.Join(factors, ", ")
}

// Precautions lists suggestions for each factor named in summary.
func Precautions(summary string) []string {
	factors := make(map[string]bool)
	for _, f := range strings.Split(summary, ",") {
		factors[strings.TrimSpace(f)] = true
	}
	var out []string
	for _, p := range precautionsByFactor {
		if factors[p.factor] {
			out = append(out, p.precaution)
		}
	}
	if len(out) == 0 {
		out = append(out, "No special precautions needed")
	}
	return out
}

// Advisor memoizes Summarize and Precautions behind bounded caches.
type Advisor struct {
	summaries   cache.Cache[RiskKey, string]
	precautions cache.Cache[string, []string]
}

func NewAdvisor(summaries cache.Cache[RiskKey, string], precautions cache.Cache[string, []string]) *Advisor {
	return &Advisor{summaries: summaries, precautions: precautions}
}

// NewLRUAdvisor builds an Advisor backed by LRU caches of the given sizes.
func NewLRUAdvisor(summarySize, precautionSize int) (*Advisor, error) {
	summaries, err := cache.NewLRU[RiskKey, string](summarySize)
	if err != nil {
		return nil, err
	}
	precautions, err := cache.NewLRU[string, []string](precautionSize)
	if err != nil {
		return nil, err
	}
	return NewAdvisor(summaries, precautions), nil
}

// Advise returns the risk summary and precautions for s.
func (a *Advisor) Advise(s types.WeatherSnapshot) (string, []string) {
	key := KeyFor(s)
	summary, ok := a.summaries.Get(key)
	if !ok {
		summary = Summarize(key)
		a.summaries.Put(key, summary)
	}

	precautions, ok := a.precautions.Get(summary)
	if !ok {
		precautions = Precautions(summary)
		a.precautions.Put(summary, precautions)
	}
	// Callers own the returned slice; the cached one stays untouched.
	return summary, append([]string(nil), precautions...)
}
