package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rainwatch/apiserver/types"
)

// Raw request field names accepted by the prediction endpoint.
const (
	FieldTemperature           = "Temperature(C)"
	FieldHumidity              = "Humidity(%)"
	FieldPressure              = "Pressure(hPa)"
	FieldWindSpeed             = "WindSpeed(km/h)"
	FieldCloudCover            = "CloudCover(%)"
	FieldVisibility            = "Visibility(km)"
	FieldDewPoint              = "DewPoint(C)"
	FieldUVIndex               = "UVIndex"
	FieldSolarRadiation        = "SolarRadiation(W/m²)"
	FieldWindDirection         = "WindDirection(°)"
	FieldPrecipitationLastHour = "PrecipitationLastHour(mm)"
	FieldSoilMoisture          = "SoilMoisture(%)"
	FieldEvaporationRate       = "EvaporationRate(mm/day)"
	FieldFeelsLikeTemp         = "FeelsLikeTemp(C)"
	FieldTempChange1h          = "TempChange1h(C)"
	FieldWindGust              = "WindGust(km/h)"
	FieldPressureTendency      = "PressureTendency(hPa/3h)"
)

// RequiredFields lists the raw fields in the order the model was trained on.
var RequiredFields = []string{
	FieldTemperature, FieldHumidity, FieldPressure, FieldWindSpeed,
	FieldCloudCover, FieldVisibility, FieldDewPoint, FieldUVIndex,
	FieldSolarRadiation, FieldWindDirection, FieldPrecipitationLastHour,
	FieldSoilMoisture, FieldEvaporationRate, FieldFeelsLikeTemp,
	FieldTempChange1h, FieldWindGust, FieldPressureTendency,
}

var errNotFinite = errors.New("value is not finite")

type bounds struct{ min, max float64 }

var fieldBounds = map[string]bounds{
	FieldHumidity:      {0, 100},
	FieldCloudCover:    {0, 100},
	FieldWindDirection: {0, 360},
}

// FieldError describes why a raw snapshot was rejected.
type FieldError struct {
	Missing []string
	Field   string
	Reason  string
}

func (e *FieldError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseSnapshot validates raw request fields and converts them into a
// snapshot. Values may be JSON numbers or numeric strings.
func ParseSnapshot(raw map[string]json.RawMessage) (types.WeatherSnapshot, error) {
	var missing []string
	for _, field := range RequiredFields {
		value, ok := raw[field]
		if !ok || string(value) == "null" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return types.WeatherSnapshot{}, &FieldError{Missing: missing}
	}

	values := make(map[string]float64, len(RequiredFields))
	for _, field := range RequiredFields {
		v, err := parseNumber(raw[field])
		if err != nil {
			return types.WeatherSnapshot{}, &FieldError{Field: field, Reason: "must be numeric"}
		}
		if b, ok := fieldBounds[field]; ok && (v < b.min || v > b.max) {
			return types.WeatherSnapshot{}, &FieldError{
				Field:  field,
				Reason: fmt.Sprintf("must be between %g-%g", b.min, b.max),
			}
		}
		values[field] = v
	}

	return types.WeatherSnapshot{
		Temperature:           values[FieldTemperature],
		Humidity:              values[FieldHumidity],
		Pressure:              values[FieldPressure],
		WindSpeed:             values[FieldWindSpeed],
		CloudCover:            values[FieldCloudCover],
		Visibility:            values[FieldVisibility],
		DewPoint:              values[FieldDewPoint],
		UVIndex:               values[FieldUVIndex],
		SolarRadiation:        values[FieldSolarRadiation],
		WindDirection:         values[FieldWindDirection],
		PrecipitationLastHour: values[FieldPrecipitationLastHour],
		SoilMoisture:          values[FieldSoilMoisture],
		EvaporationRate:       values[FieldEvaporationRate],
		FeelsLikeTemp:         values[FieldFeelsLikeTemp],
		TempChange1h:          values[FieldTempChange1h],
		WindGust:              values[FieldWindGust],
		PressureTendency:      values[FieldPressureTendency],
	}, nil
}

// parseNumber accepts a JSON number or a numeric string. NaN and infinities
// are rejected.
func parseNumber(value json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(value, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errNotFinite
	}
	return n, nil
}

// Engineer derives the model's ratio features from a snapshot.
func Engineer(s types.WeatherSnapshot) types.FeatureVector {
	fv := types.FeatureVector{WeatherSnapshot: s}
	if s.Pressure != 0 {
		fv.HumidityPressureRatio = s.Humidity / s.Pressure
	}
	fv.TempDewDiff = s.Temperature - s.DewPoint
	// +0.1 keeps calm readings finite.
	if d := s.WindSpeed + 0.1; d != 0 {
		fv.WindGustRatio = s.WindGust / d
	}
	fv.HumidityCloudRatio = s.Humidity * (s.CloudCover / 100)
	fv.CloudPressureIndex = s.CloudCover * (1015 - s.Pressure)
	return fv
}
