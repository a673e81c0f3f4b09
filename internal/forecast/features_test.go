package forecast

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rainwatch/apiserver/types"
)

func validRaw(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	body := `{
		"Temperature(C)": 25, "Humidity(%)": 85, "Pressure(hPa)": 1005,
		"WindSpeed(km/h)": 5, "CloudCover(%)": 70, "Visibility(km)": 10,
		"DewPoint(C)": 18, "UVIndex": 5, "SolarRadiation(W/m²)": 250,
		"WindDirection(°)": 180, "PrecipitationLastHour(mm)": 0.5,
		"SoilMoisture(%)": 15, "EvaporationRate(mm/day)": 40,
		"FeelsLikeTemp(C)": 2, "TempChange1h(C)": 20, "WindGust(km/h)": 12,
		"PressureTendency(hPa/3h)": "5"
	}`
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return raw
}

func TestParseSnapshot_Valid(t *testing.T) {
	s, err := ParseSnapshot(validRaw(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Humidity != 85 || s.SolarRadiation != 250 || s.WindDirection != 180 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if s.PressureTendency != 5 {
		t.Fatalf("expected numeric string to parse, got %v", s.PressureTendency)
	}
}

func TestParseSnapshot_Missing(t *testing.T) {
	raw := validRaw(t)
	delete(raw, FieldHumidity)
	delete(raw, FieldWindGust)

	_, err := ParseSnapshot(raw)
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected *FieldError, got %v", err)
	}
	if len(fieldErr.Missing) != 2 {
		t.Fatalf("expected 2 missing fields, got %v", fieldErr.Missing)
	}
}

func TestParseSnapshot_NonNumeric(t *testing.T) {
	for _, value := range []string{`"high"`, `"NaN"`, `"Inf"`, `"-Infinity"`, `"+inf"`} {
		raw := validRaw(t)
		raw[FieldPressure] = json.RawMessage(value)

		_, err := ParseSnapshot(raw)
		if err == nil || !strings.Contains(err.Error(), FieldPressure) {
			t.Errorf("%s: expected pressure error, got %v", value, err)
		}
	}
}

func TestParseSnapshot_NaNDoesNotSlipPastRangeCheck(t *testing.T) {
	raw := validRaw(t)
	raw[FieldHumidity] = json.RawMessage(`"nan"`)

	_, err := ParseSnapshot(raw)
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != FieldHumidity || fieldErr.Reason != "must be numeric" {
		t.Fatalf("expected humidity numeric error, got %v", err)
	}
}

func TestParseSnapshot_OutOfRange(t *testing.T) {
	for _, field := range []string{FieldHumidity, FieldCloudCover, FieldWindDirection} {
		raw := validRaw(t)
		raw[field] = json.RawMessage(`400`)
		if _, err := ParseSnapshot(raw); err == nil {
			t.Errorf("expected range error for %s", field)
		}
	}
}

func TestEngineer(t *testing.T) {
	s := types.WeatherSnapshot{
		Temperature: 25, DewPoint: 18, Humidity: 85, Pressure: 1005,
		WindSpeed: 5, WindGust: 12, CloudCover: 70,
	}
	fv := Engineer(s)

	assertClose(t, "humidity/pressure", fv.HumidityPressureRatio, 85.0/1005.0)
	assertClose(t, "temp-dew", fv.TempDewDiff, 7)
	assertClose(t, "gust ratio", fv.WindGustRatio, 12/5.1)
	assertClose(t, "humidity*cloud", fv.HumidityCloudRatio, 59.5)
	assertClose(t, "cloud pressure", fv.CloudPressureIndex, 700)
	if fv.Humidity != 85 {
		t.Fatal("expected raw fields to be carried through")
	}
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: expected %v, got %v", name, want, got)
	}
}
