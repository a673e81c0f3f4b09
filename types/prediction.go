package types

import "time"

// Decision is a binary rainfall outcome.
type Decision string

const (
	DecisionYes Decision = "Yes"
	DecisionNo  Decision = "No"
)

// Valid reports whether d is Yes or No.
func (d Decision) Valid() bool {
	return d == DecisionYes || d == DecisionNo
}

// WeatherSnapshot holds the raw meteorological fields submitted for a prediction.
type WeatherSnapshot struct {
	Temperature           float64 `json:"temperature"`
	Humidity              float64 `json:"humidity"`
	Pressure              float64 `json:"pressure"`
	WindSpeed             float64 `json:"wind_speed"`
	CloudCover            float64 `json:"cloud_cover"`
	Visibility            float64 `json:"visibility"`
	DewPoint              float64 `json:"dew_point"`
	UVIndex               float64 `json:"uv_index"`
	SolarRadiation        float64 `json:"solar_radiation"`
	WindDirection         float64 `json:"wind_direction"`
	PrecipitationLastHour float64 `json:"precipitation_last_hour"`
	SoilMoisture          float64 `json:"soil_moisture"`
	EvaporationRate       float64 `json:"evaporation_rate"`
	FeelsLikeTemp         float64 `json:"feels_like_temp"`
	TempChange1h          float64 `json:"temp_change_1h"`
	WindGust              float64 `json:"wind_gust"`
	PressureTendency      float64 `json:"pressure_tendency"`
}

// FeatureVector is the engineered input sent to the inference provider:
// the raw snapshot plus deterministic derived ratios.
type FeatureVector struct {
	WeatherSnapshot

	HumidityPressureRatio float64 `json:"humidity_pressure_ratio"`
	TempDewDiff           float64 `json:"temp_dew_diff"`
	WindGustRatio         float64 `json:"wind_gust_ratio"`
	HumidityCloudRatio    float64 `json:"humidity_cloud_ratio"`
	CloudPressureIndex    float64 `json:"cloud_pressure_index"`
}

// PredictionRecord is the stored result of one prediction. At most one record
// exists per principal, area and UTC day.
type PredictionRecord struct {
	// ID is the unique identifier of the record (KSUID). It is kept stable
	// when a same-day submission replaces the record.
	ID string `json:"id" db:"id"`

	// PrincipalID references the user that submitted the prediction.
	// Records outlive the principal if it is deleted.
	PrincipalID string `json:"user_id" db:"principal_id"`

	// Area is the location label the prediction was made for.
	Area string `json:"area" db:"area"`

	// DayBucket is the UTC calendar day of Timestamp.
	DayBucket time.Time `json:"day" db:"day_bucket"`

	// Timestamp is when the latest submission for the day was stored.
	Timestamp time.Time `json:"timestamp" db:"recorded_at"`

	// Features is the raw weather snapshot the prediction was made from.
	Features WeatherSnapshot `json:"weather_conditions" db:"-"`

	// ModelProbability is the probability of rain returned by the model.
	ModelProbability float64 `json:"model_confidence" db:"model_probability"`

	// ModelDecision is the decision implied by the model.
	ModelDecision Decision `json:"model_decision" db:"model_decision"`

	// FinalDecision is the decision after deterministic overrides.
	FinalDecision Decision `json:"prediction" db:"final_decision"`

	// Overridden is true when FinalDecision differs from ModelDecision.
	Overridden bool `json:"was_overridden" db:"overridden"`

	// RiskSummary is a short description of notable conditions.
	RiskSummary string `json:"risk_summary" db:"risk_summary"`

	// Precautions are ordered suggestions derived from RiskSummary.
	Precautions []string `json:"precautions" db:"-"`
}
