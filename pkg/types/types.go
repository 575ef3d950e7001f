// Package types defines the domain model shared by every stage of the
// recording pipeline: raw sensor readings, durable stream chunks, the
// aggregated and compressed per-metric series, and the computed activity
// summary handed to the uploader.
package types

import "time"

// DataType tags a stream's sample representation. Scalar floats are the
// only type that supports numeric reduction (min/max/avg); booleans and
// coordinate pairs are carried through untouched.
type DataType string

const (
	DataTypeFloat DataType = "float"
	DataTypeBool  DataType = "bool"
	DataTypeCoord DataType = "coord"
)

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lon float64 `json:"lon" firestore:"lon"`
}

// Value is the tagged union of sample payloads a sensor can emit.
type Value interface {
	DataType() DataType
}

// Float is a scalar sample (heart rate, power, speed, ...).
type Float float64

// Bool is a boolean sample (e.g. the paused marker stream).
type Bool bool

// Coord is a positional sample.
type Coord Coordinate

func (Float) DataType() DataType { return DataTypeFloat }
func (Bool) DataType() DataType  { return DataTypeBool }
func (Coord) DataType() DataType { return DataTypeCoord }

// SensorReading is a single tagged sample from the device layer. It is
// ephemeral: the ingestion buffer either folds it into a chunk or rejects it.
type SensorReading struct {
	Metric    string
	Value     Value
	Timestamp time.Time
	DeviceID  string
	Suspect   bool // quality flag set by the device layer
}

// SessionState is the lifecycle state of a recording session.
type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionReady     SessionState = "ready"
	SessionRecording SessionState = "recording"
	SessionPaused    SessionState = "paused"
	SessionDiscarded SessionState = "discarded"
	SessionFinished  SessionState = "finished"
)

// Terminal reports whether no further lifecycle transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionDiscarded || s == SessionFinished
}

// ActivityKind classifies the session for downstream consumers.
type ActivityKind string

const (
	ActivityRide ActivityKind = "ride"
	ActivityRun  ActivityKind = "run"
	ActivitySwim ActivityKind = "swim"
	ActivityHike ActivityKind = "hike"
)

// RecordingSession is the durable record of one training session. Created
// on start, mutated by ingestion checkpoints and state transitions, and
// deleted only after the remote upload is acknowledged.
type RecordingSession struct {
	ID                 string       `firestore:"id"`
	OwnerID            string       `firestore:"ownerId"`
	StartedAt          *time.Time   `firestore:"startedAt"`
	FinishedAt         *time.Time   `firestore:"finishedAt"`
	State              SessionState `firestore:"state"`
	Kind               ActivityKind `firestore:"kind"`
	PlanID             string       `firestore:"planId,omitempty"`
	TotalElapsedSec    float64      `firestore:"totalElapsedSec"`
	MovingSec          float64      `firestore:"movingSec"`
	LastCheckpointAt   time.Time    `firestore:"lastCheckpointAt"`
	DataPointsRecorded int          `firestore:"dataPointsRecorded"`
}

// StreamChunk is a bounded durable page of consecutive samples for one
// metric. Immutable once flushed; chunks concatenated in index order
// reproduce the exact full-session series.
type StreamChunk struct {
	SessionID   string   `firestore:"sessionId"`
	Metric      string   `firestore:"metric"`
	Type        DataType `firestore:"type"`
	Index       int      `firestore:"index"`
	Values      []byte   `firestore:"values"`
	Timestamps  []byte   `firestore:"timestamps"`
	SampleCount int      `firestore:"sampleCount"`
}

// SummaryStats are the numeric reductions of a float stream. Non-float
// streams never carry stats.
type SummaryStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// AggregatedStream is the reconstructed full-resolution series for one
// metric. Transient: rebuilt from chunks each time it is needed. Exactly
// one of Floats/Bools/Coords is populated, matching Type.
type AggregatedStream struct {
	Metric      string
	Type        DataType
	Floats      []float64
	Bools       []bool
	Coords      []Coordinate
	Timestamps  []time.Time
	SampleCount int
	Stats       *SummaryStats // float streams only
}

// CompressedStream is the transport form of one aggregated stream: binary
// serialized, zstd compressed, base64 encoded. Summary stats are carried
// alongside so consumers can read them without decompressing.
type CompressedStream struct {
	Metric        string        `json:"metric"`
	Type          DataType      `json:"type"`
	Values        string        `json:"values"`
	Timestamps    string        `json:"timestamps"`
	SampleCount   int           `json:"sample_count"`
	OriginalBytes int           `json:"original_bytes"`
	Stats         *SummaryStats `json:"stats,omitempty"`
}

// ZoneDuration is time accumulated inside one intensity band.
type ZoneDuration struct {
	Label   string  `json:"label"`
	Seconds float64 `json:"seconds"`
}

// ActivitySummary is the computed record of a finished session. Immutable
// once produced, except the free-text Name and Notes which stay editable
// until upload. Derived metrics that could not be computed are nil,
// never zero.
type ActivitySummary struct {
	SessionID  string       `json:"session_id"`
	Name       string       `json:"name"`
	Notes      string       `json:"notes"`
	Kind       ActivityKind `json:"kind"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`

	ElapsedSec float64 `json:"elapsed_sec"`
	MovingSec  float64 `json:"moving_sec"`

	AvgHeartRate *float64 `json:"avg_heart_rate,omitempty"`
	MaxHeartRate *float64 `json:"max_heart_rate,omitempty"`
	AvgPower     *float64 `json:"avg_power,omitempty"`
	MaxPower     *float64 `json:"max_power,omitempty"`
	AvgCadence   *float64 `json:"avg_cadence,omitempty"`
	AvgSpeed     *float64 `json:"avg_speed,omitempty"`
	MaxSpeed     *float64 `json:"max_speed,omitempty"`
	DistanceM    *float64 `json:"distance_m,omitempty"`

	NormalizedPower  *float64 `json:"normalized_power,omitempty"`
	IntensityFactor  *float64 `json:"intensity_factor,omitempty"`
	VariabilityIndex *float64 `json:"variability_index,omitempty"`
	TrainingStress   *float64 `json:"training_stress,omitempty"`
	StressSource     string   `json:"stress_source,omitempty"` // "power" or "hrtss"
	TRIMP            *float64 `json:"trimp,omitempty"`

	PowerZones []ZoneDuration `json:"power_zones,omitempty"`
	HRZones    []ZoneDuration `json:"hr_zones,omitempty"`

	EfficiencyFactor *float64 `json:"efficiency_factor,omitempty"`
	DecouplingPct    *float64 `json:"decoupling_pct,omitempty"`
	PowerHRRatio     *float64 `json:"power_hr_ratio,omitempty"`
	PowerWeightRatio *float64 `json:"power_weight_ratio,omitempty"`

	ElevationGainM *float64 `json:"elevation_gain_m,omitempty"`
	ElevationLossM *float64 `json:"elevation_loss_m,omitempty"`
	AvgGradePct    *float64 `json:"avg_grade_pct,omitempty"`
	GainPerKm      *float64 `json:"gain_per_km,omitempty"`

	Calories     *float64 `json:"calories,omitempty"`
	CalorieModel string   `json:"calorie_model,omitempty"` // "power-work", "keytel-hr" or "met"
}

// AthleteProfile is read-only input from the profile provider.
type AthleteProfile struct {
	WeightKg    float64   `firestore:"weightKg"`
	FTPWatts    float64   `firestore:"ftpWatts"`
	ThresholdHR float64   `firestore:"thresholdHr"`
	BirthDate   time.Time `firestore:"birthDate"`
	Sex         string    `firestore:"sex"` // "male" or "female"
}

// Age returns whole years at the given instant.
func (p *AthleteProfile) Age(at time.Time) int {
	years := at.Year() - p.BirthDate.Year()
	if at.YearDay() < p.BirthDate.YearDay() {
		years--
	}
	return years
}

// UploadPayload is the finished package handed to the remote endpoint.
type UploadPayload struct {
	Summary *ActivitySummary   `json:"summary"`
	Streams []CompressedStream `json:"streams"`
}

// UploadAck is the remote endpoint's acknowledgement. Local raw data may
// be deleted only once an ack with a remote id has been received.
type UploadAck struct {
	RemoteID string `json:"remote_id"`
}
