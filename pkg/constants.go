package shared

const (
	ProjectID = "pulsetrack-project" // Can be overridden by env var in main if needed

	TopicSessionState    = "topic-session-state"
	TopicSubmissionState = "topic-submission-state"

	CollectionSessions = "sessions"
	CollectionChunks   = "chunks"
	CollectionAthletes = "athletes"

	DefaultArtifactBucket = "pulsetrack-artifacts"
)

// Well-known metric stream names. Absence of any of these in a session is
// valid; downstream code treats a missing stream as "unavailable".
const (
	MetricHeartRate = "heart_rate"
	MetricPower     = "power"
	MetricCadence   = "cadence"
	MetricSpeed     = "speed"
	MetricDistance  = "distance"
	MetricAltitude  = "altitude"
	MetricPosition  = "position"
	MetricPaused    = "paused"
)
