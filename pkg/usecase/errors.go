package usecase

// Context keys for error values
const (
	SampleNameKey = "sample_name"
	AttemptKey    = "attempt"
)
