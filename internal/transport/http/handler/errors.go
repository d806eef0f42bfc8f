package handler

const (
	errInternalServer  = "Internal server error"
	errJobNotFound     = "Job not found"
	errInvalidJob      = "Job is missing a required field"
	errInvalidSelector = "At least one selector field is required"
)
