package logging

// Component constants for structured logging
const (
	ComponentStartup  = "startup"
	ComponentDatabase = "database"
	ComponentStorage  = "storage"
	ComponentDither   = "dither"
	ComponentAPI      = "api"
	ComponentJobs     = "jobs"
	ComponentLinks    = "links"
	ComponentPresets  = "presets"
	ComponentLimiter  = "rate-limiter"
	ComponentCleanup  = "cleanup"
	ComponentCLI      = "cli"
)
