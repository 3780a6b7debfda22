package version

import "fmt"

// Name is the product name reported by the API and CLI.
const Name = "ditherbox"

var (
	Version   = "0.1.0"
	BuildTime = "development"
	GitCommit = "unknown"
)

func String() string {
	return fmt.Sprintf("v%s", Version)
}

func Get() map[string]string {
	return map[string]string{
		"name":      Name,
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
	}
}
