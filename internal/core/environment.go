package core

import "strings"

// Environment selects logging and other process-wide defaults.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsProduction() bool {
	return e == Production
}

// DefaultLogLevel is the zerolog level used when LOG_LEVEL is not set.
func (e Environment) DefaultLogLevel() string {
	switch e {
	case Production:
		return "info"
	case Testing:
		return "warn"
	default:
		return "debug"
	}
}

// ParseEnvironment reads APP_ENV. Short forms are accepted; anything unknown
// is Development.
func ParseEnvironment(v string) Environment {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return Production
	case "testing", "test", "ci":
		return Testing
	default:
		return Development
	}
}
