// Package readiness decides whether started containers are usable before a job proceeds.
package readiness

import (
	"strconv"
	"strings"
)

// Signal is the health state derived from a health-status query.
type Signal int

const (
	// SignalNoProbe indicates the container declares no health probe.
	SignalNoProbe Signal = iota
	// SignalHealthy indicates the engine reports a passing probe.
	SignalHealthy
	// SignalUnhealthy indicates any other probe state, including "starting".
	SignalUnhealthy
)

// HealthyToken is the only probe status treated as success.
const HealthyToken = "healthy"

// String returns the string representation of the signal.
func (s Signal) String() string {
	switch s {
	case SignalNoProbe:
		return "no-probe"
	case SignalHealthy:
		return "healthy"
	case SignalUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ParseHealth interprets the output of a health-status query.
// Blank output means no probe is declared; only an exact "healthy" passes.
func ParseHealth(lines []string) Signal {
	status := joinOutput(lines)
	switch status {
	case "":
		return SignalNoProbe
	case HealthyToken:
		return SignalHealthy
	default:
		return SignalUnhealthy
	}
}

// ParseExitCode interprets the output of an exit-code query.
// ok is false when the output is empty or not an integer.
func ParseExitCode(lines []string) (code int, ok bool) {
	code, err := strconv.Atoi(joinOutput(lines))
	if err != nil {
		return 0, false
	}
	return code, true
}

func joinOutput(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
