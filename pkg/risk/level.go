package risk

import "fmt"

// Level is the discrete risk classification of an assessment.
type Level string

// Levels in ascending order of severity.
const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Levels lists every level from least to most severe.
var Levels = []Level{LevelLow, LevelModerate, LevelHigh, LevelCritical}

// ParseLevel converts s to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelLow, LevelModerate, LevelHigh, LevelCritical:
		return Level(s), nil
	default:
		return "", fmt.Errorf("risk: invalid level %q", s)
	}
}

// Rank orders levels by severity: LOW=0 up to CRITICAL=3. Unknown levels rank -1.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 0
	case LevelModerate:
		return 1
	case LevelHigh:
		return 2
	case LevelCritical:
		return 3
	default:
		return -1
	}
}

func (l Level) String() string { return string(l) }

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
