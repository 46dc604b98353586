package source

import (
	"context"
	"fmt"
	"time"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/pkg/risk"
)

// Sample is one vital-sign snapshot read from a source.
type Sample struct {
	SourceID  string
	PatientID string
	ReadAt    time.Time
	Vitals    risk.VitalSample
}

// Source is the common interface implemented by every vital-sign feed.
type Source interface {
	// Read returns the next sample. A failed read leaves the source usable.
	Read(ctx context.Context) (Sample, error)
}

// New returns the appropriate Source for the given configuration.
func New(src config.Source) (Source, error) {
	switch src.Type {
	case config.TypeSimulator:
		return NewSimulator(src)
	case config.TypePrometheus:
		client, err := buildHTTPClient(src)
		if err != nil {
			return nil, fmt.Errorf("source %q: build http client: %w", src.ID, err)
		}
		return &Prometheus{src: src, client: client}, nil
	default:
		return nil, fmt.Errorf("source: unsupported type %q", src.Type)
	}
}
