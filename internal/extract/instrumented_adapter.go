package extract

import (
	"context"

	"github.com/italolelis/media_toolbox/internal/telemetry"
)

// InstrumentedAdapter wraps Adapter with telemetry.
type InstrumentedAdapter struct {
	adapter   *Adapter
	telemetry *telemetry.Telemetry
}

// NewInstrumentedAdapter creates a new instrumented adapter.
func NewInstrumentedAdapter(adapter *Adapter, tel *telemetry.Telemetry) *InstrumentedAdapter {
	return &InstrumentedAdapter{adapter: adapter, telemetry: tel}
}

// Extension is the file extension of every produced file.
func (a *InstrumentedAdapter) Extension() string {
	return a.adapter.Extension()
}

// Run performs one extraction attempt with telemetry.
func (a *InstrumentedAdapter) Run(ctx context.Context, sourceURL, outputTemplate, downloadID string, profile Profile) (*Result, error) {
	var result *Result

	err := a.telemetry.InstrumentExtraction(ctx, profile.Name, func(ctx context.Context) error {
		var err error

		result, err = a.adapter.Run(ctx, sourceURL, outputTemplate, downloadID, profile)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
