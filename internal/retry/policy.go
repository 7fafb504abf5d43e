package retry

import (
	"context"
	"errors"

	"github.com/italolelis/media_toolbox/internal/extract"
	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/progress"
)

// RetryProgress is the progress reported while the alternate attempt starts.
const RetryProgress = 50

// Runner performs one extraction attempt.
type Runner interface {
	Run(ctx context.Context, sourceURL, outputTemplate, downloadID string, profile extract.Profile) (*extract.Result, error)
}

// Observer is notified about retry decisions. Telemetry implements it.
type Observer interface {
	RecordRetry(ctx context.Context, outcome string)
}

// Attempt identifies the download being recovered.
type Attempt struct {
	SourceURL      string
	OutputTemplate string
	DownloadID     string
}

// Policy decides whether a failed attempt is retried and runs that single retry.
type Policy struct {
	runner    Runner
	states    extract.StateWriter
	alternate extract.Profile
	observer  Observer
}

// NewPolicy creates a Policy that retries bot-detection failures once with alternate.
// observer may be nil.
func NewPolicy(runner Runner, states extract.StateWriter, alternate extract.Profile, observer Observer) *Policy {
	return &Policy{
		runner:    runner,
		states:    states,
		alternate: alternate,
		observer:  observer,
	}
}

// Recover handles the failure of the first attempt. Bot-detection failures are retried
// exactly once with the alternate profile; everything else fails immediately. Every failure
// path marks the download as errored and returns a *Failure.
func (p *Policy) Recover(ctx context.Context, attempt Attempt, cause error) (*extract.Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("download_id", attempt.DownloadID)

	if !IsBotDetection(failureMessage(cause)) {
		p.record(ctx, "not_eligible")

		return nil, p.fail(attempt.DownloadID, cause)
	}

	logger.Warn("upstream rejected automated access, retrying with alternate profile",
		"profile", p.alternate.Name, "err", cause)

	p.states.Set(attempt.DownloadID, progress.State{Progress: RetryProgress, Status: progress.StatusRetrying})

	res, err := p.runner.Run(ctx, attempt.SourceURL, attempt.OutputTemplate, attempt.DownloadID, p.alternate)
	if err != nil {
		logger.Error("retry attempt failed", "err", err)
		p.record(ctx, "failed")

		return nil, p.fail(attempt.DownloadID, err)
	}

	logger.Info("retry attempt succeeded")
	p.record(ctx, "recovered")

	return res, nil
}

func (p *Policy) fail(downloadID string, err error) *Failure {
	p.states.Set(downloadID, progress.State{Progress: 100, Status: progress.StatusError})

	return &Failure{Category: Classify(failureMessage(err)), Err: err}
}

func (p *Policy) record(ctx context.Context, outcome string) {
	if p.observer != nil {
		p.observer.RecordRetry(ctx, outcome)
	}
}

func failureMessage(err error) string {
	var failed *extract.ExtractionFailedError
	if errors.As(err, &failed) {
		return failed.Message
	}

	return err.Error()
}
