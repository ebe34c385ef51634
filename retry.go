package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// retryExecutor applies bounded retry with backoff around a single operation,
// consulting the circuit breaker and the classifier.
//
// The breaker sees one signal per run: the probe token is acquired before the
// first attempt and resolved with the terminal outcome, so a retry burst
// counts as a single failure against the threshold instead of opening the
// circuit by itself.
type retryExecutor struct {
	classifier *Classifier
	logger     *slog.Logger
}

func newRetryExecutor(classifier *Classifier, logger *slog.Logger) *retryExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryExecutor{
		classifier: classifier,
		logger:     logger,
	}
}

// run executes the operation under the breaker with bounded retries. It
// returns the result, the number of attempts made, and a classified error on
// terminal failure.
func (e *retryExecutor) run(ctx context.Context, service string, breaker *CircuitBreaker, op Operation, opts ExecuteOptions) (any, int, error) {
	done, err := breaker.Allow()
	if err != nil {
		// Fails fast without invoking the operation; the caller's fallback
		// chain decides what happens next.
		return nil, 0, e.classifier.NewRejection(ReasonCircuitOpen, err, opts.Language, service, opts.OperationName)
	}

	var result any
	attempts := 0

	retryErr := retry.Do(ctx, e.backoff(opts), func(ctx context.Context) error {
		// A concurrent run may have opened the circuit between attempts.
		if attempts > 0 && breaker.State() == StateOpen {
			return e.classifier.NewRejection(ReasonCircuitOpen, nil, opts.Language, service, opts.OperationName)
		}

		attempts++
		value, attemptErr := e.invoke(ctx, op, opts.Timeout)
		if attemptErr == nil {
			result = value
			return nil
		}

		classified := e.classifier.NewError(attemptErr, opts.Language, service, opts.OperationName)
		if !opts.Retryable || !classified.Retryable {
			e.logger.Debug("non-retryable failure, giving up",
				"service", service,
				"operation", opts.OperationName,
				"category", classified.Category,
				"attempts", attempts)
			return classified
		}

		e.logger.Debug("retrying after failure",
			"service", service,
			"operation", opts.OperationName,
			"category", classified.Category,
			"attempt", attempts)
		return retry.RetryableError(classified)
	})

	if retryErr != nil {
		done(false)
		return nil, attempts, e.classifier.NewError(retryErr, opts.Language, service, opts.OperationName)
	}

	done(true)
	if attempts > 1 {
		e.logger.Info("operation succeeded after retry",
			"service", service,
			"operation", opts.OperationName,
			"attempts", attempts)
	}
	return result, attempts, nil
}

// backoff builds the delay schedule: constant (linear) by default, doubling
// when the caller opted into exponential backoff.
func (e *retryExecutor) backoff(opts ExecuteOptions) retry.Backoff {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var b retry.Backoff
	switch opts.Backoff {
	case BackoffExponential:
		b = retry.NewExponential(delay)
	default:
		b = retry.NewConstant(delay)
	}
	return retry.WithMaxRetries(opts.MaxRetries, b)
}

// invoke runs one attempt bounded by the per-attempt timeout. The operation
// is dispatched on its own goroutine with a buffered result channel: a call
// that outlives its deadline keeps running un-cancelled in the background
// and its eventual result is discarded.
func (e *retryExecutor) invoke(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		value, err := op(attemptCtx)
		ch <- outcome{value: value, err: err}
	}()

	select {
	case out := <-ch:
		return out.value, out.err
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}
