package delivery

import (
	"context"
	"fmt"
	"net/http"

	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/resilience"
)

// Deliver formats the message and posts it through sink under ex. Invalid
// input fails fatally without touching the network.
func Deliver(ctx context.Context, ex *resilience.Executor, sink digest.DeliverySink, url, title, summary string) digest.Outcome {
	outcome := digest.Outcome{URL: url, Title: title, Summary: summary, Stage: digest.StageDeliver}

	message, err := Format(title, summary, url)
	if err != nil {
		return failed(outcome, 0, err)
	}

	attempts, err := ex.Do(ctx, func(ctx context.Context) error {
		status, err := sink.Post(ctx, message)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return digest.NewError(digest.KindNetwork, "deliver", err)
		}
		return statusError(status)
	})
	if err != nil {
		return failed(outcome, attempts, err)
	}
	outcome.Attempts = attempts
	outcome.Delivered = true
	return outcome
}

func failed(outcome digest.Outcome, attempts int, err error) digest.Outcome {
	outcome.Attempts = attempts
	outcome.LastError = err.Error()
	outcome.Classification = digest.ClassificationOf(err)
	return outcome
}

func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return digest.HTTPError(digest.KindRateLimit, "deliver", status, fmt.Errorf("webhook rate limited"))
	case status >= http.StatusInternalServerError:
		return digest.HTTPError(digest.KindNetwork, "deliver", status, fmt.Errorf("webhook server error"))
	default:
		return digest.HTTPError(digest.KindValidation, "deliver", status, fmt.Errorf("webhook rejected message"))
	}
}
