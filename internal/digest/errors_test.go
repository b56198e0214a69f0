package digest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: base, want: KindUnknown},
		{name: "classified", err: NewError(KindRateLimit, "fetch", base), want: KindRateLimit},
		{name: "wrapped", err: fmt.Errorf("outer: %w", HTTPError(KindAuthentication, "fetch", 403, base)), want: KindAuthentication},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestKindClassification(t *testing.T) {
	t.Parallel()

	require.Equal(t, Fatal, KindValidation.Classification())
	require.Equal(t, Fatal, KindAuthentication.Classification())
	require.Equal(t, Fatal, KindContentExtraction.Classification())
	require.Equal(t, Retryable, KindRateLimit.Classification())
	require.Equal(t, Retryable, KindNetwork.Classification())
	require.Equal(t, Fatal, ClassificationOf(errors.New("mystery")))
}

func TestClassifiedErrorMessageAndUnwrap(t *testing.T) {
	t.Parallel()

	err := HTTPError(KindNetwork, "deliver", 503, ErrUntrustedWebhook)
	require.Equal(t, "deliver: network (status 503): untrusted webhook url", err.Error())
	require.ErrorIs(t, err, ErrUntrustedWebhook)
	require.True(t, IsKind(err, KindNetwork))
}

func TestRunReportCounters(t *testing.T) {
	t.Parallel()

	report := RunReport{Outcomes: []Outcome{
		{URL: "a", Delivered: true},
		{URL: "b", Skipped: true},
		{URL: "c"},
	}}
	require.Equal(t, 1, report.Delivered())
	require.Equal(t, 1, report.Failed())
	require.Equal(t, RunStatusPartial, report.Status())
	require.Equal(t, RunStatusSucceeded, RunReport{}.Status())
	require.Equal(t, RunStatusFailed, RunReport{Outcomes: []Outcome{{URL: "x"}}}.Status())
}
