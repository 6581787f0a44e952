package service

import (
	"context"
	"errors"

	"node-rewards-ingester/internal/candid"
	"node-rewards-ingester/internal/fetcher"
	"node-rewards-ingester/internal/publisher"
	"node-rewards-ingester/internal/rewards"
)

// ErrLocked means another instance holds the ingest lock.
var ErrLocked = errors.New("ingest lock held elsewhere")

// Outcome classifies a finished day cycle.
type Outcome string

const (
	OutcomePushed         Outcome = "pushed"
	OutcomeNoData         Outcome = "no_data"
	OutcomeNoSamples      Outcome = "no_samples"
	OutcomeDecodeError    Outcome = "decode_error"
	OutcomeTransportError Outcome = "transport_error"
	OutcomePushError      Outcome = "push_error"
	OutcomeLocked         Outcome = "locked"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeError          Outcome = "error"
)

// Skipped reports outcomes that are expected and carry no alarm.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeNoData, OutcomeNoSamples, OutcomeLocked:
		return true
	}
	return false
}

// Alerting reports outcomes that page someone.
func (o Outcome) Alerting() bool {
	switch o {
	case OutcomeDecodeError, OutcomeTransportError, OutcomePushError, OutcomeError:
		return true
	}
	return false
}

// Classify maps a day-cycle error onto an Outcome.
func Classify(err error) Outcome {
	var (
		decodeErr    *candid.DecodeError
		transportErr *fetcher.TransportError
		pushErr      *publisher.PushError
	)
	switch {
	case err == nil:
		return OutcomePushed
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, rewards.ErrNoData):
		return OutcomeNoData
	case errors.Is(err, publisher.ErrNoSamples):
		return OutcomeNoSamples
	case errors.Is(err, ErrLocked):
		return OutcomeLocked
	case errors.As(err, &decodeErr):
		return OutcomeDecodeError
	case errors.As(err, &transportErr):
		return OutcomeTransportError
	case errors.As(err, &pushErr):
		return OutcomePushError
	default:
		return OutcomeError
	}
}
