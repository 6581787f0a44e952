package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"node-rewards-ingester/internal/candid"
	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/fetcher"
	"node-rewards-ingester/internal/metrics"
	"node-rewards-ingester/internal/publisher"
	"node-rewards-ingester/internal/rewards"
	"node-rewards-ingester/internal/scheduler"
	"node-rewards-ingester/internal/service"
)

// SimulateAlert drives one day cycle through a canned failure so the
// configured alert channel can be checked end to end. Nothing is pushed and
// nothing is recorded.
func (a *App) SimulateAlert(ctx context.Context, outcome string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	canister := "simulated"
	if len(a.Config.IC.RewardsCanisters) > 0 {
		canister = a.Config.IC.RewardsCanisters[0]
	}

	failure, err := simulatedFailure(service.Outcome(outcome), canister)
	if err != nil {
		return err
	}

	svc := service.New(a.Config, nil, service.Deps{
		Endpoints: []service.Endpoint{&staticEndpoint{id: canister, err: failure}},
		Publisher: discardPublisher{},
		Notifier:  notifier,
	}, a.Logger)

	d := day.Of(time.Now()).AddDays(-1)
	res, _ := svc.ProcessDay(ctx, d, scheduler.TriggerManual)
	a.Logger.Info().Stringer("day", d).Str("outcome", string(res.Outcome)).Msg("simulated alert dispatched")
	return nil
}

func simulatedFailure(outcome service.Outcome, canister string) (failure error, err error) {
	switch outcome {
	case service.OutcomeTransportError:
		return &fetcher.TransportError{
			Canister: canister,
			Method:   fetcher.MethodRewardsCalculation,
			Err:      errors.New("simulated transport failure"),
		}, nil
	case service.OutcomeDecodeError:
		return candid.Errorf(candid.MalformedVariant, "$", "simulated decode failure"), nil
	case service.OutcomeError:
		return errors.New("simulated failure"), nil
	default:
		return nil, fmt.Errorf("cannot simulate outcome %q; use transport_error, decode_error or error", outcome)
	}
}

type staticEndpoint struct {
	id  string
	err error
}

func (s *staticEndpoint) CanisterID() string { return s.id }

func (s *staticEndpoint) FetchDay(context.Context, day.Day) (rewards.DailyResult, error) {
	return rewards.DailyResult{}, s.err
}

type discardPublisher struct{}

func (discardPublisher) Ready(context.Context) error { return nil }

func (discardPublisher) Push(context.Context, day.Day, []metrics.Sample) error {
	return publisher.ErrNoSamples
}

var _ service.Endpoint = (*staticEndpoint)(nil)
var _ service.Publisher = discardPublisher{}
