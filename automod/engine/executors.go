package engine

import (
	"context"
	"fmt"

	"github.com/horizon-devs/warden/automod/schedule"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (eng *Engine) expireRestriction(ctx context.Context, act schedule.Action) error {
	ctx, span := tracer.Start(ctx, "expireRestriction", trace.WithAttributes(
		attribute.String("id", act.ID),
		attribute.String("actor", act.Payload.Actor.String()),
	))
	defer span.End()

	if eng.Moderator == nil {
		return fmt.Errorf("no moderator configured")
	}
	if err := eng.Moderator.LiftRestriction(ctx, act.Payload.Actor, act.Payload.Restriction); err != nil {
		capabilityErrors.WithLabelValues("lift-restriction").Inc()
		return fmt.Errorf("lifting %s for %s: %w", act.Payload.Restriction, act.Payload.Actor, err)
	}
	restrictionsLifted.WithLabelValues(string(act.Payload.Restriction), "expired").Inc()
	eng.Logger.Info("restriction expired", "actor", act.Payload.Actor.String(), "kind", act.Payload.Restriction, "id", act.ID)
	return nil
}

func (eng *Engine) deliverReminder(ctx context.Context, act schedule.Action) error {
	ctx, span := tracer.Start(ctx, "deliverReminder", trace.WithAttributes(attribute.String("id", act.ID)))
	defer span.End()

	if eng.Notifier == nil {
		return fmt.Errorf("no notifier configured")
	}
	if err := eng.Notifier.DeliverReminder(ctx, act.Payload.Actor, act.Payload.Destination, act.Payload.Text); err != nil {
		capabilityErrors.WithLabelValues("deliver-reminder").Inc()
		return fmt.Errorf("delivering reminder to %s: %w", act.Payload.Destination, err)
	}
	remindersDelivered.Inc()
	return nil
}
