package auth

import (
	"context"

	"github.com/platinummonkey/taskflow/pkg/observability"
)

type instrumentedInvalidator struct {
	inner   Invalidator
	metrics *observability.Metrics
}

// InstrumentInvalidator counts invalidations by scope and logs failures.
// Errors are still returned so callers can decide whether to care.
func InstrumentInvalidator(inner Invalidator, metrics *observability.Metrics) Invalidator {
	if inner == nil {
		inner = NoopCache{}
	}
	return &instrumentedInvalidator{inner: inner, metrics: metrics}
}

func (i *instrumentedInvalidator) InvalidateUser(ctx context.Context, userID int64) error {
	return i.record(ctx, "user", userID, i.inner.InvalidateUser(ctx, userID))
}

func (i *instrumentedInvalidator) InvalidateRole(ctx context.Context, roleID int64) error {
	return i.record(ctx, "role", roleID, i.inner.InvalidateRole(ctx, roleID))
}

func (i *instrumentedInvalidator) InvalidateOrganization(ctx context.Context, orgID int64) error {
	return i.record(ctx, "organization", orgID, i.inner.InvalidateOrganization(ctx, orgID))
}

func (i *instrumentedInvalidator) record(ctx context.Context, scope string, id int64, err error) error {
	i.metrics.RecordInvalidation(scope)
	if err != nil {
		observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"scope": scope,
			"id":    id,
		}).Warn("identity cache invalidation failed")
	}
	return err
}
