// Package reconcile applies verified webhook events to booking records.
// Events form a closed tagged union over the scheduling and payment kinds;
// the reconciler is an exhaustive match over that union, applying guarded
// idempotent status transitions and recording anything it cannot correlate
// instead of dropping it.
package reconcile
