package domain

import "errors"

var (
	// ErrUnknownTenant rejects work referencing an empty or unregistered
	// tenant. Never retried; the caller must fix its input.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrRegistryUnavailable means the tenant registry lookup itself failed.
	// Treated as a hard failure of bind, not as an unknown tenant.
	ErrRegistryUnavailable = errors.New("tenant registry unavailable")

	// ErrNoTenantContext flags a store operation attempted without a bound
	// scope. Always a programming error, never a silent "all tenants" read.
	ErrNoTenantContext = errors.New("no tenant context bound")

	// ErrTenantMismatch flags a write whose row tenant differs from the
	// bound scope.
	ErrTenantMismatch = errors.New("row tenant does not match bound scope")

	// ErrQueueUnavailable surfaces queue transport failure to the caller as
	// request failure.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrNoWork signals a dequeue timeout. Expected, not an error condition.
	ErrNoWork = errors.New("no work available")
)
