package models

// TenantScoped is implemented by models that carry a tenant_id column.
// The query evaluator filters any such model by the tenant taken from the
// request context unless the specification opts out explicitly, so
// cross-tenant reads require a deliberate decision, never an omission.
type TenantScoped interface {
	// TenantColumn returns the qualified column holding the owning tenant id.
	TenantColumn() string
}
