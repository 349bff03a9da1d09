// Package identity implements the tenant-scoped user management policy layer.
//
// It carries three services in one package: the user lifecycle (registration,
// external identity linking, confirmation, profile), role and group assignment
// with admin-safety invariants, and the activation policy with audited
// rejections. All operations resolve their tenant from the context, mutate
// state in single gorm transactions and append integration events to the
// outbox inside the same commit. Mail, jobs, blob storage, cache, audit and
// session reissue are narrow collaborator interfaces.
package identity
