// Package main provides the entry point for the identity-kit service.
// It starts a daemon that owns the user store and exposes the identity
// operations to hosting applications: tenant-scoped registration, email and
// phone confirmation, profile and password management, role and group
// assignment, session issuing with refresh rotation and a transactional
// outbox for integration events. The application uses gorm for persistence
// and Fiber for the operational web surface (probes, metrics, token
// introspection).
package main
