// Package auth provides the bearer-token middleware for authenticated routes.
//
// The middleware verifies the access token presented in the Authorization
// header and threads the resulting principal through the request context:
// the tenant id for the query layer and the actor for the identity policy
// guards. Handlers behind it can read the verified claims from the locals.
//
// Usage:
//
//	app.Get("/whoami", authmiddleware.New(sessionService), handler)
package auth
