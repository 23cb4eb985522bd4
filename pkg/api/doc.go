// Package api assembles the taskflow REST API.
//
// NewServer builds the directory, role, task, group and activity services on
// a shared database and wires their handlers onto one gorilla/mux router:
//
//	server, err := api.NewServer(ctx, api.Dependencies{
//		DB:     db,
//		Blobs:  blobs,
//		Logger: logger,
//		Auth:   cfg.Auth,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Routes
//
// POST /auth/register and POST /auth/login are public; login is rate limited
// per client IP, in process or through Redis when a client is configured.
// Every other domain route runs behind the bearer token middleware, which
// resolves the caller's identity, and then behind a per-route permission
// guard. /health, /health/live, /health/ready and /metrics are
// unauthenticated.
//
// # Middleware
//
// Requests pass through request ID assignment, structured request logging,
// panic recovery and CORS, in that order, before routing. Prometheus HTTP
// metrics are recorded per route template.
package api
