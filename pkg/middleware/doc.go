// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// AuthMiddleware reads "Authorization: Bearer <token>", resolves the caller's
// identity and stores it in the request context for the rbac guards and the
// handlers. Requests that cannot be resolved never reach a handler.
//
//	authn := middleware.NewAuthMiddleware(resolver)
//	protected.Use(authn.Handler)
//
// RateLimitMiddleware limits requests per client IP through a Limiter:
// RateLimiter (in-process token bucket) for single instances, or
// DistributedRateLimiter (Redis fixed window) when instances share the limit.
// Limiter errors fail open.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.LoginRateLimitConfig(), "")
//	login := middleware.NewRateLimitMiddleware(limiter, "login", metrics).Handler
package middleware
