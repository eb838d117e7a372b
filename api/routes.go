package main

import (
	"context"
	"net/http"
)

// routes builds the handler tree. Background work started here stops when
// ctx is done.
func (app *application) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/healthcheck", app.healthCheckHandler)

	mux.HandleFunc("POST /v1/users", app.registerUserHandler)
	mux.HandleFunc("GET /v1/users/me", app.requireAuthenticatedUser(app.showCurrentUserHandler))
	mux.HandleFunc("POST /v1/tokens/authentication", app.createAuthenticationTokenHandler)

	mux.HandleFunc("POST /v1/tasks", app.createTaskHandler)
	mux.HandleFunc("GET /v1/tasks", app.listTasksHandler)
	mux.HandleFunc("GET /v1/tasks/{id}", app.showTaskHandler)
	mux.HandleFunc("PUT /v1/tasks/{id}", app.updateTaskHandler)
	mux.HandleFunc("DELETE /v1/tasks/{id}", app.deleteTaskHandler)

	var handler http.Handler = app.authenticate(mux)
	handler = app.enableCORS(handler)
	if app.config.limiter.enabled {
		handler = app.rateLimit(ctx, handler)
	}
	handler = app.logRequest(handler)
	handler = app.requestID(handler)
	return app.recoverPanic(handler)
}
