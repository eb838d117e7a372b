package main

import (
	"errors"
	"net/http"

	"github.com/harlequingg/taskd/internal/authz"
	"github.com/harlequingg/taskd/internal/data"
	"github.com/harlequingg/taskd/internal/service"
	"github.com/harlequingg/taskd/internal/validator"
)

func (app *application) writeError(w http.ResponseWriter, r *http.Request, status int, message any) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("X-Content-Type-Options", "nosniff")
	err := writeJSON(w, status, envelope{"error": message}, nil)
	if err != nil {
		app.log.Errorw("write error response", "method", r.Method, "uri", r.URL.RequestURI(), "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (app *application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.log.Errorw("internal error", "method", r.Method, "uri", r.URL.RequestURI(), "error", err)
	app.writeError(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.writeError(w, r, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.writeError(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (app *application) invalidAuthenticationTokenResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	app.writeError(w, r, http.StatusUnauthorized, "invalid or missing authentication token")
}

func (app *application) authenticationRequiredResponse(w http.ResponseWriter, r *http.Request) {
	app.writeError(w, r, http.StatusUnauthorized, "you must be authenticated to access this resource")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request) {
	app.writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
}

// serviceErrorResponse maps errors returned by the services to responses.
func (app *application) serviceErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.Error
	switch {
	case errors.As(err, &verr):
		app.writeError(w, r, http.StatusUnprocessableEntity, verr.Fields)
	case errors.Is(err, data.ErrRecordNotFound):
		app.notFoundResponse(w, r)
	case errors.Is(err, data.ErrEditConflict):
		app.writeError(w, r, http.StatusConflict, "unable to update the record due to an edit conflict, please try again")
	case errors.Is(err, service.ErrInvalidCredentials):
		app.writeError(w, r, http.StatusUnauthorized, "invalid authentication credentials")
	case authz.IsDenied(err):
		reason, _ := authz.DenialReason(err)
		if reason == authz.ReasonAnonymous {
			app.authenticationRequiredResponse(w, r)
			return
		}
		app.writeError(w, r, http.StatusForbidden, "you are not permitted to perform this action")
	default:
		app.serverErrorResponse(w, r, err)
	}
}
