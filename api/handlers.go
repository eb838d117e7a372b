package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/harlequingg/taskd/internal/data"
	"github.com/harlequingg/taskd/internal/service"
	"github.com/harlequingg/taskd/internal/validator"
)

func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	healthCheck := envelope{
		"status":      "available",
		"environment": app.config.env,
		"version":     version,
	}
	err := writeJSON(w, http.StatusOK, healthCheck, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) registerUserHandler(w http.ResponseWriter, r *http.Request) {
	var input service.UserInput
	err := readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	u, err := app.users.Create(r.Context(), input)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/v1/users/%d", u.ID))
	err = writeJSON(w, http.StatusCreated, envelope{"user": u}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) showCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	err := writeJSON(w, http.StatusOK, envelope{"user": getUserFromRequest(r)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) createAuthenticationTokenHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	err := readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	v := validator.New()
	v.Check(input.Username != "", "username", "must be provided")
	v.Check(input.Password != "", "password", "must be provided")
	if !v.Valid() {
		app.serviceErrorResponse(w, r, v.Err())
		return
	}

	u, err := app.users.Authenticate(r.Context(), input.Username, input.Password)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	token, expiry, err := app.issueToken(u, time.Now())
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusCreated, envelope{"authentication_token": envelope{
		"token":  token,
		"expiry": expiry,
	}}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var input data.TaskRequest
	err := readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	t, err := app.tasks.Create(r.Context(), input)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/v1/tasks/%d", t.ID))
	err = writeJSON(w, http.StatusCreated, envelope{"task": t}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	var f data.TaskFilter
	var err error
	v := validator.New()
	for key, dst := range map[string]*int64{"assignee_id": &f.AssigneeID, "creator_id": &f.CreatorID} {
		*dst, err = readInt(r, key, 0)
		v.Check(err == nil, key, "must be a non-negative integer")
	}
	limit, err := readInt(r, "limit", 20)
	v.Check(err == nil && limit >= 1 && limit <= 100, "limit", "must be between 1 and 100")
	offset, err := readInt(r, "offset", 0)
	v.Check(err == nil, "offset", "must be a non-negative integer")
	if !v.Valid() {
		app.serviceErrorResponse(w, r, v.Err())
		return
	}
	f.Limit = int(limit)
	f.Offset = int(offset)

	tasks, err := app.tasks.List(r.Context(), f)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	err = writeJSON(w, http.StatusOK, envelope{"tasks": tasks}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) showTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	t, err := app.tasks.GetTaskByID(r.Context(), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	if t == nil {
		app.notFoundResponse(w, r)
		return
	}

	err = writeJSON(w, http.StatusOK, envelope{"task": t}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) updateTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	var input data.TaskRequest
	err = readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	t, err := app.tasks.Update(r.Context(), id, input)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, envelope{"task": t}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	err = app.tasks.Delete(r.Context(), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, envelope{"message": "task successfully deleted"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
