package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/putto11262002/huddle/pkg/logger"
	"go.uber.org/zap"
)

var DefaultError = JsonError{
	Status:  http.StatusInternalServerError,
	Message: "internal server error",
}

// Router is a wrapper around chi.Router that provides error handling.
// Handlers can return an error that will then get mapped to an error response.
// Error mappers can be registers for specific errors to provide custom error responses.
type Router struct {
	chi.Router
	errorMappers map[error]ErrorMapper
	defaultError JsonError
	logger       *zap.Logger
}

func New(opts ...RouterOption) *Router {
	return new(chi.NewRouter(), opts...)
}

type RouterOption func(*Router)

func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithDefaultError(err JsonError) RouterOption {
	return func(r *Router) {
		r.defaultError = err
	}
}

func new(chiRouter chi.Router, opts ...RouterOption) *Router {
	router := &Router{
		Router:       chiRouter,
		errorMappers: make(map[error]ErrorMapper),
		defaultError: DefaultError,
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(router)
	}
	return router
}

// derive returns a router over chiRouter sharing the error handling of a.
func (a *Router) derive(chiRouter chi.Router) *Router {
	return &Router{
		Router:       chiRouter,
		errorMappers: a.errorMappers,
		defaultError: a.defaultError,
		logger:       a.logger,
	}
}

// HandlerFunc is a function that handles an HTTP request and returns an error.
// When the handler fails to handler to request it should not write anything to the response writer
// instead it should return an error that will be mapped to an error response.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorMapper is a function that maps go errors to API errors.
type ErrorMapper func(error) JsonError

// RegisterErrorMapper maps every error matching err with errors.Is through fn.
func (a *Router) RegisterErrorMapper(err error, fn ErrorMapper) {
	a.errorMappers[err] = fn
}

// mapError maps a go error to an API error.
// A JsonError anywhere in the chain of err wins, so handlers can attach the cause to the response error.
// The mapping works as following:
//   - if the error is already a JsonError it will be returned as is.
//   - if the error matches a registered error the mapper of that error is used.
//   - if no error mapper is found the default error will be returned.
func (a *Router) mapError(err error) JsonError {
	var apiErr JsonError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	for target, fn := range a.errorMappers {
		if errors.Is(err, target) {
			return fn(err)
		}
	}
	return a.defaultError
}

func (a *Router) handleWithErr(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err != nil {
			handlerFn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
			logger.FromContext(r.Context(), a.logger).Error(err.Error(), zap.String("handler", handlerFn.Name()),
				zap.String("method", r.Method), zap.String("uri", r.URL.RequestURI()))
			resError := a.mapError(err)
			WriteJSON(w, resError.StatusCode(), resError)
		}
	}
}

// WriteJSON writes v as the JSON body of a response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (a *Router) Get(path string, h HandlerFunc) {
	a.Router.Get(path, a.handleWithErr(h))
}

func (a *Router) Post(path string, h HandlerFunc) {
	a.Router.Post(path, a.handleWithErr(h))
}

func (a *Router) Put(path string, h HandlerFunc) {
	a.Router.Put(path, a.handleWithErr(h))
}

func (a *Router) Delete(path string, h HandlerFunc) {
	a.Router.Delete(path, a.handleWithErr(h))
}

func (a *Router) Route(path string, f func(r *Router)) {
	a.Router.Route(path, func(r chi.Router) {
		f(a.derive(r))
	})
}

func (a *Router) Group(f func(r *Router)) *Router {
	ch := a.Router.Group(func(r chi.Router) {
		f(a.derive(r))
	})
	return a.derive(ch)
}

func (a *Router) With(middlewares ...func(http.Handler) http.Handler) *Router {
	return a.derive(a.Router.With(middlewares...))
}
