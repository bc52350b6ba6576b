package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"pantry/internal/common"
	"pantry/internal/logging"
	"pantry/internal/server/query"
)

// Initializer populates one aspect of the request context before
// dispatch: store handles, the authenticated user, util flags, the
// access-check closure. Initializers run in registration order and any
// error aborts the request.
type Initializer func(rc *RequestContext, r *http.Request) error

// API is the HTTP entry point. It routes /<service>/<tokens...> to the
// registered services and owns the response envelope: CORS headers,
// JSON bodies, the error object and empty 204 responses.
type API struct {
	log      logging.Logger
	services map[string]*Service
	inits    []Initializer
}

func NewAPI(log logging.Logger) *API {
	return &API{log: log, services: map[string]*Service{}}
}

// RegisterService mounts a service under its URL prefix.
func (a *API) RegisterService(name string, s *Service) {
	a.services[name] = s
}

// RegisterInitializer appends a context initializer.
func (a *API) RegisterInitializer(init Initializer) {
	a.inits = append(a.inits, init)
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a.log.Info(ctx, "request", "method", r.Method, "url", r.URL.String())

	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Content-Type", "application/json")

	// Preflight requests skip the initializers entirely.
	if r.Method == http.MethodOptions {
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Credentials", "false")
		header.Set("Access-Control-Max-Age", "86400")
		header.Set("Access-Control-Allow-Headers",
			"X-Requested-With, X-HTTP-Method-Override, Content-Type, Accept, X-Authorization, X-Admin")
		w.WriteHeader(http.StatusOK)
		return
	}

	rc := &RequestContext{Params: map[string]string{}}

	status, result := a.handle(rc, r)

	if rc.Util != nil {
		if throttle, _ := rc.Util.Get("throttle"); throttle {
			time.Sleep(time.Duration(500+rand.Intn(500)) * time.Millisecond)
		}
	}

	if status == http.StatusNoContent {
		header.Del("Content-Type")
		w.WriteHeader(status)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		a.log.Error(ctx, "encoding response", "error", err)
		status = http.StatusInternalServerError
		payload, _ = json.Marshal(errorBody{Code: status, Message: "Server Error"})
	}
	w.WriteHeader(status)
	w.Write(payload)
}

// handle resolves the request to a status and a response value. Every
// failure path, including panics in handlers, ends up as an error body.
func (a *API) handle(rc *RequestContext, r *http.Request) (status int, result any) {
	ctx := r.Context()

	defer func() {
		if rec := recover(); rec != nil {
			a.log.Error(ctx, "handler panic", "panic", fmt.Sprint(rec))
			status = http.StatusInternalServerError
			result = errorBody{Code: status, Message: "Server Error"}
		}
	}()

	serviceName, tokens := splitPath(r.URL.Path)
	q := query.Parse(r.URL.RawQuery)
	body := parseBody(r.Body)

	for _, init := range a.inits {
		if err := init(rc, r); err != nil {
			return a.errorResponse(ctx, err)
		}
	}

	service, ok := a.services[serviceName]
	if !ok {
		a.log.Warn(ctx, "missing service", "service", serviceName)
		return http.StatusBadRequest, errorBody{
			Code:    http.StatusBadRequest,
			Message: fmt.Sprintf("Service %q is not supported", serviceName),
		}
	}

	out, handled, err := service.Dispatch(ctx, rc, r.Method, tokens, q, body)
	if err != nil {
		return a.errorResponse(ctx, err)
	}
	if !handled || out == nil {
		return http.StatusNoContent, nil
	}
	return http.StatusOK, out
}

func (a *API) errorResponse(ctx context.Context, err error) (int, any) {
	var se *common.Error
	if errors.As(err, &se) {
		return se.Status(), errorBody{Code: se.Status(), Message: se.Message}
	}
	a.log.Error(ctx, "handler error", "error", err)
	return http.StatusInternalServerError, errorBody{Code: http.StatusInternalServerError, Message: "Server Error"}
}

// splitPath returns the service name and the remaining path segments.
func splitPath(path string) (string, []string) {
	var tokens []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}

// parseBody decodes the JSON body; anything unparseable is kept as the
// raw string, so handlers can still inspect it.
func parseBody(r io.Reader) any {
	raw, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}
