// Package server exposes a query runtime over HTTP. A POST body carries a
// single request object {"query": ..., "context": ...} or an array of them
// (a batch); the response mirrors the request shape.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/AnishGupta/deepr/executor"
	eventbus "github.com/AnishGupta/deepr/internal/eventbus"
	events "github.com/AnishGupta/deepr/internal/events"
	reqid "github.com/AnishGupta/deepr/internal/reqid"
	"github.com/AnishGupta/deepr/parser"
)

// Handler is an http.Handler that parses query requests, evaluates them
// against a fixed root target, and formats JSON responses.
type Handler struct {
	root any
	opt  Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Parser controls query compilation. Nil uses parser defaults.
	Parser *parser.Options

	// Executor supplies the authorizer, error handler, and default call
	// context for evaluation. The request's "context" member, when present,
	// replaces the call context for that request.
	Executor *executor.Options
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithParserOptions(p *parser.Options) Option {
	return func(o *Options) { o.Parser = p }
}
func WithExecutorOptions(x *executor.Options) Option {
	return func(o *Options) { o.Executor = x }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a query HTTP handler evaluating against root.
func New(root any, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{root: root, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	w.Header().Set("Deepr-Request-Id", rid)

	status := http.StatusOK
	queries := 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Queries: queries, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorBody(errdefs.ErrInvalidArgument, "method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, perr := parseRequest(r, h.opt.MaxBodyBytes)
	if perr != nil {
		status = http.StatusBadRequest
		if perr.message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorBody(errdefs.ErrInvalidArgument, perr.message), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		queries = len(batch)
		out := make([]any, len(batch))
		for i := range batch {
			out[i] = h.executeOne(ctx, batch[i])
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	queries = 1
	res := h.executeOne(ctx, req)
	if body, ok := res.(responseBody); ok && body.Error != nil {
		status = statusFor(body.Error.err)
	}
	writeJSON(w, status, res, h.opt.Pretty)
}

// executeOne evaluates a single request and returns its response body.
func (h *Handler) executeOne(ctx context.Context, req request) any {
	query, err := parser.DecodeQuery(req.Query)
	if err != nil {
		return errorBody(err, "invalid query: "+err.Error())
	}
	expr, err := parser.Parse(query, h.opt.Parser)
	if err != nil {
		return errorBody(err, err.Error())
	}

	xopts := executor.Options{}
	if h.opt.Executor != nil {
		xopts = *h.opt.Executor
	}
	if req.Context != nil {
		xopts.Context = req.Context
	}

	start := time.Now()
	eventbus.Publish(ctx, events.QueryStart{Query: query})
	result, err := executor.Invoke(ctx, h.root, expr, &xopts)
	eventbus.Publish(ctx, events.QueryFinish{Query: query, Err: err, Duration: time.Since(start)})
	if err != nil {
		log.G(ctx).WithError(err).Debug("query evaluation failed")
		return errorBody(err, err.Error())
	}
	return responseBody{Result: result}
}

// ------------------ Request parsing ------------------

type request struct {
	Query   json.RawMessage `json:"query"`
	Context any             `json:"context,omitempty"`
}

type badRequest struct{ message string }

func parseRequest(r *http.Request, maxBody int64) (request, []request, *badRequest) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return request{}, nil, &badRequest{"unsupported Content-Type"}
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return request{}, nil, &badRequest{"failed to read body"}
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return request{}, nil, &badRequest{errBodyTooLargeMessage}
	}

	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var arr []request
		if err := json.Unmarshal(body, &arr); err != nil {
			return request{}, nil, &badRequest{"invalid JSON"}
		}
		if len(arr) == 0 {
			return request{}, nil, &badRequest{"empty batch"}
		}
		for i := range arr {
			if len(arr[i].Query) == 0 {
				return request{}, nil, &badRequest{"missing 'query'"}
			}
		}
		return request{}, arr, nil
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return request{}, nil, &badRequest{"invalid JSON"}
	}
	if len(req.Query) == 0 {
		return request{}, nil, &badRequest{"missing 'query'"}
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

type responseError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	err     error
}

type responseBody struct {
	Result any            `json:"result,omitempty"`
	Error  *responseError `json:"error,omitempty"`
}

// MarshalJSON keeps a null result present on success so a successful
// evaluation of an undefined value is distinguishable from an error body.
func (b responseBody) MarshalJSON() ([]byte, error) {
	if b.Error != nil {
		return json.Marshal(map[string]any{"error": b.Error})
	}
	return json.Marshal(map[string]any{"result": b.Result})
}

func errorBody(err error, message string) any {
	return responseBody{Error: &responseError{Message: message, Code: codeFor(err), err: err}}
}

func codeFor(err error) string {
	switch {
	case errdefs.IsInvalidArgument(err):
		return "invalid_argument"
	case errdefs.IsNotFound(err):
		return "not_found"
	case errdefs.IsPermissionDenied(err):
		return "permission_denied"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "internal"
	}
}

func statusFor(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusUnprocessableEntity
	case errdefs.IsPermissionDenied(err):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			allowed = true
			wildcard = true
			break
		}
		if o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST,OPTIONS")
	}
}
