// Package events defines the event payloads published on the eventbus by
// the HTTP handler and the query evaluator.
package events

import (
	"net/http"
	"time"
)

// HTTPStart marks the arrival of a query HTTP request.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish marks the completion of a query HTTP request. Queries is the
// number of queries the request carried, 1 for a single request and n for
// a batch; it is 0 when the request is rejected before its queries are
// evaluated (preflight, wrong method, or a body that is not a valid request).
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Queries  int
	Duration time.Duration
}

// QueryStart marks the start of a single query evaluation. Query holds the
// decoded query document.
type QueryStart struct {
	Query any
}

// QueryFinish marks the end of a query evaluation. Err is nil on success.
type QueryFinish struct {
	Query    any
	Err      error
	Duration time.Duration
}
