package deepr

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AnishGupta/deepr/executor"
	"github.com/AnishGupta/deepr/parser"
)

func TestInvokeQuery(t *testing.T) {
	tgt := map[string]any{
		"movie": map[string]any{"title": "Inception", "year": 2010},
	}
	query, err := parser.DecodeQuery([]byte(`{"movie": {"title": true}}`))
	require.NoError(t, err)

	v, err := InvokeQuery(context.Background(), tgt, query, nil)
	require.NoError(t, err)
	out, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"movie":{"title":"Inception"}}`, string(out))
}

func TestInvokeQueryWithOptions(t *testing.T) {
	tgt := map[string]any{
		"_id":      "m1",
		"_secret":  "hidden",
		"whoami":   func(cc any) any { return cc },
		"password": "hunter2",
	}
	query, err := parser.DecodeQuery([]byte(
		`{"_id": true, "_secret": true, "whoami": {"()": []}, "password": true}`))
	require.NoError(t, err)

	popts := parser.NewOptions()
	popts.IgnoreKeys = []parser.KeyMatcher{parser.Literal("_secret")}
	opts := &Options{
		Parser: popts,
		Executor: &executor.Options{
			Context: "caller",
			Authorizer: func(ctx context.Context, key string, op executor.Operation, params []any) any {
				return key != "password"
			},
			ErrorHandler: func(ctx context.Context, err error) (any, error) {
				return nil, err
			},
		},
	}
	_, err = InvokeQuery(context.Background(), tgt, query, opts)
	require.Error(t, err)

	query, err = parser.DecodeQuery([]byte(`{"_id": true, "_secret": true, "whoami": {"()": []}}`))
	require.NoError(t, err)
	v, err := InvokeQuery(context.Background(), tgt, query, opts)
	require.NoError(t, err)
	out, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"_id":"m1","whoami":"caller"}`, string(out))
}

func TestParseThenInvoke(t *testing.T) {
	expr, err := ParseQuery(map[string]any{"n": true}, nil)
	require.NoError(t, err)
	v, err := InvokeExpression(context.Background(), map[string]any{"n": 1}, expr, nil)
	require.NoError(t, err)
	out, _ := json.Marshal(v)
	require.JSONEq(t, `{"n":1}`, string(out))
}
