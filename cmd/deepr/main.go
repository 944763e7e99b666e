package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/AnishGupta/deepr/executor"
	"github.com/AnishGupta/deepr/internal/eventbus"
	"github.com/AnishGupta/deepr/internal/otel"
	"github.com/AnishGupta/deepr/internal/server"
	"github.com/AnishGupta/deepr/parser"
)

const rootUsage = `deepr: declarative query runtime for object graphs

USAGE:
  deepr <command> [flags]

COMMANDS:
  serve            Run the HTTP query endpoint over a JSON data file
  parse            Compile a query and print the expression tree
  eval             Evaluate a query against a JSON data file
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -data <file>                JSON document used as the root target (required)
  -server.addr <addr>         HTTP listen address (default: :8080)
  -server.pretty              Pretty-print JSON responses
  -server.timeout <duration>  Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>    Max request body size; 0 means unlimited (default: 0)
  -server.cors <origin>       Allow CORS origin. Repeatable; use * for any
  -parser.ignore-key <key>    Filter a source key out of queries. Repeatable;
                              wrap in slashes for a regular expression:
                                -parser.ignore-key /^_/
  -parser.accept-key <key>    Re-allow a key over the ignore list. Repeatable
  -parser.keep-builtins       Do not filter the built-in marshalling keys
  -otel.endpoint <addr>       OTLP collector endpoint
  -otel.service <name>        OpenTelemetry service name (default: deepr)
`

const parseUsage = `parse FLAGS:
  -q <json>                   Query JSON (required unless -f is given)
  -f <file>                   Read the query from a file
  -parser.ignore-key <key>    Filter a source key out of queries. Repeatable
  -parser.accept-key <key>    Re-allow a key over the ignore list. Repeatable
  -parser.keep-builtins       Do not filter the built-in marshalling keys
  (The compiled expression tree is printed to stdout as JSON)
`

const evalUsage = `eval FLAGS:
  -data <file>                JSON document used as the root target (required)
  -q <json>                   Query JSON (required unless -f is given)
  -f <file>                   Read the query from a file
  -context <json>             Call context passed to method invocations
  -pretty                     Pretty-print the result
  -parser.ignore-key <key>    Filter a source key out of queries. Repeatable
  -parser.accept-key <key>    Re-allow a key over the ignore list. Repeatable
  -parser.keep-builtins       Do not filter the built-in marshalling keys
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("deepr", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "parse":
		return cmdParse(cmdArgs)
	case "eval":
		return cmdEval(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "parse":
		fmt.Print(parseUsage)
	case "eval":
		fmt.Print(evalUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type matcherListFlag []parser.KeyMatcher

func (m *matcherListFlag) String() string { return "" }

func (m *matcherListFlag) Set(v string) error {
	if len(v) >= 2 && strings.HasPrefix(v, "/") && strings.HasSuffix(v, "/") {
		re, err := regexp.Compile(v[1 : len(v)-1])
		if err != nil {
			return fmt.Errorf("invalid key pattern %q: %w", v, err)
		}
		*m = append(*m, parser.Regexp(re))
		return nil
	}
	*m = append(*m, parser.Literal(v))
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// parserFlags registers the shared -parser.* flags on fs and returns a
// builder for the resulting options.
func parserFlags(fs *flag.FlagSet) func() *parser.Options {
	var ignore, accept matcherListFlag
	keepBuiltins := false
	fs.Var(&ignore, "parser.ignore-key", "Filter a source key out of queries")
	fs.Var(&accept, "parser.accept-key", "Re-allow a key over the ignore list")
	fs.BoolVar(&keepBuiltins, "parser.keep-builtins", keepBuiltins, "Do not filter the built-in marshalling keys")
	return func() *parser.Options {
		opts := parser.NewOptions()
		opts.IgnoreKeys = ignore
		opts.AcceptKeys = accept
		opts.IgnoreBuiltInKeys = !keepBuiltins
		return opts
	}
}

func loadData(path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("-data is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse data: %w", err)
	}
	return root, nil
}

func loadQuery(inline, file string) (any, error) {
	raw := []byte(inline)
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read query: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("a query is required: pass -q or -f")
	}
	return parser.DecodeQuery(raw)
}

func cmdServe(args []string) error {
	dataFile := ""
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	maxBody := int64(0)
	otelEndpoint := ""
	otelService := "deepr"
	var corsOrigins stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&dataFile, "data", dataFile, "JSON document used as the root target")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Int64Var(&maxBody, "server.max-body", maxBody, "Max request body size")
	fs.Var(&corsOrigins, "server.cors", "Allow CORS origin")
	popts := parserFlags(fs)
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	root, err := loadData(dataFile)
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	sopts := []server.Option{server.WithParserOptions(popts())}
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if maxBody > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(maxBody))
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	h := server.New(root, sopts...)

	mux := http.NewServeMux()
	mux.Handle("/query", h)

	log.Printf("query server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func cmdParse(args []string) error {
	queryJSON := ""
	queryFile := ""
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&queryJSON, "q", queryJSON, "Query JSON")
	fs.StringVar(&queryFile, "f", queryFile, "Read the query from a file")
	popts := parserFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, parseUsage)
		return err
	}

	query, err := loadQuery(queryJSON, queryFile)
	if err != nil {
		fmt.Fprint(os.Stderr, parseUsage)
		return err
	}
	expr, err := parser.Parse(query, popts())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(expr, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdEval(args []string) error {
	dataFile := ""
	queryJSON := ""
	queryFile := ""
	contextJSON := ""
	pretty := false
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&dataFile, "data", dataFile, "JSON document used as the root target")
	fs.StringVar(&queryJSON, "q", queryJSON, "Query JSON")
	fs.StringVar(&queryFile, "f", queryFile, "Read the query from a file")
	fs.StringVar(&contextJSON, "context", contextJSON, "Call context passed to method invocations")
	fs.BoolVar(&pretty, "pretty", pretty, "Pretty-print the result")
	popts := parserFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, evalUsage)
		return err
	}

	root, err := loadData(dataFile)
	if err != nil {
		fmt.Fprint(os.Stderr, evalUsage)
		return err
	}
	query, err := loadQuery(queryJSON, queryFile)
	if err != nil {
		fmt.Fprint(os.Stderr, evalUsage)
		return err
	}
	expr, err := parser.Parse(query, popts())
	if err != nil {
		return err
	}

	xopts := &executor.Options{}
	if contextJSON != "" {
		var cc any
		if err := json.Unmarshal([]byte(contextJSON), &cc); err != nil {
			return fmt.Errorf("parse context: %w", err)
		}
		xopts.Context = cc
	}

	result, err := executor.Invoke(context.Background(), root, expr, xopts)
	if err != nil {
		return err
	}
	var out []byte
	if pretty {
		out, err = json.MarshalIndent(result, "", "  ")
	} else {
		out, err = json.Marshal(result)
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
