package querydeskctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querydeskctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "querydesk API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	req, err := buildRequest(command, fs.Args()[1:], stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, stderr io.Writer) (request, error) {
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	case "ask":
		fs := flag.NewFlagSet("ask", flag.ContinueOnError)
		fs.SetOutput(stderr)
		question := fs.String("question", "", "natural language question")
		requester := fs.String("requester", "", "requester id (UUID)")
		if err := fs.Parse(args); err != nil {
			return request{}, err
		}
		if strings.TrimSpace(*question) == "" || strings.TrimSpace(*requester) == "" {
			return request{}, fmt.Errorf("ask requires -question and -requester")
		}
		return request{
			method: http.MethodPost,
			path:   "/v1/interactions",
			body: map[string]string{
				"question":     *question,
				"requester_id": strings.TrimSpace(*requester),
			},
		}, nil
	case "get":
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return request{}, fmt.Errorf("get requires exactly one interaction id")
		}
		return request{method: http.MethodGet, path: "/v1/interactions/" + url.PathEscape(strings.TrimSpace(args[0]))}, nil
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(stderr)
		requester := fs.String("requester", "", "filter by requester id")
		status := fs.String("status", "", "filter by status: pending|answered|failed")
		limit := fs.Int("limit", 0, "maximum number of records")
		if err := fs.Parse(args); err != nil {
			return request{}, err
		}
		query := url.Values{}
		if v := strings.TrimSpace(*requester); v != "" {
			query.Set("requester_id", v)
		}
		if v := strings.TrimSpace(*status); v != "" {
			query.Set("status", v)
		}
		if *limit > 0 {
			query.Set("limit", strconv.Itoa(*limit))
		}
		return request{method: http.MethodGet, path: "/v1/interactions", query: query}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querydeskctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                                 GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                                  GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  ask -question Q -requester ID          POST /v1/interactions")
	_, _ = fmt.Fprintln(w, "  get <id>                               GET /v1/interactions/{id}")
	_, _ = fmt.Fprintln(w, "  list [-requester ID] [-status S] [-limit N]")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
