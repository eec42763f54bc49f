package chartgptctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	TenantID   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	// ReadFile loads upload bodies; os.ReadFile when nil.
	ReadFile func(name string) ([]byte, error)
}

type request struct {
	method      string
	path        string
	contentType string
	body        []byte
	raw         bool
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
	readFile := defaults.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	fs := flag.NewFlagSet("chartgptctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "ChartGPT API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	tenantID := fs.String("tenant-id", defaults.TenantID, "Tenant ID header (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	req, err := buildRequest(command, fs.Args()[1:], readFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req, endpoint, *apiKey, *tenantID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if !req.raw {
		if pretty, ok := prettyJSON(responseBody); ok {
			_, _ = fmt.Fprintln(stdout, pretty)
			return 0
		}
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, readFile func(string) ([]byte, error)) (request, error) {
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	case "columns":
		return request{method: http.MethodGet, path: "/v1/datasets"}, nil
	case "last":
		return request{method: http.MethodGet, path: "/v1/runs/last"}, nil
	case "load":
		if len(args) < 1 || len(args) > 2 {
			return request{}, fmt.Errorf("load requires <object-key> [format]")
		}
		payload := map[string]string{"object_key": args[0]}
		if len(args) == 2 {
			payload["format"] = args[1]
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return request{}, err
		}
		return request{method: http.MethodPost, path: "/v1/datasets", contentType: "application/json", body: body}, nil
	case "upload":
		if len(args) != 1 {
			return request{}, fmt.Errorf("upload requires <file.csv>")
		}
		body, err := readFile(args[0])
		if err != nil {
			return request{}, fmt.Errorf("read upload: %w", err)
		}
		return request{method: http.MethodPost, path: "/v1/datasets", contentType: "text/csv", body: body}, nil
	case "ask", "plot":
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return request{}, fmt.Errorf("%s requires <question>", command)
		}
		body, err := json.Marshal(map[string]string{"question": question})
		if err != nil {
			return request{}, err
		}
		return request{method: http.MethodPost, path: "/v1/" + command, contentType: "application/json", body: body}, nil
	case "runs":
		path := "/v1/runs"
		if len(args) > 0 {
			limit, err := strconv.Atoi(args[0])
			if err != nil || limit <= 0 {
				return request{}, fmt.Errorf("runs limit must be a positive integer")
			}
			path += "?limit=" + strconv.Itoa(limit)
		}
		return request{method: http.MethodGet, path: path}, nil
	case "objects":
		path := "/v1/objects"
		if len(args) > 0 {
			path += "?prefix=" + url.QueryEscape(args[0])
		}
		return request{method: http.MethodGet, path: path}, nil
	case "chart":
		if len(args) != 1 {
			return request{}, fmt.Errorf("chart requires <run-id>")
		}
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || runID <= 0 {
			return request{}, fmt.Errorf("chart run id must be a positive integer")
		}
		return request{method: http.MethodGet, path: "/v1/charts/" + strconv.FormatInt(runID, 10), raw: true}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, in request, endpoint, apiKey, tenantID string) (int, []byte, error) {
	var body io.Reader
	if in.body != nil {
		body = bytes.NewReader(in.body)
	}
	req, err := http.NewRequestWithContext(ctx, in.method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in.contentType != "" {
		req.Header.Set("Content-Type", in.contentType)
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(tenantID) != "" {
		req.Header.Set("X-Tenant-ID", strings.TrimSpace(tenantID))
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
	_, _ = fmt.Fprintln(w, "usage: chartgptctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                      GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                       GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  columns                     GET /v1/datasets")
	_, _ = fmt.Fprintln(w, "  load <object-key> [format]  POST /v1/datasets")
	_, _ = fmt.Fprintln(w, "  upload <file.csv>           POST /v1/datasets (text/csv)")
	_, _ = fmt.Fprintln(w, "  ask <question>              POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  plot <question>             POST /v1/plot")
	_, _ = fmt.Fprintln(w, "  last                        GET /v1/runs/last")
	_, _ = fmt.Fprintln(w, "  runs [limit]                GET /v1/runs")
	_, _ = fmt.Fprintln(w, "  objects [prefix]            GET /v1/objects")
	_, _ = fmt.Fprintln(w, "  chart <run-id>              GET /v1/charts/{run_id}")
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
