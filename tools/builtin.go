package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxHTTPBody caps the bytes http_get returns to the backend.
const maxHTTPBody = 64 << 10

var currentTimeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"timezone": {"type": "string", "description": "IANA time zone, e.g. Europe/Berlin"}
	},
	"additionalProperties": false
}`)

var httpGetSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "absolute http or https URL"}
	},
	"required": ["url"],
	"additionalProperties": false
}`)

var calculatorSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"op": {"type": "string", "enum": ["add", "sub", "mul", "div"]},
		"a": {"type": "number"},
		"b": {"type": "number"}
	},
	"required": ["op", "a", "b"],
	"additionalProperties": false
}`)

// RegisterBuiltins registers current_time, http_get and calculator. client
// is used by http_get; nil selects a client with a 15s timeout.
func RegisterBuiltins(r *Registry, client *http.Client) error {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	builtins := []struct {
		def  Definition
		fn   Func
		opts Options
	}{
		{
			def: Definition{
				Name:        "current_time",
				Description: "Returns the current time in RFC3339 format, optionally in a given time zone.",
				Parameters:  currentTimeSchema,
			},
			fn: currentTime,
		},
		{
			def: Definition{
				Name:        "http_get",
				Description: "Fetches a URL with HTTP GET and returns the status code and the beginning of the body.",
				Parameters:  httpGetSchema,
			},
			fn:   httpGet(client),
			opts: Options{RateLimit: &RateLimit{MaxCalls: 30, Window: time.Minute}},
		},
		{
			def: Definition{
				Name:        "calculator",
				Description: "Applies add, sub, mul or div to two numbers.",
				Parameters:  calculatorSchema,
			},
			fn: calculate,
		},
	}

	for _, b := range builtins {
		if err := r.Register(b.def, b.fn, b.opts); err != nil {
			return err
		}
	}
	return nil
}

func currentTime(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	loc := time.UTC
	if in.Timezone != "" {
		l, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", in.Timezone)
		}
		loc = l
	}
	return json.Marshal(map[string]string{
		"time":     time.Now().In(loc).Format(time.RFC3339),
		"timezone": loc.String(),
	})
}

func httpGet(client *http.Client) Func {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		u, err := url.Parse(in.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid url %q", in.URL)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		truncated := len(body) > maxHTTPBody
		if truncated {
			body = body[:maxHTTPBody]
		}
		return json.Marshal(map[string]any{
			"status":       resp.StatusCode,
			"content_type": resp.Header.Get("Content-Type"),
			"body":         string(body),
			"truncated":    truncated,
		})
	}
}

func calculate(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Op string  `json:"op"`
		A  float64 `json:"a"`
		B  float64 `json:"b"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}

	var result float64
	switch in.Op {
	case "add":
		result = in.A + in.B
	case "sub":
		result = in.A - in.B
	case "mul":
		result = in.A * in.B
	case "div":
		if in.B == 0 {
			return nil, errors.New("division by zero")
		}
		result = in.A / in.B
	default:
		return nil, fmt.Errorf("unsupported op %q", in.Op)
	}
	return json.Marshal(map[string]float64{"result": result})
}
