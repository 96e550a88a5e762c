package trigger

import (
	"encoding/json"
	"mime"
	"net/url"
	"strings"
	"unicode/utf8"
)

// RawRequest is the transport-neutral form of an inbound webhook call.
type RawRequest struct {
	Method      string
	Headers     map[string][]string
	Query       map[string][]string
	ContentType string
	Body        []byte
}

// Payload is the normalized trigger data handed to the runner.
type Payload struct {
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
	Query   map[string]string `json:"query"`
	Method  string            `json:"method"`
}

// Normalize converts a raw request into a Payload. Header names are
// lower-cased and multi-valued headers and query keys keep their first value.
func Normalize(raw RawRequest) Payload {
	p := Payload{
		Headers: make(map[string]string, len(raw.Headers)),
		Query:   make(map[string]string, len(raw.Query)),
		Method:  strings.ToUpper(raw.Method),
	}
	for k, v := range raw.Headers {
		if len(v) > 0 {
			p.Headers[strings.ToLower(k)] = v[0]
		}
	}
	for k, v := range raw.Query {
		if len(v) > 0 {
			p.Query[k] = v[0]
		}
	}

	contentType := raw.ContentType
	if contentType == "" {
		contentType = p.Headers["content-type"]
	}
	p.Body = parseBody(contentType, raw.Body)
	return p
}

func parseBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}

	mediaType := ""
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil
		}
		mediaType = mt
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil
		}
		return v
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		form := make(map[string]any, len(values))
		for k, v := range values {
			if len(v) > 0 {
				form[k] = v[0]
			}
		}
		return form
	default:
		if !utf8.Valid(body) {
			return nil
		}
		return string(body)
	}
}
