package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/x402gate/gate/internal/security"
)

// InputSchema declares which input fields a Tool requires.
type InputSchema struct {
	Required []string `json:"required,omitempty"`
}

// Tool declares a single priced HTTP endpoint an agent can call through the
// client retry loop: a name, a JSON-schema-ish required-field list, and the
// HTTP target to invoke.
type Tool struct {
	Name        string
	Description string
	InputSchema InputSchema
	Endpoint    string
	Method      string
	Headers     map[string]string
}

// Result is what Invoke returns: whether the call ultimately succeeded, the
// final HTTP status, and the decoded response body.
type Result struct {
	OK     bool        `json:"ok"`
	Status int         `json:"status"`
	Data   interface{} `json:"data"`
}

// Invoke validates input against tool's required fields, shapes it into a
// query string (GET/DELETE) or a JSON body (POST/PUT/PATCH), and delegates
// to client's paid retry loop.
func Invoke(ctx context.Context, client *Client, tool Tool, input map[string]interface{}) (*Result, error) {
	for _, name := range tool.InputSchema.Required {
		v, present := input[name]
		if !present || v == nil {
			return nil, fmt.Errorf("Missing required field: %s", name)
		}
	}

	if !client.allowLocalEndpoints {
		if err := security.ValidateEndpointURL(tool.Endpoint); err != nil {
			return nil, fmt.Errorf("tool endpoint rejected: %w", err)
		}
	}

	method := tool.Method
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var req *http.Request
	var err error
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, withQuery(tool.Endpoint, input), nil)
	default:
		body, marshalErr := json.Marshal(input)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal tool input: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, method, tool.Endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build tool request: %w", err)
	}
	for k, v := range tool.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	return &Result{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Data:   data,
	}, nil
}

func withQuery(endpoint string, input map[string]interface{}) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	for k, v := range input {
		q.Set(k, fmt.Sprintf("%v", v))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func decodeBody(resp *http.Response) (interface{}, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tool response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		var data interface{}
		if err := json.Unmarshal(raw, &data); err == nil {
			return data, nil
		}
	}
	return string(raw), nil
}
