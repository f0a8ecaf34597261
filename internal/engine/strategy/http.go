package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
)

const (
	TypeHTTPRequest = "http.request"

	// HTTPConfigKey is the well-known configuration key for this strategy.
	HTTPConfigKey = "HttpConfig"
)

var allowedHTTPMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodPatch:   {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// HTTPAuth describes the authentication attached to an outgoing request.
// Type discriminates: bearer, basic or apikey.
type HTTPAuth struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	HeaderName  string `json:"header_name,omitempty"`
	HeaderValue string `json:"header_value,omitempty"`
}

type HTTPRequestConfig struct {
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	ContentType    string            `json:"content_type,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Auth           *HTTPAuth         `json:"auth,omitempty"`
}

func (c *HTTPRequestConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HTTPRequestStrategy executes one HTTP call against an external API. The
// http.Client is a long-lived, injected, shared collaborator.
type HTTPRequestStrategy struct {
	*Lifecycle
	client *http.Client
}

func NewHTTPRequestStrategy(client *http.Client, log logger.Logger, metrics engine.Collector, opts ...Option) *HTTPRequestStrategy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	s := &HTTPRequestStrategy{client: client}
	s.Lifecycle = NewLifecycle(TypeHTTPRequest, log, metrics, Hooks{
		ValidateInputs:  s.validateInputs,
		TransformOutput: s.transformOutput,
		ValidateOutput:  s.validateOutput,
	}, opts...)
	return s
}

func (s *HTTPRequestStrategy) validateInputs(ctx context.Context, ec *engine.ExecutionContext) *engine.ValidationResult {
	vr := engine.NewValidationResult()

	cfg, err := configFrom[HTTPRequestConfig](ec, HTTPConfigKey)
	if err != nil {
		return vr.AddError(err.Error())
	}

	parsed, err := url.Parse(cfg.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		vr.AddError("URL must be a valid absolute URI")
	}

	method := strings.ToUpper(cfg.Method)
	if _, ok := allowedHTTPMethods[method]; !ok {
		vr.AddError(fmt.Sprintf("HTTP method '%s' is not supported", cfg.Method))
	}

	if cfg.TimeoutSeconds != 0 && (cfg.TimeoutSeconds < 1 || cfg.TimeoutSeconds > 600) {
		vr.AddError("timeout must be between 1 second and 10 minutes")
	}

	if cfg.Body != "" && cfg.ContentType == "" {
		vr.AddWarning("request body provided without a content type")
	}

	if cfg.Auth != nil {
		switch strings.ToLower(cfg.Auth.Type) {
		case "bearer":
			if cfg.Auth.Token == "" {
				vr.AddError("bearer authentication requires a token")
			}
		case "basic":
			if cfg.Auth.Username == "" {
				vr.AddError("basic authentication requires a username")
			}
		case "apikey":
			if cfg.Auth.HeaderName == "" {
				vr.AddError("apikey authentication requires a header name")
			}
		default:
			vr.AddError(fmt.Sprintf("authentication type '%s' is not supported", cfg.Auth.Type))
		}
	}

	return vr
}

func (s *HTTPRequestStrategy) Execute(ctx context.Context, ec *engine.ExecutionContext) *engine.ExecutionResult {
	cfg, err := configFrom[HTTPRequestConfig](ec, HTTPConfigKey)
	if err != nil {
		return engine.FailedResult("", err, 0)
	}

	var statusCode int
	out, duration, err := s.RunProtected(ctx, cfg.Timeout(), func(callCtx context.Context) (interface{}, error) {
		// A fresh request per attempt: the body reader cannot be reused.
		req, err := s.buildRequest(callCtx, cfg)
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("request to %s returned status %d", cfg.URL, resp.StatusCode)
		}

		statusCode = resp.StatusCode
		return string(body), nil
	})
	if err != nil {
		return s.FailureResult(ctx, ec, err, duration)
	}

	return engine.CompletedResult(out, duration).WithMetadata("StatusCode", statusCode)
}

func (s *HTTPRequestStrategy) buildRequest(ctx context.Context, cfg *HTTPRequestConfig) (*http.Request, error) {
	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cfg.Method), cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for name, value := range cfg.Headers {
		req.Header.Set(name, value)
	}
	if cfg.ContentType != "" {
		req.Header.Set("Content-Type", cfg.ContentType)
	}

	if cfg.Auth != nil {
		switch strings.ToLower(cfg.Auth.Type) {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+cfg.Auth.Token)
		case "basic":
			req.SetBasicAuth(cfg.Auth.Username, cfg.Auth.Password)
		case "apikey":
			req.Header.Set(cfg.Auth.HeaderName, cfg.Auth.HeaderValue)
		}
	}

	return req, nil
}

// transformOutput parses the response body as JSON when possible. A body
// that is not JSON stays a raw string; that is not an error.
func (s *HTTPRequestStrategy) transformOutput(ctx context.Context, ec *engine.ExecutionContext, output interface{}) (interface{}, error) {
	body, ok := output.(string)
	if !ok || strings.TrimSpace(body) == "" {
		return output, nil
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return body, nil
	}
	return parsed, nil
}

func (s *HTTPRequestStrategy) validateOutput(ctx context.Context, ec *engine.ExecutionContext, output interface{}) *engine.ValidationResult {
	vr := engine.NewValidationResult()
	if output == nil {
		vr.AddWarning("response body is empty")
	}
	return vr
}
