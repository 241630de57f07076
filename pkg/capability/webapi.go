package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
)

// CapAPICaller is the outbound HTTP capability name.
const CapAPICaller = "api_caller"

// maxResponseBytes caps how much of an upstream response is read back.
const maxResponseBytes = 1 << 20

type apiCallerArgs struct {
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Body    map[string]any    `mapstructure:"body"`
	Headers map[string]string `mapstructure:"headers"`
}

// RegisterAPICaller installs the outbound HTTP capability. Only URLs with
// one of the allowed prefixes may be called; everything else is rejected
// before a connection is opened.
func RegisterAPICaller(g *Gateway, client *http.Client, allowedPrefixes []string) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	prefixes := append([]string(nil), allowedPrefixes...)
	g.Register(Capability{
		Name:        CapAPICaller,
		Description: "Call an allow-listed HTTP endpoint with a JSON payload",
		Handler:     apiCaller(client, prefixes),
	})
}

func apiCaller(client *http.Client, allowed []string) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in apiCallerArgs
		if err := decodeArgs(CapAPICaller, args, &in); err != nil {
			return nil, err
		}
		if in.URL == "" {
			return nil, InvalidArgs(CapAPICaller, "url is required")
		}
		if !urlAllowed(in.URL, allowed) {
			return nil, InvalidArgs(CapAPICaller, fmt.Sprintf("url %q is not on the allow list", in.URL))
		}

		method := strings.ToUpper(in.Method)
		switch method {
		case "":
			method = http.MethodGet
			if in.Body != nil {
				method = http.MethodPost
			}
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			return nil, InvalidArgs(CapAPICaller, fmt.Sprintf("unsupported method %q", in.Method))
		}

		var body io.Reader
		if in.Body != nil {
			payload, err := json.Marshal(in.Body)
			if err != nil {
				return nil, InvalidArgs(CapAPICaller, err.Error())
			}
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, in.URL, body)
		if err != nil {
			return nil, InvalidArgs(CapAPICaller, err.Error())
		}
		if in.Body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for name, value := range in.Headers {
			req.Header.Set(name, value)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, &domain.CapabilityFailure{
				Capability: CapAPICaller,
				Kind:       domain.CapabilityUpstream,
				Detail:     err.Error(),
				Err:        err,
			}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, &domain.CapabilityFailure{
				Capability: CapAPICaller,
				Kind:       domain.CapabilityUpstream,
				Detail:     fmt.Sprintf("reading response: %v", err),
				Err:        err,
			}
		}
		if resp.StatusCode >= 400 {
			return nil, &domain.CapabilityFailure{
				Capability: CapAPICaller,
				Kind:       domain.CapabilityUpstream,
				Detail:     fmt.Sprintf("endpoint returned status %d", resp.StatusCode),
			}
		}

		out := map[string]any{"status": resp.StatusCode}
		var decoded any
		if json.Unmarshal(raw, &decoded) == nil {
			out["body"] = decoded
		} else if len(raw) > 0 {
			out["body"] = string(raw)
		}
		return out, nil
	}
}

func urlAllowed(u string, allowed []string) bool {
	for _, prefix := range allowed {
		if prefix != "" && strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}
