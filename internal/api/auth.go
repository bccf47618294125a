package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"practiceapi/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	// profileHeader names the acting profile when auth is disabled.
	profileHeader    = "x-profile-name"
	permRead         = "read"
	permWrite        = "write"
	clientKeyUnknown = "unknown"
)

type callerKey struct{}

// WithCaller stores the acting profile name in ctx.
func WithCaller(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, callerKey{}, name)
}

// CallerFrom returns the acting profile name, or "" for anonymous requests.
func CallerFrom(ctx context.Context) string {
	name, _ := ctx.Value(callerKey{}).(string)
	return name
}

type authError struct {
	code    int
	message string
}

// keyring resolves API keys to clients. It is shared by the HTTP and gRPC surfaces.
type keyring struct {
	cfg     config.APIConfig
	header  string
	clients map[string]config.APIClientKey
}

func newKeyring(cfg config.APIConfig) *keyring {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	header := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = apiKeyHeaderDefault
	}
	return &keyring{cfg: cfg, header: header, clients: m}
}

func (k *keyring) lookup(apiKey string) (config.APIClientKey, bool) {
	for key, client := range k.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return client, true
		}
	}
	return config.APIClientKey{}, false
}

// authenticate returns the profile acting for the presented key and header profile.
func (k *keyring) authenticate(apiKey, profile, required string) (string, *authError) {
	if !k.cfg.Auth.Enabled {
		return strings.TrimSpace(profile), nil
	}
	if apiKey == "" {
		return "", &authError{code: http.StatusUnauthorized, message: "missing api key"}
	}
	client, ok := k.lookup(apiKey)
	if !ok {
		return "", &authError{code: http.StatusUnauthorized, message: "invalid api key"}
	}
	if !hasPermission(client, required) {
		return "", &authError{code: http.StatusForbidden, message: "permission denied"}
	}
	return client.Profile, nil
}

func hasPermission(client config.APIClientKey, required string) bool {
	// An empty permission list allows everything.
	if len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	keys    *keyring
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{keys: newKeyring(cfg), limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := strings.TrimSpace(r.Header.Get(a.keys.header))
		caller, authErr := a.keys.authenticate(apiKey, r.Header.Get(profileHeader), requiredPermissionHTTP(r))
		if authErr != nil {
			writeError(w, authErr.code, authErr.message)
			return
		}

		if !a.limiter.allow(a.clientKey(r, apiKey)) {
			writeErrors(w, http.StatusTooManyRequests, ErrorItem{Message: "rate limit exceeded", Code: "TooManyRequests"})
			return
		}

		if caller != "" {
			r = r.WithContext(WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

func requiredPermissionHTTP(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return permRead
	default:
		return permWrite
	}
}

func (a *HTTPAuth) clientKey(r *http.Request, apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// AuthInterceptor applies the same key and rate rules to gRPC calls.
type AuthInterceptor struct {
	keys    *keyring
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{keys: newKeyring(cfg), limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		apiKey := first(md.Get(a.keys.header))
		caller, authErr := a.keys.authenticate(apiKey, first(md.Get(profileHeader)), requiredPermission(info.FullMethod))
		if authErr != nil {
			code := codes.Unauthenticated
			if authErr.code == http.StatusForbidden {
				code = codes.PermissionDenied
			}
			return nil, status.Error(code, authErr.message)
		}

		if !a.limiter.allow(a.clientKey(ctx, apiKey)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}

		if caller != "" {
			ctx = WithCaller(ctx, caller)
		}
		return handler(ctx, req)
	}
}

func requiredPermission(fullMethod string) string {
	switch fullMethod {
	case methodPlaceBid:
		return permWrite
	default:
		return permRead
	}
}

func (a *AuthInterceptor) clientKey(ctx context.Context, apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
