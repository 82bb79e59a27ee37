package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"slotbook/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permReadSlots         = "read:slots"
	permWriteAvailability = "write:availability"
	permWriteReservations = "write:reservations"
	permAdminSweep        = "admin:sweep"
	permWriteProfiles     = "write:profiles"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errRateLimited        = errors.New("rate limit exceeded")
)

// keyring checks API key pairs and permissions for both transports.
type keyring struct {
	cfg     *config.APIConfig
	byKey   map[string]config.APIClientKey
	limiter *rateLimiter
}

func newKeyring(cfg *config.APIConfig) *keyring {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &keyring{cfg: cfg, byKey: m, limiter: newRateLimiter(cfg)}
}

func (k *keyring) headers() (apiKey, extra string) {
	apiKey = strings.ToLower(strings.TrimSpace(k.cfg.Auth.HeaderAPIKey))
	if apiKey == "" {
		apiKey = apiKeyHeaderDefault
	}
	extra = strings.ToLower(strings.TrimSpace(k.cfg.Auth.HeaderExtra))
	if extra == "" {
		extra = apiExtraHeaderDefault
	}
	return apiKey, extra
}

// check authenticates the key pair and verifies the client holds required.
func (k *keyring) check(apiKey, extra, required string) error {
	if !k.cfg.Auth.Enabled {
		return nil
	}
	if apiKey == "" || extra == "" {
		return errMissingCredentials
	}

	client, ok := k.byKey[apiKey]
	if !ok {
		return errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}

	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

// AuthInterceptor guards the gRPC service with API keys and rate limits.
type AuthInterceptor struct {
	keys *keyring
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{keys: newKeyring(cfg)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		keyHeader, extraHeader := a.keys.headers()
		apiKey := first(md.Get(keyHeader))

		if err := a.keys.check(apiKey, first(md.Get(extraHeader)), requiredPermission(info.FullMethod)); err != nil {
			if errors.Is(err, errPermissionDenied) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		if !a.keys.limiter.allow(grpcClientKey(ctx, apiKey)) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
		}

		return handler(ctx, req)
	}
}

func requiredPermission(fullMethod string) string {
	switch strings.TrimPrefix(fullMethod, "/"+schedulingServiceName+"/") {
	case "SubmitAvailability":
		return permWriteAvailability
	case "ListAvailableSlots":
		return permReadSlots
	case "ReserveSlot", "ConfirmReservation":
		return permWriteReservations
	case "ExpireStaleReservations":
		return permAdminSweep
	default:
		return ""
	}
}

func grpcClientKey(ctx context.Context, apiKey string) string {
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

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	keys *keyring
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	return &HTTPAuth{keys: newKeyring(cfg)}
}

// Require wraps next so that it only runs for callers holding permission.
func (a *HTTPAuth) Require(permission string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyHeader, extraHeader := a.keys.headers()
		apiKey := strings.TrimSpace(r.Header.Get(keyHeader))

		if err := a.keys.check(apiKey, strings.TrimSpace(r.Header.Get(extraHeader)), permission); err != nil {
			statusCode := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				statusCode = http.StatusForbidden
			}
			writeError(w, statusCode, err.Error())
			return
		}

		if !a.keys.limiter.allow(httpClientKey(r, apiKey)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func httpClientKey(r *http.Request, apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
