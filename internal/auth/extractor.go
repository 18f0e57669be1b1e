package auth

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

const bearerPrefix = "Bearer "

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns ErrNoCredentials when the header is absent and
// ErrMalformedCredentials when the scheme is not Bearer.
func ExtractBearerToken(r *http.Request) (string, error) {
	return ParseBearer(r.Header.Get("Authorization"))
}

// ExtractBearerTokenFromGRPC extracts a bearer token from gRPC metadata.
func ExtractBearerTokenFromGRPC(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrNoCredentials
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrNoCredentials
	}

	return ParseBearer(values[0])
}

// ParseBearer parses a raw Authorization header value and returns the
// bearer token it carries.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrNoCredentials
	}

	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMalformedCredentials
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMalformedCredentials
	}

	return token, nil
}
