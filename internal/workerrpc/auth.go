package workerrpc

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CredentialKey is the metadata key carrying the shared secret.
const CredentialKey = "x-worker-credential"

type sharedSecret struct {
	secret string
}

// SharedSecret returns per-RPC credentials that attach secret to every call.
func SharedSecret(secret string) credentials.PerRPCCredentials {
	return sharedSecret{secret: secret}
}

func (s sharedSecret) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{CredentialKey: s.secret}, nil
}

// RequireTransportSecurity is false: workers run on a private network and the
// secret only gates pool membership.
func (s sharedSecret) RequireTransportSecurity() bool {
	return false
}

// AuthUnaryInterceptor rejects calls that do not present secret.
func AuthUnaryInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := checkCredential(ctx, secret); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStreamInterceptor is the streaming counterpart of AuthUnaryInterceptor.
func AuthStreamInterceptor(secret string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkCredential(ss.Context(), secret); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func checkCredential(ctx context.Context, secret string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing credential")
	}
	values := md.Get(CredentialKey)
	if len(values) == 0 {
		return status.Error(codes.Unauthenticated, "missing credential")
	}
	if subtle.ConstantTimeCompare([]byte(values[0]), []byte(secret)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid credential")
	}
	return nil
}
