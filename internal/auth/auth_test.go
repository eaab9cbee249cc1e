package auth_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"testing"

	"github.com/nixpig/bgjobs/internal/auth"
	"github.com/nixpig/bgjobs/internal/inspect"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

func peerContext(t *testing.T, cn, ou string) context.Context {
	t.Helper()

	cert := &x509.Certificate{
		Subject: pkix.Name{
			CommonName:         cn,
			OrganizationalUnit: []string{ou},
		},
	}

	authInfo := credentials.TLSInfo{
		State: tls.ConnectionState{
			VerifiedChains: [][]*x509.Certificate{{cert}},
		},
	}

	return peer.NewContext(t.Context(), &peer.Peer{AuthInfo: authInfo})
}

func TestIsAuthorised(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		role         auth.Role
		method       string
		isAuthorised bool
	}{
		"Test operator can start command": {
			role:         auth.RoleOperator,
			method:       inspect.MethodStartCommand,
			isAuthorised: true,
		},
		"Test operator can list jobs": {
			role:         auth.RoleOperator,
			method:       inspect.MethodListJobs,
			isAuthorised: true,
		},
		"Test operator can check active operations": {
			role:         auth.RoleOperator,
			method:       inspect.MethodHasActiveOperations,
			isAuthorised: true,
		},

		"Test viewer cannot start command": {
			role:         auth.RoleViewer,
			method:       inspect.MethodStartCommand,
			isAuthorised: false,
		},
		"Test viewer can list jobs": {
			role:         auth.RoleViewer,
			method:       inspect.MethodListJobs,
			isAuthorised: true,
		},
		"Test viewer can check active operations": {
			role:         auth.RoleViewer,
			method:       inspect.MethodHasActiveOperations,
			isAuthorised: true,
		},

		"Test unknown method returns error": {
			role:         auth.RoleOperator,
			method:       "/bgjobs.v1.JobService/Unknown",
			isAuthorised: false,
		},
		"Test unknown role returns error": {
			role:         auth.Role("Unknown"),
			method:       inspect.MethodListJobs,
			isAuthorised: false,
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			err := auth.IsAuthorised(config.role, config.method)

			if config.isAuthorised && err != nil {
				t.Errorf(
					"expected authorised not to return error: got '%v'",
					err,
				)
			}

			if !config.isAuthorised && err == nil {
				t.Errorf("expected not authorised to return error")
			}
		})
	}
}

func TestMethodsHavePermissions(t *testing.T) {
	t.Parallel()

	t.Run("Test all methods have permissions assigned", func(t *testing.T) {
		for _, m := range inspect.JobServiceDesc.Methods {
			fullMethodName := fmt.Sprintf(
				"/%s/%s",
				inspect.JobServiceDesc.ServiceName,
				m.MethodName,
			)
			if _, exists := auth.MethodPermissions[fullMethodName]; !exists {
				t.Errorf(
					"gRPC method doesn't have permission assigned: '%v'",
					fullMethodName,
				)
			}
		}
	})
}

func TestGetClientIdentity(t *testing.T) {
	t.Parallel()

	t.Run("Test peer with valid TLS info", func(t *testing.T) {
		cn, ou, err := auth.GetClientIdentity(peerContext(t, "alice", "operator"))
		if err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if cn != "alice" {
			t.Errorf("expected CN: got '%s', want 'alice'", cn)
		}

		if ou != "operator" {
			t.Errorf("expected OU: got '%s', want 'operator'", ou)
		}
	})

	t.Run("Test peer with no TLS info", func(t *testing.T) {
		ctx := peer.NewContext(t.Context(), &peer.Peer{AuthInfo: nil})

		cn, ou, err := auth.GetClientIdentity(ctx)
		if err == nil {
			t.Errorf("expected to receive error")
		}

		if cn != "" || ou != "" {
			t.Errorf("expected empty identity: got '%s' '%s'", cn, ou)
		}
	})

	t.Run("Test no peer in context", func(t *testing.T) {
		if _, _, err := auth.GetClientIdentity(t.Context()); err == nil {
			t.Errorf("expected to receive error")
		}
	})
}

func TestAuthorise(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		ctx    func(t *testing.T) context.Context
		method string
		ok     bool
	}{
		"Test operator can start command": {
			ctx:    func(t *testing.T) context.Context { return peerContext(t, "alice", "operator") },
			method: inspect.MethodStartCommand,
			ok:     true,
		},
		"Test viewer cannot start command": {
			ctx:    func(t *testing.T) context.Context { return peerContext(t, "bob", "viewer") },
			method: inspect.MethodStartCommand,
		},
		"Test viewer can list jobs": {
			ctx:    func(t *testing.T) context.Context { return peerContext(t, "bob", "viewer") },
			method: inspect.MethodListJobs,
			ok:     true,
		},
		"Test unknown role": {
			ctx:    func(t *testing.T) context.Context { return peerContext(t, "charlie", "admin") },
			method: inspect.MethodListJobs,
		},
		"Test invalid context": {
			ctx:    func(t *testing.T) context.Context { return t.Context() },
			method: inspect.MethodListJobs,
		},
	}

	for scenario, data := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			err := auth.Authorise(data.ctx(t), data.method)

			if data.ok && err != nil {
				t.Errorf("expected not to receive error: got '%v'", err)
			}

			if !data.ok && err == nil {
				t.Errorf("expected to receive error")
			}
		})
	}
}
