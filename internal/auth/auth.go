// Package auth authorises inspection service calls by the role carried in the
// client certificate's OU.
package auth

import (
	"context"
	"fmt"
	"slices"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

type Permission string

const (
	PermissionJobStart Permission = "job:start"
	PermissionJobList  Permission = "job:list"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var RolePermissions = map[Role][]Permission{
	RoleOperator: {PermissionJobStart, PermissionJobList},
	RoleViewer:   {PermissionJobList},
}

// MethodPermissions maps full gRPC method names to the permission needed to
// call them. Methods missing from the map are refused.
var MethodPermissions = map[string]Permission{
	"/bgjobs.v1.JobService/StartCommand":        PermissionJobStart,
	"/bgjobs.v1.JobService/ListJobs":            PermissionJobList,
	"/bgjobs.v1.JobService/HasActiveOperations": PermissionJobList,
}

// GetClientIdentity returns the CN and first OU of the verified client
// certificate on ctx.
func GetClientIdentity(ctx context.Context) (string, string, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", "", fmt.Errorf("failed to get peer info from context")
	}

	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", "", fmt.Errorf("failed to get TLS info from peer auth info")
	}

	if len(tlsInfo.State.VerifiedChains) == 0 ||
		len(tlsInfo.State.VerifiedChains[0]) == 0 {
		return "", "", fmt.Errorf("no verified chains in TLS info")
	}

	cert := tlsInfo.State.VerifiedChains[0][0]

	var ou string
	if len(cert.Subject.OrganizationalUnit) > 0 {
		ou = cert.Subject.OrganizationalUnit[0]
	}

	return cert.Subject.CommonName, ou, nil
}

func IsAuthorised(clientRole Role, method string) error {
	required, exists := MethodPermissions[method]
	if !exists {
		return fmt.Errorf("specified method not in method permissions")
	}

	permissions, ok := RolePermissions[clientRole]
	if !ok {
		return fmt.Errorf("specified role not in role permissions")
	}

	if !slices.Contains(permissions, required) {
		return fmt.Errorf("required permission not in permissions for role")
	}

	return nil
}

func Authorise(ctx context.Context, method string) error {
	_, ou, err := GetClientIdentity(ctx)
	if err != nil {
		return fmt.Errorf("get client identity: %w", err)
	}

	if err := IsAuthorised(Role(ou), method); err != nil {
		return fmt.Errorf("authorise client: %w", err)
	}

	return nil
}
