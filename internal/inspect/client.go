package inspect

import (
	"context"
	"fmt"

	"github.com/nixpig/bgjobs/internal/tlsconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the job service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial creates a connection to addr authenticated with the client
// certificate in tlsCfg. The server name defaults to the host part of addr.
func Dial(addr string, tlsCfg *tlsconfig.Config) (*grpc.ClientConn, error) {
	cfg := *tlsCfg
	cfg.Server = false

	if cfg.ServerName == "" {
		cfg.ServerName = addr
	}

	tlsConfig, err := tlsconfig.SetupTLS(&cfg)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return conn, nil
}

// StartCommand starts cmdline as a background command and returns its job ID.
func (c *Client) StartCommand(
	ctx context.Context,
	cmdline string,
	skipErrors bool,
) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"cmdline":     cmdline,
		"skip_errors": skipErrors,
	})
	if err != nil {
		return "", err
	}

	resp := &wrapperspb.StringValue{}
	if err := c.cc.Invoke(ctx, MethodStartCommand, req, resp); err != nil {
		return "", err
	}

	return resp.GetValue(), nil
}

// ListJobs returns every job the server tracks, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]JobSummary, error) {
	resp := &structpb.ListValue{}
	if err := c.cc.Invoke(ctx, MethodListJobs, &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}

	jobs := make([]JobSummary, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		if s := v.GetStructValue(); s != nil {
			jobs = append(jobs, jobSummary(s))
		}
	}

	return jobs, nil
}

// HasActiveOperations reports whether the server still tracks any operation.
func (c *Client) HasActiveOperations(ctx context.Context) (bool, error) {
	resp := &wrapperspb.BoolValue{}
	if err := c.cc.Invoke(ctx, MethodHasActiveOperations, &emptypb.Empty{}, resp); err != nil {
		return false, err
	}

	return resp.GetValue(), nil
}
