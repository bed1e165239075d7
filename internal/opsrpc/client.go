package opsrpc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

// Client calls the maintenance procedures of a running server.
type Client struct {
	cleanup *connect.Client[structpb.Struct, structpb.Struct]
	health  *connect.Client[emptypb.Empty, structpb.Struct]
	token   string
}

// NewClient creates a client for the server at baseURL, e.g. "http://localhost:8080".
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		cleanup: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+CleanupInvitationsProcedure, opts...),
		health:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+HealthProcedure, opts...),
		token:   token,
	}
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

// CleanupInvitations runs a cleanup on the server.
func (c *Client) CleanupInvitations(ctx context.Context, daysOld int) (service.CleanupResult, error) {
	msg, err := structpb.NewStruct(map[string]any{"days_old": daysOld})
	if err != nil {
		return service.CleanupResult{}, fmt.Errorf("failed to encode request: %w", err)
	}
	req := connect.NewRequest(msg)
	c.authorize(req.Header())

	resp, err := c.cleanup.CallUnary(ctx, req)
	if err != nil {
		return service.CleanupResult{}, err
	}
	fields := resp.Msg.GetFields()
	return service.CleanupResult{
		Expired: int64(fields["expired"].GetNumberValue()),
		Deleted: int64(fields["deleted"].GetNumberValue()),
	}, nil
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) (string, error) {
	req := connect.NewRequest(&emptypb.Empty{})
	c.authorize(req.Header())

	resp, err := c.health.CallUnary(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Msg.GetFields()["status"].GetStringValue(), nil
}
