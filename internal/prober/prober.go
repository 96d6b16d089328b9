// Package prober implements the client side of a sink child's per-indexer
// status endpoint: a gRPC GetStatus call against the loopback
// status-server port recorded on the indexer.
package prober

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/indexerhq/controlplane/api/proto/sinkpb"
	"github.com/indexerhq/controlplane/internal/domain"
)

// ErrConnectionRefused is returned by GetStatus when the child isn't
// listening yet — tolerated by the create-time probe loop.
var ErrConnectionRefused = errors.New("prober: connection refused")

// Prober calls a sink child's GetStatus endpoint.
type Prober struct {
	timeout time.Duration
}

// New builds a Prober with the given per-call timeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{timeout: timeout}
}

// GetStatus dials the child's loopback status server and issues a single
// GetStatus call. Each call gets its own connection: children come and go
// with restarts, and a pooled connection could outlive the child whose
// port it was dialed against. A child that isn't listening surfaces from
// the call as codes.Unavailable and is reported as ErrConnectionRefused
// (the underlying gRPC error is not kept) so callers can distinguish "not up yet" from any other transport or RPC
// error, which callers treat as fatal.
func (p *Prober) GetStatus(ctx context.Context, port int32) (*domain.StatusResponse, error) {
	conn, err := grpc.NewClient(fmt.Sprintf("127.0.0.1:%d", port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("prober: dial status server: %w", err)
	}
	defer conn.Close()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := sinkpb.NewStatusClient(conn).GetStatus(callCtx, &sinkpb.GetStatusRequest{})
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return nil, ErrConnectionRefused
		}
		return nil, fmt.Errorf("prober: get status: %w", err)
	}

	return &domain.StatusResponse{
		Status:        int(resp.GetStatus()),
		StartingBlock: resp.GetStartingBlock(),
		CurrentBlock:  resp.GetCurrentBlock(),
		HeadBlock:     resp.GetHeadBlock(),
		Reason:        resp.GetReason(),
	}, nil
}

// PollUntilHealthy polls GetStatus every pollInterval until the probe
// reports HealthyStatus, deadline elapses, or ctx is cancelled. Connect-
// refused errors are tolerated and retried; any other error is fatal.
func (p *Prober) PollUntilHealthy(ctx context.Context, port int32, deadline, pollInterval time.Duration) (*domain.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		resp, err := p.GetStatus(ctx, port)
		switch {
		case err == nil && resp.Status == domain.HealthyStatus:
			return resp, nil
		case err == nil:
			// Responded but not yet healthy; keep polling.
		case errors.Is(err, ErrConnectionRefused):
			// Not listening yet; keep polling.
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("prober: deadline exceeded waiting for healthy status: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
