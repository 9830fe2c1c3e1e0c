package ico

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-ico/internal/observability"
	"solana-ico/internal/solana"
)

const defaultPollInterval = 500 * time.Millisecond

// Confirmer waits for signatures to reach a commitment level.
type Confirmer struct {
	rpc          solana.RPCClient
	ws           solana.WSClient
	commitment   string
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// ConfirmerOption configures a Confirmer.
type ConfirmerOption func(*Confirmer)

// WithWebSocket enables signatureSubscribe notifications. Polling still runs
// alongside so a dropped subscription cannot stall confirmation.
func WithWebSocket(ws solana.WSClient) ConfirmerOption {
	return func(c *Confirmer) { c.ws = ws }
}

// WithPollInterval sets the getSignatureStatuses polling interval.
func WithPollInterval(d time.Duration) ConfirmerOption {
	return func(c *Confirmer) { c.pollInterval = d }
}

// WithConfirmLogger sets the logger.
func WithConfirmLogger(logger *zap.Logger) ConfirmerOption {
	return func(c *Confirmer) { c.logger = logger }
}

// NewConfirmer creates a Confirmer. A zero timeout waits until ctx ends.
func NewConfirmer(rpc solana.RPCClient, commitment string, timeout time.Duration, opts ...ConfirmerOption) *Confirmer {
	if commitment == "" {
		commitment = solana.CommitmentConfirmed
	}
	c := &Confirmer{
		rpc:          rpc,
		commitment:   commitment,
		timeout:      timeout,
		pollInterval: defaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commitment returns the commitment level waited for.
func (c *Confirmer) Commitment() string {
	return c.commitment
}

// Wait blocks until signature reaches the commitment. The returned status
// carries the transaction error, if the transaction failed on chain.
func (c *Confirmer) Wait(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	start := time.Now()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	status, err := c.poll(ctx, signature)
	if err != nil {
		// Same as a failed tick: the loop below retries.
		c.logger.Debug("signature status poll failed",
			zap.String("signature", signature),
			zap.Error(err),
		)
	} else if status != nil {
		observability.RecordConfirmation(time.Since(start).Seconds())
		return status, nil
	}

	// Cancelled on return so an unanswered subscription is dropped.
	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()

	var notifications <-chan solana.SignatureNotification
	if c.ws != nil {
		notifications, err = c.ws.SubscribeSignature(subCtx, signature, c.commitment)
		if err != nil {
			c.logger.Warn("signature subscription failed, polling only",
				zap.String("signature", signature),
				zap.Error(err),
			)
			notifications = nil
		}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: %s", ErrConfirmTimeout, signature)
			}
			return nil, ctx.Err()

		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			observability.RecordConfirmation(time.Since(start).Seconds())
			return &solana.SignatureStatus{
				Slot:               n.Slot,
				Err:                n.Err,
				ConfirmationStatus: c.commitment,
			}, nil

		case <-ticker.C:
			status, err := c.poll(ctx, signature)
			if err != nil {
				c.logger.Debug("signature status poll failed",
					zap.String("signature", signature),
					zap.Error(err),
				)
				continue
			}
			if status != nil {
				observability.RecordConfirmation(time.Since(start).Seconds())
				return status, nil
			}
		}
	}
}

// poll returns the status once it reached the commitment or carries an error.
func (c *Confirmer) poll(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("get signature status: %w", err)
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil, nil
	}
	st := statuses[0]
	if st.Err != nil || st.Reached(c.commitment) {
		return st, nil
	}
	return nil, nil
}
