package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/config"
)

// Session owns the node's single broker connection.
//
// Every device shares the Client returned by Connect. The first call
// dials with exponential backoff; later calls return the same Client.
//
// Thread Safety:
//   - Connect and Close are safe for concurrent use.
type Session struct {
	cfg    config.MQTTConfig
	nodeID string
	logger Logger

	// dial is replaced in tests.
	dial func(cfg config.MQTTConfig, nodeID string) (*Client, error)

	mu     sync.Mutex
	client *Client
	closed bool
}

// NewSession prepares a session without dialing. An empty client id in
// cfg is replaced by fieldnode-{nodeID}-{random suffix} so that two
// nodes with default settings never evict each other at the broker.
func NewSession(cfg config.MQTTConfig, nodeID string, logger Logger) *Session {
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = fmt.Sprintf("%s-%s-%s", TopicPrefixNode, nodeID, uuid.NewString()[:8])
	}
	return &Session{
		cfg:    cfg,
		nodeID: nodeID,
		logger: logger,
		dial:   Connect,
	}
}

// ClientID returns the client identifier presented to the broker.
func (s *Session) ClientID() string {
	return s.cfg.Broker.ClientID
}

// Connect returns the shared Client, dialing on first use.
//
// Failed dials are retried with exponential backoff between
// reconnect.initial_delay and reconnect.max_delay, for at most
// reconnect.connect_timeout in total. Cancelling ctx stops the retries.
//
// Returns:
//   - *Client: The connected shared client
//   - error: ErrConnectionFailed (wrapped) once retries are exhausted
func (s *Session) Connect(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.client != nil {
		return s.client, nil
	}

	var client *Client
	operation := func() error {
		c, err := s.dial(s.cfg, s.nodeID)
		if err != nil {
			return err
		}
		client = c
		return nil
	}

	notify := func(err error, next time.Duration) {
		if s.logger != nil {
			s.logger.Warn("MQTT dial failed, retrying",
				"broker", fmt.Sprintf("%s:%d", s.cfg.Broker.Host, s.cfg.Broker.Port),
				"retry_in", next,
				"error", err,
			)
		}
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(s.backoff(), ctx), notify); err != nil {
		if errors.Is(err, ErrConnectionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if s.logger != nil {
		client.SetLogger(s.logger)
	}
	s.client = client
	return client, nil
}

// backoff builds the retry schedule from the reconnect settings.
func (s *Session) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.cfg.Reconnect.InitialDelay > 0 {
		b.InitialInterval = time.Duration(s.cfg.Reconnect.InitialDelay) * time.Second
	}
	if s.cfg.Reconnect.MaxDelay > 0 {
		b.MaxInterval = time.Duration(s.cfg.Reconnect.MaxDelay) * time.Second
	}
	b.MaxElapsedTime = s.cfg.ConnectTimeout()
	b.Reset()
	return b
}

// Close disconnects the shared client, if any. Connect fails afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
