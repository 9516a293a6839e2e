// Package oracle implements the request/fulfill protocol for the external
// verifiable-randomness service. A request and its fulfillment are always two
// distinct atomic steps separated by unbounded time; each request is consumed
// at most once.
package oracle

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownRequest is returned for a fulfillment whose request id is not
// outstanding (unknown or already consumed).
var ErrUnknownRequest = errors.New("oracle: request not outstanding")

// Consumer receives the random word for a fulfilled request. It is invoked
// outside the adapter's lock, exactly once per request.
type Consumer func(requestID string, randomWord uint64)

// Coordinator forwards a registered request to the randomness service.
// Fulfillment arrives later through Adapter.Fulfill.
type Coordinator interface {
	Submit(requestID string) error
}

// Adapter correlates outstanding randomness requests to their consumers.
type Adapter struct {
	mu          sync.Mutex
	coordinator Coordinator
	pending     map[string]pendingRequest
}

type pendingRequest struct {
	game    string
	purpose string
	consume Consumer
}

// NewAdapter creates an adapter backed by the given coordinator.
func NewAdapter(c Coordinator) *Adapter {
	return &Adapter{
		coordinator: c,
		pending:     make(map[string]pendingRequest),
	}
}

// Request registers a pending request correlated to one (game, purpose) pair
// and submits it to the coordinator. Returns the request id.
func (a *Adapter) Request(game, purpose string, consume Consumer) (string, error) {
	id := uuid.New().String()

	a.mu.Lock()
	a.pending[id] = pendingRequest{game: game, purpose: purpose, consume: consume}
	a.mu.Unlock()

	if err := a.coordinator.Submit(id); err != nil {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
		return "", fmt.Errorf("oracle: submit: %w", err)
	}

	slog.Info("randomness requested", "request_id", id, "game", game, "purpose", purpose)
	return id, nil
}

// Fulfill delivers a random word for an outstanding request, consuming it.
// A fulfillment for an unknown or already-consumed id is rejected with
// ErrUnknownRequest and has no effect.
func (a *Adapter) Fulfill(requestID string, randomWord uint64) error {
	a.mu.Lock()
	req, ok := a.pending[requestID]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownRequest
	}
	delete(a.pending, requestID)
	a.mu.Unlock()

	slog.Info("randomness fulfilled", "request_id", requestID, "game", req.game, "purpose", req.purpose)
	req.consume(requestID, randomWord)
	return nil
}

// Cancel drops an outstanding request without fulfilling it. Used by the
// admin re-request path when the randomness service never delivers. Returns
// ErrUnknownRequest if the id is not outstanding.
func (a *Adapter) Cancel(requestID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.pending[requestID]; !ok {
		return ErrUnknownRequest
	}
	delete(a.pending, requestID)
	return nil
}

// Outstanding reports whether a request id is still pending.
func (a *Adapter) Outstanding(requestID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[requestID]
	return ok
}

// LocalCoordinator fulfills requests in-process from crypto/rand after a
// short delay, preserving the asynchronous two-step shape of the protocol.
// For development and single-node deployments.
type LocalCoordinator struct {
	adapter *Adapter
	delay   time.Duration
}

// NewLocalCoordinator creates a local coordinator. Call Bind before use.
func NewLocalCoordinator(delay time.Duration) *LocalCoordinator {
	return &LocalCoordinator{delay: delay}
}

// Bind attaches the adapter the coordinator delivers fulfillments to.
func (c *LocalCoordinator) Bind(a *Adapter) { c.adapter = a }

func (c *LocalCoordinator) Submit(requestID string) error {
	go func() {
		time.Sleep(c.delay)
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			slog.Error("local randomness source failed", "request_id", requestID, "err", err)
			return
		}
		word := binary.BigEndian.Uint64(buf[:])
		if err := c.adapter.Fulfill(requestID, word); err != nil {
			slog.Warn("local fulfillment rejected", "request_id", requestID, "err", err)
		}
	}()
	return nil
}

// ExternalCoordinator is used when fulfillments arrive from an external VRF
// service through the HTTP fulfill endpoint; submitting is a no-op beyond
// logging, since the external service watches the request feed.
type ExternalCoordinator struct{}

func (ExternalCoordinator) Submit(requestID string) error {
	slog.Info("randomness request awaiting external fulfillment", "request_id", requestID)
	return nil
}
