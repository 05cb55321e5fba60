package mocks

import (
	"context"
	"sync"

	"github.com/benmeehan/gps-streamer/pkg/location"
)

// Provider is a scripted location.Provider. Fixes sent with Deliver reach the active
// subscription; Fail ends it with an error.
type Provider struct {
	mu            sync.Mutex
	fixes         chan delivery
	failures      chan error
	subscriptions int
	active        int
	closed        bool
	requests      []location.Request
}

type delivery struct {
	fix  location.Location
	done chan struct{}
}

// NewProvider creates an idle Provider.
func NewProvider() *Provider {
	return &Provider{
		fixes:    make(chan delivery),
		failures: make(chan error),
	}
}

func (p *Provider) RequestLocationUpdates(ctx context.Context, req location.Request, listener location.Listener) error {
	p.mu.Lock()
	p.subscriptions++
	p.active++
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-p.failures:
			return err
		case d := <-p.fixes:
			listener(d.fix)
			close(d.done)
		}
	}
}

// Deliver hands a fix to the subscription and returns once the listener has run.
func (p *Provider) Deliver(ctx context.Context, fix location.Location) bool {
	d := delivery{fix: fix, done: make(chan struct{})}
	select {
	case p.fixes <- d:
	case <-ctx.Done():
		return false
	}
	<-d.done
	return true
}

// Fail ends the active subscription with err.
func (p *Provider) Fail(ctx context.Context, err error) bool {
	select {
	case p.failures <- err:
		return true
	case <-ctx.Done():
		return false
	}
}

// Subscriptions returns how many times RequestLocationUpdates was called.
func (p *Provider) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscriptions
}

// Requests returns the requests of every subscription so far.
func (p *Provider) Requests() []location.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]location.Request{}, p.requests...)
}

// Active returns the number of running subscriptions.
func (p *Provider) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Closed reports whether Close was called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
