/*
Copyright 2024 NetPlay Hub Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hubsoft

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Priority orders queued HubSoft calls. Priority decides who goes next,
// never whether the ceiling applies.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	default:
		return "LOW"
	}
}

type queuedRequest struct {
	priority Priority
	seq      uint64
	ctx      context.Context
	fn       func(ctx context.Context) error
	result   chan error
}

// requestHeap orders by priority, FIFO within a tier.
type requestHeap []*queuedRequest

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x interface{}) {
	*h = append(*h, x.(*queuedRequest))
}
func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// RateLimiter is the single serialized gate in front of every HubSoft
// call. It enforces the per-minute ceiling with a paced token bucket
// (one admission per ceiling-interval, so no rolling minute ever sees
// more than the ceiling), bounds in-flight calls, and retries 429/5xx
// failures with exponential backoff. Each retry attempt is re-admitted
// through the same ceiling.
type RateLimiter struct {
	limiter       *rate.Limiter
	sem           chan struct{}
	maxRetries    uint64
	backoffBase   time.Duration
	backoffCap    time.Duration
	mu       sync.Mutex
	queue    requestHeap
	seq      uint64
	wake     chan struct{}
	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewRateLimiter(cfg *config.Configuration) *RateLimiter {
	interval := time.Minute / time.Duration(cfg.HubSoftLimit.RequestsPerMinute)

	r := &RateLimiter{
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		sem:         make(chan struct{}, cfg.HubSoftLimit.MaxConcurrent),
		maxRetries:  uint64(cfg.HubSoftLimit.MaxRetries),
		backoffBase: time.Duration(cfg.HubSoftLimit.BackoffBaseMs) * time.Millisecond,
		backoffCap:  time.Duration(cfg.HubSoftLimit.BackoffCapMs) * time.Millisecond,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.dispatch()
	return r
}

// Submit queues fn behind the ceiling at the given priority and blocks
// until it completes, fails permanently, or ctx is cancelled.
func (r *RateLimiter) Submit(ctx context.Context, priority Priority, fn func(ctx context.Context) error) error {
	req := &queuedRequest{
		priority: priority,
		ctx:      ctx,
		fn:       fn,
		result:   make(chan error, 1),
	}

	r.mu.Lock()
	select {
	case <-r.stop:
		r.mu.Unlock()
		return apierror.NewAPIError(apierror.ErrInternalServer, "rate limiter is shut down", nil)
	default:
	}
	r.seq++
	req.seq = r.seq
	heap.Push(&r.queue, req)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait admits one extra call against the ceiling. Used by the facade
// for the single post-auth-failure retry, which would otherwise slip
// past the gate.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Close drains nothing: queued requests receive a shutdown error and
// the dispatcher exits after the in-flight call finishes.
func (r *RateLimiter) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
}

func (r *RateLimiter) dispatch() {
	defer r.wg.Done()

	for {
		// Capacity first: requests stay priority-ordered in the heap
		// until there is room to run one.
		select {
		case r.sem <- struct{}{}:
		case <-r.stop:
			r.failPending()
			return
		}

		req := r.next()
		for req == nil {
			select {
			case <-r.wake:
				req = r.next()
			case <-r.stop:
				<-r.sem
				r.failPending()
				return
			}
		}

		if req.ctx.Err() != nil {
			<-r.sem
			req.result <- req.ctx.Err()
			continue
		}

		if err := r.limiter.Wait(req.ctx); err != nil {
			<-r.sem
			req.result <- err
			continue
		}

		r.wg.Add(1)
		go func(req *queuedRequest) {
			defer r.wg.Done()
			defer func() { <-r.sem }()
			req.result <- r.execute(req)
		}(req)
	}
}

func (r *RateLimiter) next() *queuedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue.Len() == 0 {
		return nil
	}
	return heap.Pop(&r.queue).(*queuedRequest)
}

func (r *RateLimiter) failPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.queue.Len() > 0 {
		req := heap.Pop(&r.queue).(*queuedRequest)
		req.result <- apierror.NewAPIError(apierror.ErrInternalServer, "rate limiter is shut down", nil)
	}
}

// execute runs the call with bounded exponential backoff. Retries apply
// only to transient failures; each one re-enters the ceiling before
// touching the ERP again.
func (r *RateLimiter) execute(req *queuedRequest) error {
	attempt := 0
	operation := func() error {
		if attempt > 0 {
			logrus.Warnf("retrying hubsoft call (priority=%s attempt=%d)", req.priority, attempt)
			if err := r.limiter.Wait(req.ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempt++

		err := req.fn(req.ctx)
		if err == nil {
			return nil
		}
		if apierror.Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffBase
	bo.MaxInterval = r.backoffCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, r.maxRetries), req.ctx))
}
