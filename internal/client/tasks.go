package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// Task chain response keys carrying handles.
var handleKeys = []string{"taskchainUuid", "taskchainUuids", "taskchainId"}

// Monitor implements polaris.Client.Monitor.
//
// One handle is polled in the calling goroutine; several are polled
// concurrently, at most MaxConcurrent at a time, under one overall deadline.
// A failed task chain does not stop the others. Authentication and
// validation errors stop every poller and are returned with the statuses
// seen so far. When the deadline fires, unfinished handles are reported as
// UNKNOWN and a timeout error is returned along with the result.
func (c *Client) Monitor(ctx context.Context, handles []polaris.TaskHandle, opts polaris.MonitorOptions) (*polaris.MonitorResult, error) {
	opts = withMonitorDefaults(opts, c.monitor)
	handles = uniqueHandles(handles)

	if len(handles) == 0 {
		return &polaris.MonitorResult{
			Aggregate: polaris.TaskSucceeded,
			Statuses:  map[polaris.TaskHandle]polaris.TaskStatus{},
		}, nil
	}

	monitorCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	t := newTracker(handles)

	var err error

	if len(handles) == 1 {
		err = c.poll(monitorCtx, handles[0], opts, t)
	} else {
		g, gctx := errgroup.WithContext(monitorCtx)
		g.SetLimit(opts.MaxConcurrent)

		for _, h := range handles {
			g.Go(func() error {
				return c.poll(gctx, h, opts, t)
			})
		}

		err = g.Wait()
	}

	result := t.result()

	c.logger.Info("Task monitoring finished", map[string]interface{}{
		"handles":   len(handles),
		"aggregate": string(result.Aggregate),
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, context.DeadlineExceeded):
		return result, polaris.NewError(polaris.KindTimeout, "monitor",
			fmt.Errorf("%d of %d task chains unfinished after %v: %w",
				t.unfinished(), len(handles), opts.Timeout, context.DeadlineExceeded))
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return result, fmt.Errorf("task monitoring canceled: %w", err)
	default:
		return result, err
	}
}

// poll checks one handle until it is terminal. Backoff grows exponentially
// from PollInterval and never exceeds MaxPollInterval.
func (c *Client) poll(ctx context.Context, h polaris.TaskHandle, opts polaris.MonitorOptions, t *tracker) error {
	backoff := retry.WithCappedDuration(opts.MaxPollInterval, retry.NewExponential(opts.PollInterval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		status, err := c.fetchStatus(ctx, h, opts.RequestTimeout)

		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && (polaris.IsAuthentication(err) || polaris.IsValidation(err)):
			t.pollFailed(h, err)

			return err
		case err != nil:
			t.pollFailed(h, err)
			c.logger.Warn("Task status poll failed, retrying", map[string]interface{}{
				"handle": string(h),
				"error":  err.Error(),
			})
		default:
			previous, current := t.observe(status)
			if previous != current.State {
				c.logger.Info("Task chain state changed", map[string]interface{}{
					"handle": string(h),
					"from":   string(previous),
					"to":     string(current.State),
				})
			}

			if current.State.Terminal() {
				return nil
			}
		}

		wait, _ := backoff.Next()
		timer.Reset(wait)
	}
}

// fetchStatus runs one status query.
func (c *Client) fetchStatus(ctx context.Context, h polaris.TaskHandle, timeout time.Duration) (polaris.TaskStatus, error) {
	raw, err := c.Execute(ctx, constants.TaskStatusOperation, map[string]interface{}{"filter": string(h)}, timeout)
	if err != nil {
		return polaris.TaskStatus{}, err
	}

	field, _ := raw.Field()
	outer, _ := field.(map[string]interface{})
	chain, _ := outer["taskchain"].(map[string]interface{})

	state, ok := chain["state"].(string)
	if !ok {
		return polaris.TaskStatus{}, polaris.NewError(polaris.KindProtocol, constants.TaskStatusOperation,
			fmt.Errorf("%w: %s", constants.ErrUnexpectedTaskState, h))
	}

	detail, _ := chain["error"].(string)

	return polaris.TaskStatus{
		Handle:      h,
		State:       MapTaskState(state),
		ServerState: state,
		Error:       detail,
		UpdatedAt:   time.Now(),
	}, nil
}

// MapTaskState maps a server state string to a TaskState. Unrecognized
// states are UNKNOWN and keep being polled.
func MapTaskState(s string) polaris.TaskState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCEEDED", "SUCCESS":
		return polaris.TaskSucceeded
	case "FAILED", "FAILURE", "CANCELED", "CANCELLED", "ABORTED":
		return polaris.TaskFailed
	case "QUEUED", "PENDING", "READY":
		return polaris.TaskQueued
	case "RUNNING", "IN_PROGRESS", "CANCELING":
		return polaris.TaskRunning
	default:
		return polaris.TaskUnknown
	}
}

// HandlesFromResponse collects task chain ids from a decoded response, a
// RawResponse or a normalized Result. It understands taskchainUuid,
// taskchainId and taskchainUuids (a list of ids or of objects) at any depth.
func HandlesFromResponse(v interface{}) []polaris.TaskHandle {
	var out []polaris.TaskHandle

	switch r := v.(type) {
	case *polaris.RawResponse:
		if r != nil {
			collectHandles(r.Document, "", &out)
		}
	case polaris.Result:
		collectHandles(r.Interface(), "", &out)
	default:
		collectHandles(v, "", &out)
	}

	return uniqueHandles(out)
}

func collectHandles(v interface{}, key string, out *[]polaris.TaskHandle) {
	switch val := v.(type) {
	case string:
		if val != "" && slices.Contains(handleKeys, key) {
			*out = append(*out, polaris.TaskHandle(val))
		}
	case []interface{}:
		for _, item := range val {
			collectHandles(item, key, out)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}

		slices.Sort(keys)

		for _, k := range keys {
			collectHandles(val[k], k, out)
		}
	}
}

func uniqueHandles(handles []polaris.TaskHandle) []polaris.TaskHandle {
	seen := make(map[polaris.TaskHandle]struct{}, len(handles))
	out := make([]polaris.TaskHandle, 0, len(handles))

	for _, h := range handles {
		if _, ok := seen[h]; ok || h == "" {
			continue
		}

		seen[h] = struct{}{}
		out = append(out, h)
	}

	return out
}

func withMonitorDefaults(opts, base polaris.MonitorOptions) polaris.MonitorOptions {
	opts.PollInterval = firstPositive(opts.PollInterval, base.PollInterval, constants.DefaultPollInterval)
	opts.MaxPollInterval = firstPositive(opts.MaxPollInterval, base.MaxPollInterval, constants.DefaultMaxPollInterval)
	opts.Timeout = firstPositive(opts.Timeout, base.Timeout, constants.DefaultMonitorTimeout)
	opts.RequestTimeout = firstPositive(opts.RequestTimeout, base.RequestTimeout, constants.DefaultRequestTimeout)

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = base.MaxConcurrent
	}

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = constants.DefaultMaxConcurrentPollers
	}

	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = opts.PollInterval
	}

	return opts
}

func firstPositive(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}

	return 0
}

// tracker holds the statuses of one monitoring session.
type tracker struct {
	mu           sync.Mutex
	order        []polaris.TaskHandle
	statuses     map[polaris.TaskHandle]polaris.TaskStatus
	firstFailure *polaris.TaskStatus
}

func newTracker(handles []polaris.TaskHandle) *tracker {
	t := &tracker{
		order:    handles,
		statuses: make(map[polaris.TaskHandle]polaris.TaskStatus, len(handles)),
	}

	for _, h := range handles {
		t.statuses[h] = polaris.TaskStatus{Handle: h, State: polaris.TaskUnknown}
	}

	return t
}

// observe records a status and returns the previous state with the stored
// status.
func (t *tracker) observe(status polaris.TaskStatus) (polaris.TaskState, polaris.TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.statuses[status.Handle]
	status.Polls = prev.Polls + 1
	t.statuses[status.Handle] = status

	if status.State == polaris.TaskFailed && t.firstFailure == nil {
		failure := status
		t.firstFailure = &failure
	}

	return prev.State, status
}

func (t *tracker) pollFailed(h polaris.TaskHandle, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.statuses[h]
	s.Polls++
	s.Error = err.Error()
	s.UpdatedAt = time.Now()
	t.statuses[h] = s
}

func (t *tracker) unfinished() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0

	for _, s := range t.statuses {
		if !s.State.Terminal() {
			n++
		}
	}

	return n
}

// result builds the session outcome. Handles that never reached a terminal
// state are UNKNOWN, with the last server state kept for diagnosis.
func (t *tracker) result() *polaris.MonitorResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := &polaris.MonitorResult{
		Aggregate: polaris.TaskSucceeded,
		Statuses:  make(map[polaris.TaskHandle]polaris.TaskStatus, len(t.statuses)),
	}

	for _, h := range t.order {
		s := t.statuses[h]
		if !s.State.Terminal() {
			s.State = polaris.TaskUnknown
		}

		if s.State != polaris.TaskSucceeded {
			res.Aggregate = polaris.TaskFailed
		}

		res.Statuses[h] = s
	}

	if t.firstFailure != nil {
		failure := *t.firstFailure
		res.FirstFailure = &failure
	}

	return res
}
