package lamp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Action is a relay command verb.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionToggle Action = "toggle"
)

// ErrKindTimeout is the Result.ErrKind value for a timed-out request.
const ErrKindTimeout = "timeout"

// Command is an ephemeral, fire-and-forget relay instruction. It is never
// persisted; it is derived from a table's post-transition state.
type Command struct {
	Channel        int
	Action         Action
	AutoOffSeconds int
	// OverrideURL, when set, replaces the numeric-channel URL entirely.
	OverrideURL string
}

// Result captures the outcome of one relay request. A non-2xx status or a
// transport failure is informational only; callers proceed with their own
// state transitions regardless.
type Result struct {
	OK         bool
	StatusCode int
	Body       string
	ErrKind    string
}

// Sender dispatches a single relay command.
type Sender interface {
	Send(ctx context.Context, cmd Command) Result
}

const maxBodyBytes = 4096

// Client issues HTTP control commands to the relay device that drives the
// table lamps. Each command is a fully independent, stateless GET; no
// connection or session state is kept per channel.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a relay client for the given device base address.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Send issues the command with the client-side timeout and reports the
// outcome as a value. It never returns a Go error: lamp control is best
// effort and must never block or roll back a table-state transition.
func (c *Client) Send(ctx context.Context, cmd Command) Result {
	target, err := c.buildURL(cmd)
	if err != nil {
		return Result{ErrKind: err.Error()}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{ErrKind: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Result{ErrKind: ErrKindTimeout}
		}
		return Result{ErrKind: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	return Result{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// buildURL produces the request URL: the per-table override endpoint when
// one is configured for the action, otherwise the numeric-channel form
// {base}?num={channel}&action={action}[&duration={seconds}].
func (c *Client) buildURL(cmd Command) (string, error) {
	if cmd.OverrideURL != "" {
		u, err := url.Parse(cmd.OverrideURL)
		if err != nil {
			return "", fmt.Errorf("invalid override url: %w", err)
		}
		if cmd.AutoOffSeconds > 0 {
			q := u.Query()
			// Leave an existing duration parameter alone.
			if q.Get("duration") == "" {
				q.Set("duration", strconv.Itoa(cmd.AutoOffSeconds))
				u.RawQuery = q.Encode()
			}
		}
		return u.String(), nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid lamp base url: %w", err)
	}
	q := u.Query()
	q.Set("num", strconv.Itoa(cmd.Channel))
	q.Set("action", string(cmd.Action))
	if cmd.AutoOffSeconds > 0 {
		q.Set("duration", strconv.Itoa(cmd.AutoOffSeconds))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}
