// Package rating tells the external rating calculator about settled sessions.
package rating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

// HeaderProvider supplies extra headers per request.
type HeaderProvider func() map[string]string

type Notifier struct {
	url     string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int

	// notice builds the payload; matchpresenter.Presenter.ResultNotice in production.
	notice func(*match.Session) matchdto.ResultNotice
}

type Option func(*Notifier)

func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(n *Notifier) { n.retryMax = max }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(n *Notifier) { n.headers = h }
}

func NewNotifier(url string, notice func(*match.Session) matchdto.ResultNotice, opts ...Option) *Notifier {
	n := &Notifier{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
		notice:         notice,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SessionEnded hands the result off in the background. Only rated sessions
// and decisive or drawn outcomes are reported.
func (n *Notifier) SessionEnded(_ context.Context, s *match.Session, _ []match.MoveRecord) error {
	if n == nil || n.url == "" || s == nil || s.Mode != match.ModeRated || s.Result == match.ResultNoResult {
		return nil
	}
	notice := n.notice(s)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(n.attempts()+1)*n.defaultTimeout)
		defer cancel()
		if err := n.Notify(ctx, notice); err != nil {
			obslog.L().Warn("rating_notify_failed", zap.String("session_id", notice.SessionID), zap.Error(err))
			return
		}
		obslog.L().Info("rating_notified", zap.String("session_id", notice.SessionID), zap.String("result", notice.Result))
	}()
	return nil
}

// Notify posts notice and waits for the calculator to accept it.
func (n *Notifier) Notify(ctx context.Context, notice matchdto.ResultNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(n.url)
	req.Header.SetContentType("application/json")
	// session id doubles as the idempotency key
	req.Header.Set("Idempotency-Key", notice.SessionID)
	if n.headers != nil {
		for k, v := range n.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	req.SetBody(payload)

	attempts := n.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := n.http.DoDeadline(req, resp, n.deadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return nil
			}
			err = fmt.Errorf("rating webhook: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if !shouldRetryStatus(status) {
				return err
			}
		} else {
			err = fmt.Errorf("rating webhook: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("rating webhook: no attempt made")
	}
	return lastErr
}

func (n *Notifier) attempts() int {
	if n.retryMax <= 0 {
		return 1
	}
	return n.retryMax
}

func (n *Notifier) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(n.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
