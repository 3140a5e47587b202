package identity

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	// refreshMaxAttempts はトークン再発行の最大試行回数。
	refreshMaxAttempts = 3
	// defaultRetryBackoff は指数バックオフの初回遅延。
	defaultRetryBackoff = 200 * time.Millisecond
	// maxRetryBackoff は指数バックオフの最大遅延。
	maxRetryBackoff = 2 * time.Second
)

// errTransport はIdPへの通信自体が失敗したことを表す。
var errTransport = errors.New("identity request failed")

// isTransient はリトライで回復し得るエラーかを判定する。
// 通信エラーと429/5xxのみが対象で、トークン不正などの4xxは即座に失敗とする。
func isTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == http.StatusTooManyRequests || pe.StatusCode >= 500
	}
	return errors.Is(err, errTransport)
}

// retryBackoff は試行回数に基づく指数バックオフ遅延を返す。
// attemptは0始まり。initialから2倍ずつ増加し、maxRetryBackoffで頭打ちになる。
func retryBackoff(initial time.Duration, attempt int) time.Duration {
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return delay
}

// withRetry は一時的なエラーの間fnを再試行する。
// ctxが終了した場合は待機を中断し、最後のエラーを返す。
func withRetry[T any](ctx context.Context, initial time.Duration, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 0; attempt < refreshMaxAttempts; attempt++ {
		result, err = fn()
		if err == nil || !isTransient(err) || attempt == refreshMaxAttempts-1 {
			return result, err
		}

		timer := time.NewTimer(retryBackoff(initial, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
	}
	return result, err
}
