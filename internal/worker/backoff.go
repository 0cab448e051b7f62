package worker

import (
	"math/rand"
	"time"

	"autoposter/internal/config"
)

// backoffFor computes the delay before retry number attempt (1-based):
// exponential growth from the initial backoff, capped, with symmetric
// jitter so a burst of failures does not re-enqueue in lockstep.
func backoffFor(cfg config.RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
			break
		}
	}
	if backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	if cfg.JitterFraction > 0 {
		jitter := (rand.Float64()*2 - 1) * cfg.JitterFraction
		backoff = time.Duration(float64(backoff) * (1 + jitter))
	}

	return backoff
}
