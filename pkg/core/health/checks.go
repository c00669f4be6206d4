package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/msto63/hive/pkg/core/ptam"
)

// TCPCheck dials address and reports unhealthy if the dial fails
func TCPCheck(name, address string, timeout time.Duration) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		result := CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Details: map[string]interface{}{"address": address},
		}

		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			return result
		}
		conn.Close()

		result.Message = "reachable"
		return result
	})
}

// PingCheck reports unhealthy when ping returns an error
func PingCheck(name string, ping func(ctx context.Context) error) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Name: name, Status: StatusUnhealthy, Message: err.Error()}
		}
		return CheckResult{Name: name, Status: StatusHealthy, Message: "ok"}
	})
}

// FreshnessCheck reports degraded when last() is older than maxAge and
// unknown when nothing has been seen yet.
func FreshnessCheck(name string, last func() time.Time, maxAge time.Duration) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		seen := last()
		if seen.IsZero() {
			return CheckResult{Name: name, Status: StatusUnknown, Message: "no data yet"}
		}

		age := time.Since(seen)
		result := CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Message: "fresh",
			Details: map[string]interface{}{"age": age.Truncate(time.Millisecond).String()},
		}
		if age > maxAge {
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("stale for %s", age.Truncate(time.Second))
		}
		return result
	})
}

// StatsSource reports per-partition register usage
type StatsSource interface {
	Stats() []ptam.PartitionStats
}

// StoreCheck reports degraded when any register partition is filled to
// degradedAt percent of its capacity or more.
func StoreCheck(name string, store StatsSource, degradedAt float64) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		result := CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Message: "ok",
			Details: make(map[string]interface{}),
		}

		for _, p := range store.Stats() {
			result.Details[p.Kind.String()] = fmt.Sprintf("%d/%d", p.Len, p.Capacity)
			if p.Usage() >= degradedAt {
				result.Status = StatusDegraded
				result.Message = fmt.Sprintf("%s partition at %.0f%%", p.Kind, p.Usage())
			}
		}
		return result
	})
}

// AlwaysHealthy returns a checker that always reports healthy
func AlwaysHealthy(name string) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		return CheckResult{Name: name, Status: StatusHealthy, Message: "ok"}
	})
}
