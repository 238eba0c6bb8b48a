package transfer

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

// RateLimitOption is the source option holding a bandwidth cap per second.
const RateLimitOption = "rate_limit"

// LimiterFor builds a bandwidth limiter from the source's rate_limit option
// ("512KB", "10MiB", "1048576"). It returns nil when no limit is configured.
func LimiterFor(source domain.Source) (*rate.Limiter, error) {
	raw := source.Option(RateLimitOption, "")
	if raw == "" {
		return nil, nil
	}
	bps, err := humanize.ParseBytes(raw)
	if err != nil {
		return nil, &domain.ValidationError{Field: RateLimitOption, Reason: fmt.Sprintf("cannot parse %q", raw)}
	}
	if bps == 0 {
		return nil, nil
	}
	burst := int(bps)
	if burst < ChunkSize {
		burst = ChunkSize
	}
	return rate.NewLimiter(rate.Limit(bps), burst), nil
}
