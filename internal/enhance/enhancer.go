package enhance

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrEnhancementFailed means every configured tier failed; callers surface
// it as a processing error without mutating the image record.
var ErrEnhancementFailed = errors.New("image enhancement failed")

// Enhancer produces an enhanced copy of the image at inputPath, written to
// outputPath. Implementations must not leave a partial file at outputPath
// on failure.
type Enhancer interface {
	Enhance(ctx context.Context, inputPath, outputPath string) error
}

// Chain tries each enhancer in order and returns on the first success.
// Tier failures are downgraded to log lines; only when every tier has
// failed does the chain report ErrEnhancementFailed.
type Chain struct {
	tiers []Enhancer
	log   zerolog.Logger
}

func NewChain(log zerolog.Logger, tiers ...Enhancer) *Chain {
	return &Chain{tiers: tiers, log: log}
}

func (c *Chain) Enhance(ctx context.Context, inputPath, outputPath string) error {
	if len(c.tiers) == 0 {
		return ErrEnhancementFailed
	}

	var lastErr error
	for i, tier := range c.tiers {
		err := tier.Enhance(ctx, inputPath, outputPath)
		if err == nil {
			return nil
		}
		lastErr = err
		c.log.Warn().
			Err(err).
			Int("tier", i).
			Str("input", inputPath).
			Msg("enhancement tier failed")
	}

	return errors.Join(ErrEnhancementFailed, lastErr)
}
