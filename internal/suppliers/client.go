// Package suppliers turns supplier catalog responses into domain.PartInfo records.
package suppliers

import (
	"context"
	"errors"
	"fmt"

	"synctree/internal/domain"
	"synctree/internal/logging"
	"synctree/internal/metrics"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means the supplier has no matching part. Retrying will not help.
	ErrNotFound = errors.New("suppliers: part not found")
	// ErrUnavailable means the supplier could not be asked (transport failure, 5xx,
	// throttling, malformed response). The lookup may succeed later.
	ErrUnavailable = errors.New("suppliers: supplier unavailable")
)

// Client is implemented once per supplier.
type Client interface {
	// Name is the supplier name as stored downstream (e.g. "Digikey").
	Name() string
	// GetPartInfo looks up a supplier or manufacturer part number. It returns an error
	// wrapping ErrNotFound or ErrUnavailable when no part could be produced.
	GetPartInfo(ctx context.Context, partNumber string) (*domain.PartInfo, error)
}

// IsRetryable reports whether a lookup error is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsNotFound reports whether the supplier definitively has no such part.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var validate = validator.New()

// validateSchema checks a decoded supplier record once at the adapter boundary.
func validateSchema(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: incomplete supplier record: %v", ErrNotFound, err)
	}
	return nil
}

type lookupFunc func(ctx context.Context, partNumber string) (*domain.PartInfo, error)

// lookupWithFallback runs the direct lookup and, when it fails for any reason, the
// keyword search. If both fail the result is ErrUnavailable when either attempt hit
// a transient failure and ErrNotFound otherwise.
func lookupWithFallback(ctx context.Context, logger *zap.Logger, supplier, partNumber string, direct, keyword lookupFunc) (*domain.PartInfo, error) {
	timer := metrics.NewTimer()

	info, directErr := direct(ctx, partNumber)
	if directErr == nil {
		directErr = info.Validate()
	}
	if directErr == nil {
		metrics.RecordLookup(supplier, metrics.LookupFound, timer.Duration())
		return info, nil
	}
	logger.Debug("direct lookup failed, trying keyword search", logging.PartField(partNumber), zap.Error(directErr))

	info, keywordErr := keyword(ctx, partNumber)
	if keywordErr == nil {
		keywordErr = info.Validate()
	}
	if keywordErr == nil {
		metrics.RecordLookup(supplier, metrics.LookupFound, timer.Duration())
		return info, nil
	}

	if IsRetryable(directErr) || IsRetryable(keywordErr) {
		logger.Warn("supplier lookup failed",
			logging.PartField(partNumber),
			zap.NamedError("direct", directErr),
			zap.NamedError("keyword", keywordErr))
		metrics.RecordLookup(supplier, metrics.LookupUnavailable, timer.Duration())
		return nil, fmt.Errorf("%s lookup %q: %w", supplier, partNumber, ErrUnavailable)
	}

	logger.Debug("part not found", logging.PartField(partNumber), zap.NamedError("keyword", keywordErr))
	metrics.RecordLookup(supplier, metrics.LookupNotFound, timer.Duration())
	return nil, fmt.Errorf("%s lookup %q: %w", supplier, partNumber, ErrNotFound)
}
