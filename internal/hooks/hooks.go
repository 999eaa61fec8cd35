// Package hooks stores the callback URLs registered for executions whose
// result is delivered asynchronously.
package hooks

import (
	"context"
	"net/url"

	"github.com/itstheanurag/judge/internal/apperr"
)

type Store interface {
	Register(ctx context.Context, executionID, callbackURL string) error
	Contains(ctx context.Context, executionID string) (bool, error)
	// Get returns an apperr NotFound error when nothing is registered.
	Get(ctx context.Context, executionID string) (string, error)
	Remove(ctx context.Context, executionID string) error
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperr.BadRequest("Bad request, invalid callback url : %s", raw)
	}
	return nil
}

func notFound(executionID string) error {
	return apperr.NotFound("no callback registered for execution " + executionID)
}
