package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	gh "github.com/google/go-github/v39/github"

	"github.com/jask/bountyledger/internal/remote"
)

// classify maps go-github failures onto the remote error taxonomy.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.Unavailable(op, id, err)
	}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return remote.Unavailable(op, id, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", op, id, remote.ErrNotFound)
		case code == http.StatusMethodNotAllowed || code == http.StatusConflict:
			return fmt.Errorf("%s %s: %w: %s", op, id, remote.ErrConflict, respErr.Message)
		case code >= 500:
			return remote.Unavailable(op, id, err)
		}
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return remote.Unavailable(op, id, err)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func statusOf(err error) int {
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	return 0
}
