// Package ragerr defines the error taxonomy shared by the retrieval pipeline.
// Transient errors (network, timeout) may be retried where a component's contract
// says so; model errors are never retried blindly.
package ragerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	ErrEmbeddingUnavailable  = errors.New("embedding service unavailable")
	ErrEmbeddingModel        = errors.New("embedding model error")
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrGenerationModel       = errors.New("generation model error")
	ErrVectorStore           = errors.New("vector store failure")

	// ErrIndexNotReady is returned to queries that arrive before the one-time
	// indexing run has completed.
	ErrIndexNotReady = errors.New("verse index not ready")
)

// FatalIndexingError aborts a whole indexing run. A partially populated index
// silently degrades retrieval quality, so it is never presented as ready.
type FatalIndexingError struct {
	EmbeddingID string
	Attempts    int
	Err         error
}

func (e *FatalIndexingError) Error() string {
	return fmt.Sprintf("indexing aborted at %s after %d attempt(s): %v", e.EmbeddingID, e.Attempts, e.Err)
}

func (e *FatalIndexingError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a network-ish failure worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable) ||
		errors.Is(err, ErrVectorStore)
}

// IsModel reports whether err is a model-side rejection or malformed output.
func IsModel(err error) bool {
	return errors.Is(err, ErrEmbeddingModel) || errors.Is(err, ErrGenerationModel)
}

// Classify wraps a raw client error with the matching sentinel: connection and
// timeout failures become transient, everything else is attributed to the model.
func Classify(err, transient, model error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return fmt.Errorf("%w: %v", transient, err)
	}
	return fmt.Errorf("%w: %v", model, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
