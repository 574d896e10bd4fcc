// Package classifier provides classification oracles: anything that turns the built
// contract text into a category object reply.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pbaille/braindump/internal/domain"
)

// Request is what an oracle receives for one pass
type Request struct {
	// Contract is the full instruction text from the contract builder
	Contract string
	// Source is the structured request the contract was built from; rule-based
	// oracles read it directly
	Source domain.ClassificationRequest
}

// Oracle classifies one request and returns its raw textual reply
type Oracle interface {
	Classify(ctx context.Context, req Request) (string, error)
}

// OracleFunc adapts a function to Oracle
type OracleFunc func(ctx context.Context, req Request) (string, error)

// Classify calls f
func (f OracleFunc) Classify(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// IsTimeout reports whether err is a deadline or network timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Provider names accepted by New
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderHeuristic = "heuristic"
)

// Settings selects and configures an oracle backend
type Settings struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// New builds the oracle named by s.Provider
func New(ctx context.Context, s Settings) (Oracle, error) {
	switch s.Provider {
	case ProviderAnthropic:
		a, err := NewAnthropic(s.APIKey, s.Model, s.BaseURL, s.MaxTokens)
		if err != nil {
			return nil, err
		}
		return a, nil
	case ProviderGemini:
		g, err := NewGemini(ctx, s.APIKey, s.Model)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderHeuristic, "":
		return NewHeuristic(), nil
	}
	return nil, fmt.Errorf("unknown oracle provider %q", s.Provider)
}
