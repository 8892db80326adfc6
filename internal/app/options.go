package app

import (
	"github.com/relaywatch/relaywatch/internal/adapters/fetch"
	"github.com/relaywatch/relaywatch/internal/domain/analytics"
	"github.com/relaywatch/relaywatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCache sets a custom snapshot cache, replacing the default sqlite store.
func WithCache(cache fetch.Cache) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithSources overrides the default source descriptors.
func WithSources(sources []fetch.Descriptor) Option {
	return func(s *Service) {
		if len(sources) > 0 {
			s.sources = sources
		}
	}
}

// WithEvaluator wires the external consensus evaluator; nil leaves the
// eligibility feature disabled.
func WithEvaluator(ev analytics.Evaluator) Option {
	return func(s *Service) {
		s.evaluator = ev
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
