// Package providers wires the closed set of vendor adapters.
package providers

import (
	"log/slog"

	"dsar/internal/source"
	"dsar/internal/source/providers/genericcsv"
	"dsar/internal/source/providers/genericjson"
	"dsar/internal/source/providers/jira"
	"dsar/internal/source/providers/slack"
	"dsar/internal/source/providers/zendesk"
)

// All returns every built-in adapter.
func All(logger *slog.Logger) []source.Adapter {
	return []source.Adapter{
		slack.New(logger),
		zendesk.New(logger),
		jira.New(logger),
		genericjson.New(logger),
		genericcsv.New(logger),
	}
}

// NewRegistry returns a registry holding every built-in adapter.
func NewRegistry(logger *slog.Logger) (*source.Registry, error) {
	return source.NewRegistry(All(logger)...)
}
