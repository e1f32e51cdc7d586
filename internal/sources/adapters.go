package sources

import (
	"log/slog"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
)

// NewAdapters builds one connector per enabled source, each writing through
// writer.
func NewAdapters(reg Registry, writer ingestion.RecordWriter, opts FetcherOptions, logger *slog.Logger) ([]ingestion.SourceAdapter, error) {
	enabled := reg.Enabled()
	adapters := make([]ingestion.SourceAdapter, 0, len(enabled))
	for _, cfg := range enabled {
		fetcher, err := NewFetcher(cfg, opts, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, ingestion.NewConnector(fetcher, writer, logger))
	}
	return adapters, nil
}
