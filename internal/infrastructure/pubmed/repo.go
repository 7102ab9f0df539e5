package pubmed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

// RepoSource reads article XML saved under <base>/articles/<pmid>.xml.
type RepoSource struct {
	dir    string
	logger *slog.Logger
}

var _ ports.PubmedSource = (*RepoSource)(nil)

// NewRepoSource points the source at a repository base directory.
func NewRepoSource(base string, logger *slog.Logger) *RepoSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoSource{dir: filepath.Join(base, "articles"), logger: logger}
}

// Name identifies the strategy inside the source registry.
func (r *RepoSource) Name() string {
	return "repo"
}

// Fetch loads the saved XML for each id. Ids without a file are absent from the result.
func (r *RepoSource) Fetch(ctx context.Context, pmids []string) ([]domain.PubmedRecord, error) {
	records := make([]domain.PubmedRecord, 0, len(pmids))
	for _, pmid := range pmids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(r.dir, pmid+".xml"))
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("article not in repository", "pmid", pmid)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read article %s: %w", pmid, err)
		}
		rec, err := ParseArticle(data)
		if err != nil {
			return nil, fmt.Errorf("parse article %s: %w", pmid, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
