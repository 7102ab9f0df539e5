package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"EBMS/internal/domain"
)

// SeedData is the JSON document read by Seed.
type SeedData struct {
	Boards []SeedBoard `json:"boards"`
	Users  []string    `json:"users"`
}

// SeedBoard is one board with its topics and NOT-list journals.
type SeedBoard struct {
	Name    string   `json:"name"`
	Topics  []string `json:"topics"`
	NotList []string `json:"notList"`
}

// SeedSummary counts what a seed run installed.
type SeedSummary struct {
	Boards   int
	Topics   int
	Users    int
	Journals int
}

// Seed installs the catalog read as JSON from r. Existing rows are kept.
func (a *Application) Seed(ctx context.Context, r io.Reader) (SeedSummary, error) {
	var data SeedData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return SeedSummary{}, fmt.Errorf("decode seed data: %w", err)
	}

	var summary SeedSummary
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, b := range data.Boards {
		board, err := a.repo.SaveBoard(ctx, domain.Board{Name: b.Name})
		if err != nil {
			return summary, err
		}
		summary.Boards++
		for _, name := range b.Topics {
			if _, err := a.repo.SaveTopic(ctx, domain.Topic{Name: name, BoardID: board.ID, Active: true}); err != nil {
				return summary, err
			}
			summary.Topics++
		}
		for _, journal := range b.NotList {
			if err := a.repo.AddToNotList(ctx, board.ID, journal, start); err != nil {
				return summary, err
			}
			summary.Journals++
		}
	}
	for _, name := range data.Users {
		if _, err := a.repo.SaveUser(ctx, domain.User{Name: name}); err != nil {
			return summary, err
		}
		summary.Users++
	}
	a.logger.Info("seed data installed",
		"boards", summary.Boards,
		"topics", summary.Topics,
		"users", summary.Users,
		"journals", summary.Journals)
	return summary, nil
}
