package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"slices"
	"time"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
	"EBMS/internal/workflow"
	"EBMS/pkg/htmltext"
)

// PacketDeps wires packet assignment and tracking.
type PacketDeps struct {
	Catalog ports.CatalogRepository
	Ledger  ports.LedgerRepository
	Packets ports.PacketRepository
	Terms   *Vocabulary
	Logger  *slog.Logger
	Now     func() time.Time
}

// Packets assigns articles to reviewers and tracks their reviews.
type Packets struct {
	catalog ports.CatalogRepository
	ledger  ports.LedgerRepository
	packets ports.PacketRepository
	terms   *Vocabulary
	logger  *slog.Logger
	now     func() time.Time
}

// NewPackets constructs the packet use case.
func NewPackets(deps PacketDeps) *Packets {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Packets{
		catalog: deps.Catalog,
		ledger:  deps.Ledger,
		packets: deps.Packets,
		terms:   deps.Terms,
		logger:  logger,
		now:     now,
	}
}

// CreatePacketInput describes a new packet. Without ArticleIDs every article ready for
// board review in the topic is included.
type CreatePacketInput struct {
	TopicID     int64   `json:"topic" validate:"required"`
	Title       string  `json:"title"`
	ArticleIDs  []int64 `json:"articles"`
	ReviewerIDs []int64 `json:"reviewers" validate:"required,min=1"`
	CreatedBy   int64   `json:"createdBy" validate:"required"`
}

// Create builds a packet for one topic.
func (p *Packets) Create(ctx context.Context, in CreatePacketInput) (domain.Packet, error) {
	if len(in.ReviewerIDs) == 0 {
		return domain.Packet{}, fmt.Errorf("%w: a packet needs at least one reviewer", domain.ErrValidation)
	}
	topic, err := p.catalog.Topic(ctx, in.TopicID)
	if err != nil {
		return domain.Packet{}, fmt.Errorf("load topic: %w", err)
	}

	now := p.now()
	title := in.Title
	if title == "" {
		title = DefaultPacketTitle(topic.Name, now)
	}

	articleIDs, err := p.eligibleArticles(ctx, topic.ID, in.ArticleIDs)
	if err != nil {
		return domain.Packet{}, err
	}
	if len(articleIDs) == 0 {
		return domain.Packet{}, fmt.Errorf("%w: no articles for %s are ready for board review", domain.ErrValidation, topic.Name)
	}

	packet := domain.Packet{
		TopicID:   topic.ID,
		CreatedBy: in.CreatedBy,
		Created:   now,
		Title:     title,
		Reviewers: dedupe(in.ReviewerIDs),
	}
	for _, id := range articleIDs {
		packet.Articles = append(packet.Articles, domain.PacketArticle{ArticleID: id})
	}

	packet, err = p.packets.CreatePacket(ctx, packet)
	if err != nil {
		return domain.Packet{}, fmt.Errorf("create packet: %w", err)
	}
	p.logger.Info("packet created",
		"packet", packet.ID,
		"topic", topic.ID,
		"articles", len(packet.Articles),
		"reviewers", len(packet.Reviewers))
	return packet, nil
}

// DefaultPacketTitle names a packet after its topic and the month it was built.
func DefaultPacketTitle(topic string, at time.Time) string {
	return fmt.Sprintf("%s (%s)", topic, at.Format("January 2006"))
}

func (p *Packets) eligibleArticles(ctx context.Context, topicID int64, requested []int64) ([]int64, error) {
	if len(requested) == 0 {
		stateIDs, err := p.terms.IDs(ctx, []string{domain.StatePassedFullReview, domain.StateFYI})
		if err != nil {
			return nil, err
		}
		items, _, err := p.ledger.CurrentStates(ctx, ports.StateFilter{StateIDs: stateIDs, TopicIDs: []int64{topicID}})
		if err != nil {
			return nil, fmt.Errorf("select packet candidates: %w", err)
		}
		ids := make([]int64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ArticleID)
		}
		return ids, nil
	}

	ids := dedupe(requested)
	for _, id := range ids {
		current, err := p.ledger.CurrentState(ctx, id, topicID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: article %d has no state for topic %d", domain.ErrValidation, id, topicID)
		}
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", id, err)
		}
		if !workflow.PacketEligible(current.State) {
			return nil, fmt.Errorf("%w: article %d is in state %s, not ready for board review",
				domain.ErrValidation, id, current.State.TextID)
		}
	}
	return ids, nil
}

// Get loads a packet.
func (p *Packets) Get(ctx context.Context, id int64) (domain.Packet, error) {
	packet, err := p.packets.Packet(ctx, id)
	if err != nil {
		return domain.Packet{}, fmt.Errorf("load packet: %w", err)
	}
	return packet, nil
}

// List returns the packets matching filter, newest first.
func (p *Packets) List(ctx context.Context, filter ports.PacketFilter) ([]domain.Packet, error) {
	packets, err := p.packets.Packets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list packets: %w", err)
	}
	return packets, nil
}

// SetStarred flags a packet for the board manager's attention.
func (p *Packets) SetStarred(ctx context.Context, id int64, starred bool) error {
	if err := p.packets.SetStarred(ctx, id, starred); err != nil {
		return fmt.Errorf("star packet: %w", err)
	}
	return nil
}

// Archive deactivates a packet, hiding it from its reviewers.
func (p *Packets) Archive(ctx context.Context, id int64) error {
	if err := p.packets.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("archive packet: %w", err)
	}
	p.logger.Info("packet archived", "packet", id)
	return nil
}

// DropArticle withdraws an article from a packet.
func (p *Packets) DropArticle(ctx context.Context, packetID, packetArticleID int64) error {
	if _, err := p.packetArticle(ctx, packetID, packetArticleID); err != nil {
		return err
	}
	if err := p.packets.DropArticle(ctx, packetArticleID); err != nil {
		return fmt.Errorf("drop packet article: %w", err)
	}
	return nil
}

// ArchiveArticle removes an article from reviewers' outstanding work while keeping it visible.
func (p *Packets) ArchiveArticle(ctx context.Context, packetID, packetArticleID int64) error {
	if _, err := p.packetArticle(ctx, packetID, packetArticleID); err != nil {
		return err
	}
	if err := p.packets.ArchiveArticle(ctx, packetArticleID, p.now()); err != nil {
		return fmt.Errorf("archive packet article: %w", err)
	}
	return nil
}

func (p *Packets) packetArticle(ctx context.Context, packetID, packetArticleID int64) (domain.PacketArticle, error) {
	pa, err := p.packets.PacketArticle(ctx, packetArticleID)
	if err != nil {
		return domain.PacketArticle{}, fmt.Errorf("load packet article: %w", err)
	}
	if pa.PacketID != packetID {
		return domain.PacketArticle{}, domain.NotFoundError{
			Resource: fmt.Sprintf("packet article %d in packet %d", packetArticleID, packetID),
		}
	}
	return pa, nil
}

// PostReviewInput is a reviewer's judgment on a packet article. When OnBehalfOf is
// set the review is credited to that board member and annotated with who recorded it.
type PostReviewInput struct {
	PacketID        int64    `json:"-"`
	PacketArticleID int64    `json:"-"`
	ReviewerID      int64    `json:"reviewer" validate:"required"`
	OnBehalfOf      int64    `json:"onBehalfOf"`
	Dispositions    []string `json:"dispositions" validate:"required,min=1"`
	Reasons         []string `json:"reasons"`
	Comment         string   `json:"comment"`
}

// PostReview records a review.
func (p *Packets) PostReview(ctx context.Context, in PostReviewInput) (domain.Review, error) {
	if err := validateDispositions(in.Dispositions, in.Reasons); err != nil {
		return domain.Review{}, err
	}

	packet, err := p.packets.Packet(ctx, in.PacketID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("load packet: %w", err)
	}
	pa, err := p.packetArticle(ctx, in.PacketID, in.PacketArticleID)
	if err != nil {
		return domain.Review{}, err
	}
	if pa.Dropped {
		return domain.Review{}, fmt.Errorf("%w: article has been dropped from the packet", domain.ErrValidation)
	}

	reviewer := in.ReviewerID
	comment := in.Comment
	if htmltext.IsBlank(comment) {
		comment = ""
	}
	if in.OnBehalfOf != 0 && in.OnBehalfOf != in.ReviewerID {
		note, err := p.onBehalfNote(ctx, in.ReviewerID, in.OnBehalfOf)
		if err != nil {
			return domain.Review{}, err
		}
		comment += note
		reviewer = in.OnBehalfOf
	}
	if !packet.HasReviewer(reviewer) {
		return domain.Review{}, fmt.Errorf("%w: user %d is not a reviewer for packet %d",
			domain.ErrValidation, reviewer, packet.ID)
	}

	review, err := p.packets.SaveReview(ctx, domain.Review{
		PacketArticleID: pa.ID,
		ReviewerID:      reviewer,
		Posted:          p.now(),
		Comments:        comment,
		Dispositions:    in.Dispositions,
		Reasons:         in.Reasons,
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("save review: %w", err)
	}
	p.logger.Info("review posted",
		"packet", packet.ID,
		"article", pa.ArticleID,
		"reviewer", reviewer,
		"recordedBy", in.ReviewerID)
	return review, nil
}

func (p *Packets) onBehalfNote(ctx context.Context, recorderID, memberID int64) (string, error) {
	recorder, err := p.catalog.User(ctx, recorderID)
	if err != nil {
		return "", fmt.Errorf("load recorder: %w", err)
	}
	member, err := p.catalog.User(ctx, memberID)
	if err != nil {
		return "", fmt.Errorf("load board member: %w", err)
	}
	return fmt.Sprintf("<p><i>Recorded by %s on behalf of %s.</i></p>",
		html.EscapeString(recorder.Name), html.EscapeString(member.Name)), nil
}

func validateDispositions(dispositions, reasons []string) error {
	if len(dispositions) == 0 {
		return fmt.Errorf("%w: at least one disposition is required", domain.ErrValidation)
	}
	known := domain.Dispositions()
	for _, d := range dispositions {
		if !slices.Contains(known, d) {
			return fmt.Errorf("%w: unknown disposition %q", domain.ErrValidation, d)
		}
	}
	if slices.Contains(dispositions, domain.RejectionDisposition()) {
		if len(dispositions) > 1 {
			return fmt.Errorf("%w: %q excludes every other disposition",
				domain.ErrValidation, domain.RejectionDisposition())
		}
		if len(reasons) == 0 {
			return fmt.Errorf("%w: rejecting an article requires at least one reason", domain.ErrValidation)
		}
	}
	return nil
}

// QuickRejectInput rejects a packet article in one step.
type QuickRejectInput struct {
	PacketID        int64    `json:"-"`
	PacketArticleID int64    `json:"-"`
	ReviewerID      int64    `json:"reviewer" validate:"required"`
	OnBehalfOf      int64    `json:"onBehalfOf"`
	Reasons         []string `json:"reasons" validate:"required,min=1"`
	Comment         string   `json:"comment"`
}

// QuickReject posts a review whose only disposition is the rejection disposition.
func (p *Packets) QuickReject(ctx context.Context, in QuickRejectInput) (domain.Review, error) {
	return p.PostReview(ctx, PostReviewInput{
		PacketID:        in.PacketID,
		PacketArticleID: in.PacketArticleID,
		ReviewerID:      in.ReviewerID,
		OnBehalfOf:      in.OnBehalfOf,
		Dispositions:    []string{domain.RejectionDisposition()},
		Reasons:         in.Reasons,
		Comment:         in.Comment,
	})
}

// AssignedPackets lists the reviewer's active packets still holding work for them.
func (p *Packets) AssignedPackets(ctx context.Context, reviewerID int64) ([]domain.AssignedPacket, error) {
	packets, err := p.packets.UnreviewedPackets(ctx, reviewerID, workflow.ClosedForPackets())
	if err != nil {
		return nil, fmt.Errorf("load assigned packets: %w", err)
	}
	return packets, nil
}

// UnreviewedCount counts the articles a reviewer still owes reviews for, optionally
// limited to one board.
func (p *Packets) UnreviewedCount(ctx context.Context, reviewerID, boardID int64) (int, error) {
	window := workflow.AwaitingReview()
	excluded, err := p.terms.IDs(ctx, window.Excluded)
	if err != nil {
		return 0, err
	}
	ceiling, err := p.terms.Term(ctx, window.Ceiling)
	if err != nil {
		return 0, err
	}
	n, err := p.packets.UnreviewedArticleCount(ctx, reviewerID, boardID, excluded, ceiling.Sequence)
	if err != nil {
		return 0, fmt.Errorf("count unreviewed articles: %w", err)
	}
	return n, nil
}

// Progress derives a packet's completion from its articles, reviewers and reviews.
func (p *Packets) Progress(ctx context.Context, packetID int64) (domain.PacketProgress, error) {
	packet, err := p.packets.Packet(ctx, packetID)
	if err != nil {
		return domain.PacketProgress{}, fmt.Errorf("load packet: %w", err)
	}
	posted, err := p.packets.PostedReviews(ctx, packetID)
	if err != nil {
		return domain.PacketProgress{}, fmt.Errorf("count posted reviews: %w", err)
	}
	progress := domain.PacketProgress{
		PacketID:  packet.ID,
		Articles:  len(packet.ActiveArticles()),
		Reviewers: len(packet.Reviewers),
		Posted:    posted,
	}
	progress.Expected = progress.Articles * progress.Reviewers
	progress.Complete = progress.Expected > 0 && progress.Posted >= progress.Expected
	return progress, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
