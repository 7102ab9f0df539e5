// Package rest exposes the review workflow over HTTP.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
	"EBMS/internal/usecase"
	"EBMS/internal/workflow"
)

// HandlerDeps wires the use cases behind the API.
type HandlerDeps struct {
	Ledger    *usecase.Ledger
	Queues    *usecase.Queues
	Packets   *usecase.Packets
	Importer  *usecase.Importer
	Refresher *usecase.Refresher
	Metrics   http.Handler
	Observer  RequestObserver
	Health    func(ctx context.Context) error
	Logger    *slog.Logger
}

type Handler struct {
	ledger    *usecase.Ledger
	queues    *usecase.Queues
	packets   *usecase.Packets
	importer  *usecase.Importer
	refresher *usecase.Refresher
	metrics   http.Handler
	observer  RequestObserver
	health    func(ctx context.Context) error
	logger    *slog.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ledger:    deps.Ledger,
		queues:    deps.Queues,
		packets:   deps.Packets,
		importer:  deps.Importer,
		refresher: deps.Refresher,
		metrics:   deps.Metrics,
		observer:  deps.Observer,
		health:    deps.Health,
		logger:    logger,
	}
}

// NewEcho builds an echo instance with the API routes and middleware installed.
func (h *Handler) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = h.errorHandler
	e.Use(middleware.Recover())
	e.Use(requestLogger(h.logger, h.observer))
	h.RegisterRoutes(e)
	return e
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.handleHealth)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}

	e.POST("/articles/import", h.handleImport)
	e.GET("/articles/import/dates", h.handleImportDates)
	e.POST("/articles/import/refresh", h.handleRefresh)

	e.GET("/articles/:article/topics/:topic/states", h.handleHistory)
	e.GET("/articles/:article/topics/:topic/states/current", h.handleCurrentState)
	e.POST("/articles/:article/topics/:topic/states", h.handleAddState)

	e.GET("/queues/:queue", h.handleQueue)
	e.POST("/queues/:queue/decisions", h.handleDecisions)

	e.GET("/packets", h.handlePackets)
	e.POST("/packets", h.handleCreatePacket)
	e.GET("/packets/:packet", h.handlePacket)
	e.GET("/packets/:packet/progress", h.handleProgress)
	e.PUT("/packets/:packet/star/:flag", h.handleStar)
	e.POST("/packets/:packet/archive", h.handleArchive)
	e.POST("/packets/:packet/articles/:pa/drop", h.handleDropArticle)
	e.POST("/packets/:packet/articles/:pa/archive", h.handleArchiveArticle)
	e.POST("/packets/:packet/articles/:pa/reviews", h.handlePostReview)
	e.POST("/packets/:packet/articles/:pa/reject", h.handleQuickReject)

	e.GET("/reviewers/:reviewer/packets", h.handleAssignedPackets)
	e.GET("/reviewers/:reviewer/unreviewed", h.handleUnreviewedCount)
}

// errorHandler maps domain errors onto HTTP statuses.
func (h *Handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", "route", c.Path(), "error", err)
	}
	if err := c.JSON(status, echo.Map{"error": msg}); err != nil {
		h.logger.Warn("write error response", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleHealth(c echo.Context) error {
	if h.health != nil {
		if err := h.health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *Handler) handleImport(c echo.Context) error {
	var req usecase.ImportRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	batch, err := h.importer.Run(c.Request().Context(), req)
	if err != nil {
		if len(batch.Messages) > 0 {
			return c.JSON(http.StatusBadGateway, batch)
		}
		return err
	}
	return c.JSON(http.StatusCreated, batch)
}

func (h *Handler) handleImportDates(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	res.WriteHeader(http.StatusOK)
	if err := h.refresher.ImportDates(c.Request().Context(), res); err != nil {
		h.logger.Error("stream import dates", "error", err)
	}
	return nil
}

func (h *Handler) handleRefresh(c echo.Context) error {
	params, err := c.FormParams()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	// Failures are reported in the body; the scheduled caller only logs the text.
	report, err := h.refresher.Refresh(c.Request().Context(), params["pmids"])
	if err != nil {
		h.logger.Error("refresh failed", "error", err)
	}
	return c.String(http.StatusOK, report)
}

func (h *Handler) handleHistory(c echo.Context) error {
	articleID, topicID, err := pairParams(c)
	if err != nil {
		return err
	}
	entries, err := h.ledger.History(c.Request().Context(), articleID, topicID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) handleCurrentState(c echo.Context) error {
	articleID, topicID, err := pairParams(c)
	if err != nil {
		return err
	}
	entry, err := h.ledger.Current(c.Request().Context(), articleID, topicID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) handleAddState(c echo.Context) error {
	articleID, topicID, err := pairParams(c)
	if err != nil {
		return err
	}
	var in usecase.AddStateInput
	if err := c.Bind(&in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	in.ArticleID, in.TopicID = articleID, topicID
	if err := c.Validate(&in); err != nil {
		return err
	}
	entry, err := h.ledger.AddState(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) handleQueue(c echo.Context) error {
	q, err := workflow.ParseQueue(c.Param("queue"))
	if err != nil {
		return err
	}
	req := usecase.QueueRequest{Queue: q}
	err = echo.QueryParamsBinder(c).
		Int64("board", &req.BoardID).
		Int64s("topic", &req.TopicIDs).
		Uint64("limit", &req.Limit).
		Uint64("offset", &req.Offset).
		BindError()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	page, err := h.queues.List(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

type decisionsRequest struct {
	UserID    int64              `json:"user" validate:"required"`
	Decisions []usecase.Decision `json:"decisions" validate:"required,min=1,dive"`
}

func (h *Handler) handleDecisions(c echo.Context) error {
	q, err := workflow.ParseQueue(c.Param("queue"))
	if err != nil {
		return err
	}
	var req decisionsRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	results, err := h.ledger.ApplyDecisions(c.Request().Context(), q, req.UserID, req.Decisions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}

func (h *Handler) handlePackets(c echo.Context) error {
	filter := ports.PacketFilter{ActiveOnly: true}
	err := echo.QueryParamsBinder(c).
		Int64("topic", &filter.TopicID).
		Int64("board", &filter.BoardID).
		Bool("active", &filter.ActiveOnly).
		BindError()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	packets, err := h.packets.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, packets)
}

func (h *Handler) handleCreatePacket(c echo.Context) error {
	var in usecase.CreatePacketInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	packet, err := h.packets.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, packet)
}

func (h *Handler) handlePacket(c echo.Context) error {
	id, err := idParam(c, "packet")
	if err != nil {
		return err
	}
	packet, err := h.packets.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, packet)
}

func (h *Handler) handleProgress(c echo.Context) error {
	id, err := idParam(c, "packet")
	if err != nil {
		return err
	}
	progress, err := h.packets.Progress(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *Handler) handleStar(c echo.Context) error {
	id, err := idParam(c, "packet")
	if err != nil {
		return err
	}
	starred, err := strconv.ParseBool(c.Param("flag"))
	if err != nil {
		return fmt.Errorf("%w: star flag must be true or false", domain.ErrValidation)
	}
	if err := h.packets.SetStarred(c.Request().Context(), id, starred); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleArchive(c echo.Context) error {
	id, err := idParam(c, "packet")
	if err != nil {
		return err
	}
	if err := h.packets.Archive(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleDropArticle(c echo.Context) error {
	packetID, paID, err := packetArticleParams(c)
	if err != nil {
		return err
	}
	if err := h.packets.DropArticle(c.Request().Context(), packetID, paID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleArchiveArticle(c echo.Context) error {
	packetID, paID, err := packetArticleParams(c)
	if err != nil {
		return err
	}
	if err := h.packets.ArchiveArticle(c.Request().Context(), packetID, paID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handlePostReview(c echo.Context) error {
	packetID, paID, err := packetArticleParams(c)
	if err != nil {
		return err
	}
	var in usecase.PostReviewInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	in.PacketID, in.PacketArticleID = packetID, paID
	review, err := h.packets.PostReview(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, review)
}

func (h *Handler) handleQuickReject(c echo.Context) error {
	packetID, paID, err := packetArticleParams(c)
	if err != nil {
		return err
	}
	var in usecase.QuickRejectInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	in.PacketID, in.PacketArticleID = packetID, paID
	review, err := h.packets.QuickReject(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, review)
}

func (h *Handler) handleAssignedPackets(c echo.Context) error {
	reviewerID, err := idParam(c, "reviewer")
	if err != nil {
		return err
	}
	packets, err := h.packets.AssignedPackets(c.Request().Context(), reviewerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, packets)
}

func (h *Handler) handleUnreviewedCount(c echo.Context) error {
	reviewerID, err := idParam(c, "reviewer")
	if err != nil {
		return err
	}
	var boardID int64
	if err := echo.QueryParamsBinder(c).Int64("board", &boardID).BindError(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	count, err := h.packets.UnreviewedCount(c.Request().Context(), reviewerID, boardID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"reviewer": reviewerID, "board": boardID, "unreviewed": count})
}

func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return c.Validate(dst)
}

func idParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s id %q", domain.ErrValidation, name, c.Param(name))
	}
	return id, nil
}

func pairParams(c echo.Context) (int64, int64, error) {
	articleID, err := idParam(c, "article")
	if err != nil {
		return 0, 0, err
	}
	topicID, err := idParam(c, "topic")
	if err != nil {
		return 0, 0, err
	}
	return articleID, topicID, nil
}

func packetArticleParams(c echo.Context) (int64, int64, error) {
	packetID, err := idParam(c, "packet")
	if err != nil {
		return 0, 0, err
	}
	paID, err := idParam(c, "pa")
	if err != nil {
		return 0, 0, err
	}
	return packetID, paID, nil
}
