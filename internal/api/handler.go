package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"logfilters/internal/filters"
	"logfilters/internal/logger"
	"logfilters/internal/matcher"
	"logfilters/pkg/errors"
	"logfilters/pkg/logging"
)

// FilterPresenter is the part of filters.Presenter the handler drives.
type FilterPresenter interface {
	Add(req filters.AddRequest) ([]filters.Record, error)
	Remove(ctx context.Context, index int) (filters.Record, error)
	Items(ctx context.Context) ([]filters.DisplayItem, error)
}

// Binding pairs a partition's presenter with the view it renders into.
type Binding struct {
	Presenter FilterPresenter
	View      *View
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if errors.IsValidation(err) || errors.IsInvalidInput(err) {
		h.Logger.WarnwCtx(c.Request.Context(), "Rejected request", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	}

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	bindings map[filters.Partition]Binding
}

func NewHandler(bindings map[filters.Partition]Binding, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		bindings:    bindings,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		f := v1.Group("/filters")
		{
			f.GET("/:partition", h.ListFilters)
			f.POST("/:partition", h.AddFilters)
			f.DELETE("/:partition/:index", h.RemoveFilter)
		}

		v1.POST("/match", h.Match)
	}
}

func (h *Handler) binding(c *gin.Context) (filters.Partition, Binding, bool) {
	partition, err := filters.ParsePartition(c.Param("partition"))
	if err != nil {
		h.HandleError(c, err)
		return "", Binding{}, false
	}
	b, ok := h.bindings[partition]
	if !ok {
		h.HandleError(c, errors.ErrNotFound.WithDetail("partition", string(partition)))
		return "", Binding{}, false
	}
	c.Request = c.Request.WithContext(logging.WithPartition(c.Request.Context(), string(partition)))
	return partition, b, true
}

type ListResponse struct {
	Partition filters.Partition     `json:"partition"`
	Items     []filters.DisplayItem `json:"items"`
	Empty     bool                  `json:"empty"`
	Version   uint64                `json:"version"`
}

// ListFilters godoc
// @Summary      List filters of a partition
// @Description  Get the items currently shown for inclusions or exclusions
// @Tags         filters
// @Produce      json
// @Param        partition  path      string  true  "inclusions or exclusions"
// @Success      200        {object}  ListResponse
// @Failure      400        {object}  map[string]interface{}
// @Router       /filters/{partition} [get]
func (h *Handler) ListFilters(c *gin.Context) {
	partition, b, ok := h.binding(c)
	if !ok {
		return
	}

	snap := b.View.Snapshot()
	c.JSON(http.StatusOK, ListResponse{
		Partition: partition,
		Items:     snap.Items,
		Empty:     snap.Empty,
		Version:   snap.Version,
	})
}

// AddFilters godoc
// @Summary      Add filters
// @Description  Create one record per non-empty field. The store write is asynchronous.
// @Tags         filters
// @Accept       json
// @Produce      json
// @Param        partition  path      string              true  "inclusions or exclusions"
// @Param        request    body      filters.AddRequest  true  "Filter fields"
// @Success      202        {array}   filters.Record
// @Success      200        {array}   filters.Record
// @Failure      400        {object}  map[string]interface{}
// @Failure      503        {object}  map[string]interface{}
// @Router       /filters/{partition} [post]
func (h *Handler) AddFilters(c *gin.Context) {
	_, b, ok := h.binding(c)
	if !ok {
		return
	}

	var req filters.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	records, err := b.Presenter.Add(req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if len(records) == 0 {
		c.JSON(http.StatusOK, []filters.Record{})
		return
	}
	c.JSON(http.StatusAccepted, records)
}

// RemoveFilter godoc
// @Summary      Remove a filter by position
// @Description  Evict the item at index and delete its record asynchronously
// @Tags         filters
// @Produce      json
// @Param        partition  path      string  true  "inclusions or exclusions"
// @Param        index      path      int     true  "Item index"
// @Success      202        {object}  filters.Record
// @Failure      400        {object}  map[string]interface{}
// @Router       /filters/{partition}/{index} [delete]
func (h *Handler) RemoveFilter(c *gin.Context) {
	_, b, ok := h.binding(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.HandleError(c, errors.ErrInvalidInput.WithCause(err).WithDetail("index", c.Param("index")))
		return
	}

	removed, err := b.Presenter.Remove(c.Request.Context(), index)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, removed)
}

// Match godoc
// @Summary      Test a log entry
// @Description  Run an entry through the current inclusions and exclusions
// @Tags         filters
// @Accept       json
// @Produce      json
// @Param        entry  body      matcher.Entry  true  "Log entry"
// @Success      200    {object}  matcher.Decision
// @Failure      400    {object}  map[string]interface{}
// @Failure      500    {object}  map[string]interface{}
// @Router       /match [post]
func (h *Handler) Match(c *gin.Context) {
	var entry matcher.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	m, err := matcher.New(h.sources(filters.Inclusion), h.sources(filters.Exclusion))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	decision, err := m.Decide(c.Request.Context(), entry)
	if err != nil {
		h.HandleError(c, errors.ErrInternal.WithCause(err))
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (h *Handler) sources(partition filters.Partition) []filters.Record {
	b, ok := h.bindings[partition]
	if !ok || b.View == nil {
		return nil
	}
	return b.View.Sources()
}
