package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arzwatch/arzwatch/internal/domain"
)

// PriceService defines the read operations the API exposes.
type PriceService interface {
	GetLatest(ctx context.Context, symbol string) (*domain.LatestQuote, error)
	ListTicks(ctx context.Context, filter domain.TickFilter) ([]domain.PriceTick, error)
	ListInstruments(ctx context.Context, category domain.Category) ([]domain.InstrumentWithTick, error)
}

type Handler struct {
	priceService PriceService
}

func NewHandler(priceService PriceService) *Handler {
	return &Handler{priceService: priceService}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// LatestPriceResponse wraps a quote with the Toman rendering Iranian
// consumers expect for Rial prices.
type LatestPriceResponse struct {
	domain.LatestQuote
	PriceToman *domain.Decimal `json:"price_toman,omitempty"`
}

func (h *Handler) GetLatestPrice(c *gin.Context) {
	symbol := c.Param("symbol")

	quote, err := h.priceService.GetLatest(c.Request.Context(), symbol)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNoData) {
			status = http.StatusNotFound
		}
		slog.ErrorContext(c.Request.Context(), "Failed to get latest price", "symbol", symbol, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	resp := LatestPriceResponse{LatestQuote: *quote}
	if quote.Currency == domain.CurrencyIRR {
		toman := quote.Price.ToToman()
		resp.PriceToman = &toman
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListPrices(c *gin.Context) {
	filter, err := parseTickFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ticks, err := h.priceService.ListTicks(c.Request.Context(), filter)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to list prices", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if ticks == nil {
		ticks = []domain.PriceTick{}
	}
	c.JSON(http.StatusOK, ticks)
}

func (h *Handler) ListInstruments(c *gin.Context) {
	category := domain.Category(c.Query("category"))

	items, err := h.priceService.ListInstruments(c.Request.Context(), category)
	if err != nil {
		var confErr *domain.ConfigurationError
		if errors.As(err, &confErr) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		slog.ErrorContext(c.Request.Context(), "Failed to list instruments", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if items == nil {
		items = []domain.InstrumentWithTick{}
	}
	c.JSON(http.StatusOK, items)
}

func parseTickFilter(c *gin.Context) (domain.TickFilter, error) {
	filter := domain.TickFilter{
		Symbol:         c.Query("symbol"),
		SymbolContains: c.Query("symbol_contains"),
		Source:         c.Query("source"),
		SourceContains: c.Query("source_contains"),
		Currency:       domain.Currency(c.Query("currency")),
	}

	if v := c.Query("price_gte"); v != "" {
		d, err := domain.NewDecimalFromString(v)
		if err != nil {
			return filter, err
		}
		filter.PriceGTE = &d
	}
	if v := c.Query("price_lte"); v != "" {
		d, err := domain.NewDecimalFromString(v)
		if err != nil {
			return filter, err
		}
		filter.PriceLTE = &d
	}
	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.From = ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.To = ts
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Limit = limit
	}
	return filter, nil
}
