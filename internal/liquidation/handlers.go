package liquidation

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"liquidation-api/internal/types"
	"liquidation-api/pkg/response"
)

// GinHandlers contains HTTP handlers for liquidation endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type createRequestBody struct {
	AssetSymbol  string  `json:"asset_symbol" binding:"required"`
	Amount       float64 `json:"amount" binding:"required"`
	OutputType   string  `json:"output_type"`
	OutputSymbol string  `json:"output_symbol" binding:"required"`
	Destination  string  `json:"destination" binding:"required"`
	Country      string  `json:"country"`
	Notes        string  `json:"notes"`
}

// CreateRequestHandler handles POST requests to create liquidation
// requests. Requires a valid JWT token and an idempotency key header.
func (h *GinHandlers) CreateRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		userID := c.GetString("clientID")
		if userID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		var body createRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		request, err := h.service.Create(CreateParams{
			UserID:       userID,
			AssetSymbol:  body.AssetSymbol,
			Amount:       body.Amount,
			OutputType:   body.OutputType,
			OutputSymbol: body.OutputSymbol,
			Destination:  body.Destination,
			Country:      body.Country,
			Notes:        body.Notes,
		}, idempotencyKey)
		response.Handle(c, request, err)
	}
}

// GetRequestHandler handles GET requests for a single owned request
func (h *GinHandlers) GetRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("clientID")
		request, err := h.service.Get(c.Param("request_id"), userID)
		response.Handle(c, request, err)
	}
}

// ListRequestsHandler handles GET requests for the caller's requests
// with filtering, pagination and sort direction via query parameters.
func (h *GinHandlers) ListRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := types.RequestFilter{
			UserID:       c.GetString("clientID"),
			AssetSymbol:  c.Query("asset_symbol"),
			OutputSymbol: c.Query("output_symbol"),
			Status:       c.Query("status"),
			ProviderID:   c.Query("provider_id"),
			SortDesc:     c.DefaultQuery("sort", "desc") == "desc",
		}
		filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
		filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
		filter.MinAmount, _ = strconv.ParseFloat(c.Query("min_amount"), 64)
		filter.MaxAmount, _ = strconv.ParseFloat(c.Query("max_amount"), 64)
		if v := c.Query("created_from"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.CreatedFrom = t
			}
		}
		if v := c.Query("created_to"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.CreatedTo = t
			}
		}

		page, err := h.service.List(filter)
		response.Handle(c, page, err)
	}
}

// CancelRequestHandler handles POST requests to cancel an owned request
func (h *GinHandlers) CancelRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("clientID")

		var body struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		request, err := h.service.Cancel(c.Param("request_id"), userID, body.Reason)
		response.Handle(c, request, err)
	}
}

// ProcessRequestHandler handles POST requests to run the pipeline.
// Internal only.
func (h *GinHandlers) ProcessRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		request, err := h.service.Process(c.Request.Context(), c.Param("request_id"))
		response.Handle(c, request, err)
	}
}

// RetryRequestHandler handles POST requests to retry a failed request.
// Internal only.
func (h *GinHandlers) RetryRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		request, err := h.service.Retry(c.Request.Context(), c.Param("request_id"))
		response.Handle(c, request, err)
	}
}

// UpdateStatusHandler handles PUT requests for generic status
// transitions. Internal only.
func (h *GinHandlers) UpdateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Status string `json:"status" binding:"required"`
			Reason string `json:"reason"`
			Notes  string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		request, err := h.service.UpdateStatus(c.Param("request_id"), body.Status, body.Reason, body.Notes)
		response.Handle(c, request, err)
	}
}

// EstimateHandler handles GET requests for a liquidation estimate
func (h *GinHandlers) EstimateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		amount, err := strconv.ParseFloat(c.Query("amount"), 64)
		if err != nil || amount <= 0 {
			response.BadRequest(c, "amount must be a positive number")
			return
		}

		estimate, err := h.service.Estimate(c.Query("asset_symbol"), amount, c.Query("output_symbol"))
		response.Handle(c, estimate, err)
	}
}
