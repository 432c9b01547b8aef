package vehicle

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 车辆目录的 HTTP 入口。
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册车辆路由。
func (h *Handler) RegisterRoutes(e *gin.Engine) {
	g := e.Group("/vehicles")
	g.POST("", h.Create)
	g.GET("", h.Search)
	g.GET("/:vin", h.Get)
	g.PUT("/:vin", h.Update)
	g.DELETE("/:vin", h.Delete)
}

type createVehicleRequest struct {
	Vin            string          `json:"vin" binding:"required"`
	Make           string          `json:"make" binding:"required"`
	Model          string          `json:"model" binding:"required"`
	ProductionYear int             `json:"productionYear"`
	Type           string          `json:"type" binding:"required"`
	NumDoors       int             `json:"numDoors"`
	NumSeats       int             `json:"numSeats"`
	LoadCapacity   decimal.Decimal `json:"loadCapacity"`
	StartingPrice  decimal.Decimal `json:"startingPrice"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	v, err := h.svc.Create(c.Request.Context(), CreateInput{
		VIN:            req.Vin,
		Make:           req.Make,
		Model:          req.Model,
		ProductionYear: req.ProductionYear,
		Type:           Type(req.Type),
		NumDoors:       req.NumDoors,
		NumSeats:       req.NumSeats,
		LoadCapacity:   req.LoadCapacity,
		StartingPrice:  req.StartingPrice,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toVehicleResponse(v))
}

type updateVehicleRequest struct {
	Make           string          `json:"make"`
	Model          string          `json:"model"`
	ProductionYear int             `json:"productionYear"`
	StartingPrice  decimal.Decimal `json:"startingPrice"`
}

func (h *Handler) Update(c *gin.Context) {
	var req updateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	v, err := h.svc.Update(c.Request.Context(), c.Param("vin"), UpdateInput{
		Make:           req.Make,
		Model:          req.Model,
		ProductionYear: req.ProductionYear,
		StartingPrice:  req.StartingPrice,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleResponse(v))
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("vin")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Get(c *gin.Context) {
	v, err := h.svc.GetByVIN(c.Request.Context(), c.Param("vin"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleResponse(v))
}

// Search 按 make/model/year/type 组合过滤，分页参数 offset/limit。
func (h *Handler) Search(c *gin.Context) {
	f := SearchFilter{
		Make:  c.Query("make"),
		Model: c.Query("model"),
		Type:  Type(c.Query("type")),
	}
	if y := c.Query("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		f.Year = year
	}
	if c.Query("onlyAvailable") == "true" {
		f.OnlyAvailable = true
	}
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	vehicles, total, err := h.svc.Search(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]vehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, toVehicleResponse(&vehicles[i]))
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": out, "total": total})
}

type vehicleResponse struct {
	ID             string           `json:"id"`
	Vin            string           `json:"vin"`
	Make           string           `json:"make"`
	Model          string           `json:"model"`
	ProductionYear int              `json:"productionYear"`
	Type           string           `json:"type"`
	NumDoors       *int             `json:"numDoors,omitempty"`
	NumSeats       *int             `json:"numSeats,omitempty"`
	LoadCapacity   *decimal.Decimal `json:"loadCapacity,omitempty"`
	StartingPrice  decimal.Decimal  `json:"startingPrice"`
	Available      bool             `json:"available"`
	BuyerID        *string          `json:"buyerId,omitempty"`
	AuctionID      *string          `json:"auctionId,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func toVehicleResponse(v *Vehicle) vehicleResponse {
	return vehicleResponse{
		ID:             v.ID,
		Vin:            v.VIN,
		Make:           v.Make,
		Model:          v.Model,
		ProductionYear: v.ProductionYear,
		Type:           string(v.Type),
		NumDoors:       v.NumDoors,
		NumSeats:       v.NumSeats,
		LoadCapacity:   v.LoadCapacity,
		StartingPrice:  v.StartingPrice,
		Available:      v.Available,
		BuyerID:        v.BuyerID,
		AuctionID:      v.AuctionID,
		CreatedAt:      v.CreatedAt,
	}
}

func writeError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.KindConflict, apperr.KindInvalidState:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
