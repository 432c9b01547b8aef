package auction

import (
	"net/http"
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 拍卖相关的 HTTP 入口（薄封装，业务都在 Service）。
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册拍卖路由。
func (h *Handler) RegisterRoutes(e *gin.Engine) {
	g := e.Group("/auctions")
	g.POST("", h.CreateAuction)
	g.POST("/collective", h.CreateCollectiveAuction)
	g.GET("", h.ListAuctions)
	g.GET("/:id", h.GetAuction)
	g.GET("/:id/bids", h.GetBidHistory)
	g.POST("/:id/start", h.StartAuction)
	g.POST("/:id/close", h.CloseAuction)
	g.POST("/:id/cancel", h.CancelAuction)
	g.POST("/:id/bids", h.PlaceCollectiveBid)
	g.POST("/:id/vehicles", h.AddVehicles)
	g.DELETE("/:id/vehicles", h.RemoveVehicles)

	e.POST("/bids", h.PlaceBid)
}

type createAuctionRequest struct {
	Name        string     `json:"name"`
	VehicleVins []string   `json:"vehicleVins" binding:"required"`
	EndTime     *time.Time `json:"endTime"`
}

func (h *Handler) CreateAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.svc.CreateAuction(c.Request.Context(), CreateAuctionInput{
		Name:        req.Name,
		VehicleVINs: req.VehicleVins,
		EndTime:     req.EndTime,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAuctionResponse(a))
}

type createCollectiveAuctionRequest struct {
	Name        string          `json:"name"`
	VehicleVins []string        `json:"vehicleVins" binding:"required"`
	EndTime     *time.Time      `json:"endTime"`
	StartingBid decimal.Decimal `json:"startingBid"`
}

func (h *Handler) CreateCollectiveAuction(c *gin.Context) {
	var req createCollectiveAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.svc.CreateCollectiveAuction(c.Request.Context(), CreateCollectiveAuctionInput{
		Name:        req.Name,
		VehicleVINs: req.VehicleVins,
		EndTime:     req.EndTime,
		StartingBid: req.StartingBid,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAuctionResponse(a))
}

func (h *Handler) StartAuction(c *gin.Context) {
	a, err := h.svc.StartAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

func (h *Handler) CloseAuction(c *gin.Context) {
	a, err := h.svc.CloseAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

func (h *Handler) CancelAuction(c *gin.Context) {
	a, err := h.svc.CancelAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

type placeBidRequest struct {
	VehicleVin string          `json:"vehicleVin" binding:"required"`
	BidderID   string          `json:"bidderId" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

func (h *Handler) PlaceBid(c *gin.Context) {
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.svc.PlaceBid(c.Request.Context(), PlaceBidInput{
		VehicleVIN: req.VehicleVin,
		BidderID:   req.BidderID,
		Amount:     req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

type placeCollectiveBidRequest struct {
	BidderID string          `json:"bidderId" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *Handler) PlaceCollectiveBid(c *gin.Context) {
	var req placeCollectiveBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.svc.PlaceCollectiveBid(c.Request.Context(), PlaceCollectiveBidInput{
		AuctionID: c.Param("id"),
		BidderID:  req.BidderID,
		Amount:    req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

type vehicleListRequest struct {
	VehicleVins []string `json:"vehicleVins" binding:"required"`
}

func (h *Handler) AddVehicles(c *gin.Context) {
	var req vehicleListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.svc.AddVehiclesToAuction(c.Request.Context(), c.Param("id"), req.VehicleVins)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

func (h *Handler) RemoveVehicles(c *gin.Context) {
	var req vehicleListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.svc.RemoveVehiclesFromAuction(c.Request.Context(), c.Param("id"), req.VehicleVins)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

func (h *Handler) GetAuction(c *gin.Context) {
	a, err := h.svc.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a))
}

// ListAuctions 支持 ?status=active|completed 过滤，缺省返回全部；
// ?name= 按唯一名称查找（命中则返回单元素列表）。
func (h *Handler) ListAuctions(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		a, err := h.svc.GetAuctionByName(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"auctions": []auctionResponse{toAuctionResponse(a)}})
		return
	}

	var (
		auctions []Auction
		err      error
	)
	switch c.Query("status") {
	case "active":
		auctions, err = h.svc.ListActiveAuctions(c.Request.Context())
	case "completed":
		auctions, err = h.svc.ListCompletedAuctions(c.Request.Context())
	case "":
		auctions, err = h.svc.ListAllAuctions(c.Request.Context())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]auctionResponse, 0, len(auctions))
	for i := range auctions {
		out = append(out, toAuctionResponse(&auctions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"auctions": out})
}

func (h *Handler) GetBidHistory(c *gin.Context) {
	bids, err := h.svc.GetBidHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]bidResponse, 0, len(bids))
	for i := range bids {
		out = append(out, toBidResponse(&bids[i]))
	}
	c.JSON(http.StatusOK, gin.H{"bids": out})
}

type auctionResponse struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name,omitempty"`
	Status       Status                   `json:"status"`
	IsCollective bool                     `json:"isCollective"`
	StartTime    *time.Time               `json:"startTime,omitempty"`
	EndTime      *time.Time               `json:"endTime,omitempty"`
	Vehicles     []auctionVehicleResponse `json:"vehicles"`
	Bids         []bidResponse            `json:"bids"`
}

type auctionVehicleResponse struct {
	VIN           string          `json:"vin"`
	Make          string          `json:"make"`
	Model         string          `json:"model"`
	Type          string          `json:"type"`
	StartingPrice decimal.Decimal `json:"startingPrice"`
	Available     bool            `json:"available"`
	BuyerID       *string         `json:"buyerId,omitempty"`
}

type bidResponse struct {
	ID        string          `json:"id"`
	BidderID  string          `json:"bidderId"`
	VehicleID string          `json:"vehicleId"`
	Amount    decimal.Decimal `json:"amount"`
	BidTime   time.Time       `json:"bidTime"`
}

func toAuctionResponse(a *Auction) auctionResponse {
	resp := auctionResponse{
		ID:           a.ID,
		Name:         a.Name,
		Status:       a.Status,
		IsCollective: a.IsCollective,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Vehicles:     make([]auctionVehicleResponse, 0, len(a.Vehicles)),
		Bids:         make([]bidResponse, 0, len(a.Bids)),
	}
	for i := range a.Vehicles {
		v := &a.Vehicles[i]
		resp.Vehicles = append(resp.Vehicles, auctionVehicleResponse{
			VIN:           v.VIN,
			Make:          v.Make,
			Model:         v.Model,
			Type:          string(v.Type),
			StartingPrice: v.StartingPrice,
			Available:     v.Available,
			BuyerID:       v.BuyerID,
		})
	}
	for i := range a.Bids {
		resp.Bids = append(resp.Bids, toBidResponse(&a.Bids[i]))
	}
	return resp
}

func toBidResponse(b *Bid) bidResponse {
	return bidResponse{
		ID:        b.ID,
		BidderID:  b.BidderID,
		VehicleID: b.VehicleID,
		Amount:    b.Amount,
		BidTime:   b.BidTime,
	}
}

// writeError 把业务错误分类映射为 HTTP 状态码。
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
