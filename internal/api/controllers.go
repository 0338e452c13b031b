package api

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vol-core/internal/analytics"
	"vol-core/internal/gateway"
	"vol-core/pkg/broker"
	"vol-core/pkg/db"
)

type seriesQuery struct {
	Days int `form:"days"`
}

func (q *seriesQuery) normalize(def int) {
	if q.Days <= 0 {
		q.Days = def
	}
	if q.Days > 3650 {
		q.Days = 3650
	}
}

type listOrdersQuery struct {
	Limit int `form:"limit"`
}

func (q *listOrdersQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

type createOrderRequest struct {
	Symbol string  `json:"symbol" binding:"required,min=1"`
	Action string  `json:"action" binding:"required,oneof=BUY SELL"`
	Qty    float64 `json:"qty" binding:"gt=0"`
	Price  float64 `json:"price" binding:"gt=0"`
}

type pointResponse struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type orderResponse struct {
	OrderID    int64     `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Qty        float64   `json:"qty"`
	LimitPrice float64   `json:"limit_price"`
	Status     string    `json:"status"`
	Remaining  float64   `json:"remaining"`
	SessionID  string    `json:"session_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// getStatus reports both gateways: pending historical ids and live readiness.
func (s *Server) getStatus(c *gin.Context) {
	resp := gin.H{"meta": s.Deps.Meta}

	if h := s.Deps.Historical; h != nil {
		pending := h.PendingIDs()
		if pending == nil {
			pending = []int64{}
		}
		resp["historical"] = gin.H{
			"session_id":  h.SessionID(),
			"pending":     len(pending),
			"pending_ids": pending,
		}
	}
	if l := s.Deps.Live; l != nil {
		subs := l.Subscriptions()
		if subs == nil {
			subs = []int64{}
		}
		resp["live"] = gin.H{
			"ready":         l.IsReady(),
			"subscriptions": subs,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Deps.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	c.JSON(http.StatusOK, s.Deps.Metrics.Snapshot())
}

func (s *Server) getWatchers(c *gin.Context) {
	if s.Deps.Book == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, s.Deps.Book.Snapshots())
}

// getSeries returns stored points of one series, oldest first.
func (s *Server) getSeries(c *gin.Context) {
	if s.Deps.Series == nil {
		respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "series store not available")
		return
	}
	kind, err := broker.ParseDataKind(c.Param("kind"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_KIND", err.Error())
		return
	}
	var q seriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "days must be an integer")
		return
	}
	q.normalize(365)
	ticker := strings.ToUpper(c.Param("ticker"))

	ctx := c.Request.Context()
	last, ok, err := s.Deps.Series.LastStoredDate(ctx, kind, ticker)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if !ok {
		respondError(c, http.StatusNotFound, "NO_SERIES", "no stored data for "+string(kind)+","+ticker)
		return
	}
	points, err := s.Deps.Series.Points(ctx, kind, ticker, last.AddDate(0, 0, -(q.Days-1)))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	out := make([]pointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, pointResponse{Date: p.Date.Format(db.DateLayout), Value: p.Value})
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":   kind,
		"ticker": ticker,
		"last":   last.Format(db.DateLayout),
		"points": out,
	})
}

func (s *Server) getVolSummary(c *gin.Context) {
	if s.Deps.Series == nil {
		respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "series store not available")
		return
	}
	kind, err := broker.ParseDataKind(c.Param("kind"))
	if err != nil || kind == broker.KindPrice {
		respondError(c, http.StatusBadRequest, "INVALID_KIND", "kind must be IV or HV")
		return
	}
	var q seriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "days must be an integer")
		return
	}
	q.normalize(365)
	ticker := strings.ToUpper(c.Param("ticker"))

	list, err := analytics.PeriodList(c.Request.Context(), s.Deps.Series, kind, ticker, q.Days)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	summary, err := analytics.Summarize(list)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "ticker": ticker, "days": q.Days, "summary": summary})
}

func (s *Server) getStockStats(c *gin.Context) {
	if s.Deps.Series == nil {
		respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "series store not available")
		return
	}
	var q seriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "days must be an integer")
		return
	}
	q.normalize(365)
	ticker := strings.ToUpper(c.Param("ticker"))

	closes, err := analytics.Closes(c.Request.Context(), s.Deps.Series, ticker, q.Days)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	hv, err := analytics.HistoricalVol(closes)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	toMA, _ := analytics.CurrentToMA(closes)
	resp := gin.H{
		"ticker":        ticker,
		"days":          q.Days,
		"closes":        len(closes),
		"hv":            hv,
		"current_to_ma": toMA,
	}
	if hvs := analytics.PeriodHVs(closes); len(hvs) > 0 {
		avg, _ := analytics.Mean(hvs)
		resp["hv_month_average"] = avg
	}
	if sizing, err := analytics.SizeFor(closes); err == nil {
		resp["sizing"] = sizing
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMixedVol(c *gin.Context) {
	if s.Deps.Series == nil {
		respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "series store not available")
		return
	}
	var q seriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "days must be an integer")
		return
	}
	q.normalize(365)
	ticker := strings.ToUpper(c.Param("ticker"))

	mixed, err := analytics.MixedVolFor(c.Request.Context(), s.Deps.Series, ticker, q.Days)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "days": q.Days, "mixed": mixed})
}

func (s *Server) getPairStats(c *gin.Context) {
	if s.Deps.Series == nil {
		respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "series store not available")
		return
	}
	var q seriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "days must be an integer")
		return
	}
	q.normalize(90)
	t1, t2 := strings.ToUpper(c.Param("ticker1")), strings.ToUpper(c.Param("ticker2"))

	c1, c2, err := analytics.ParallelCloses(c.Request.Context(), s.Deps.Series, t1, t2, q.Days)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	stats, err := analytics.ComparePair(c1, c2)
	if err != nil {
		s.analyticsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker1": t1, "ticker2": t2, "days": q.Days, "stats": stats})
}

func (s *Server) analyticsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analytics.ErrNoSeries):
		respondError(c, http.StatusNotFound, "NO_SERIES", err.Error())
	case errors.Is(err, analytics.ErrNotEnoughData):
		respondError(c, http.StatusUnprocessableEntity, "NOT_ENOUGH_DATA", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ANALYTICS_ERROR", err.Error())
	}
}

func (s *Server) getOrders(c *gin.Context) {
	if s.Deps.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", "order journal not available")
		return
	}
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "limit must be an integer")
		return
	}
	q.normalize()

	orders, err := s.Deps.Journal.Orders(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	c.JSON(http.StatusOK, out)
}

// createOrder places a limit order for a watched symbol through the live gateway.
func (s *Server) createOrder(c *gin.Context) {
	if s.Deps.Live == nil || s.Deps.Book == nil {
		respondError(c, http.StatusServiceUnavailable, "LIVE_UNAVAILABLE", "live gateway not running")
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	symbol := strings.ToUpper(req.Symbol)
	w, ok := s.Deps.Book.Get(symbol)
	if !ok {
		respondError(c, http.StatusNotFound, "UNKNOWN_MONITOR", "no monitor for "+symbol)
		return
	}

	ctx := c.Request.Context()
	action := broker.Action(req.Action)
	id, err := s.Deps.Live.PlaceOrder(ctx, w, action, req.Qty, req.Price)
	if err != nil {
		if errors.Is(err, gateway.ErrNotReady) {
			respondError(c, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
		log.Printf("createOrder: %s %v %s @ %v: %v", action, req.Qty, symbol, req.Price, err)
		respondError(c, http.StatusBadGateway, "BROKER_ERROR", err.Error())
		return
	}

	if s.Deps.Journal != nil {
		o := db.Order{
			OrderID:    id,
			Symbol:     symbol,
			Action:     string(action),
			Qty:        req.Qty,
			LimitPrice: req.Price,
			Remaining:  req.Qty,
		}
		// Status callbacks can beat the insert; start from what the watcher saw.
		if st, ok := w.Order(id); ok {
			o.Status, o.Remaining = st.Status, st.Remaining
		}
		if err := s.Deps.Journal.Record(ctx, o); err != nil {
			log.Printf("createOrder: journal order %d: %v", id, err)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"order_id": id,
		"symbol":   symbol,
		"action":   action,
		"qty":      req.Qty,
		"price":    req.Price,
		"user":     CurrentUserID(c),
	})
}
