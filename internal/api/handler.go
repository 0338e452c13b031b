package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vol-core/internal/analytics"
	"vol-core/internal/events"
	"vol-core/internal/gateway"
	"vol-core/internal/monitor"
	"vol-core/internal/quote"
	"vol-core/pkg/broker"
	"vol-core/pkg/db"
)

// HistoricalStatus is the part of the historical gateway the API reads.
type HistoricalStatus interface {
	SessionID() string
	PendingIDs() []int64
}

// LiveTrader is the part of the live gateway the API drives.
type LiveTrader interface {
	IsReady() bool
	Subscriptions() []int64
	PlaceOrder(ctx context.Context, m gateway.Monitor, action broker.Action, qty, price float64) (int64, error)
}

// OrderJournal records placed orders.
type OrderJournal interface {
	Record(ctx context.Context, o db.Order) error
	Orders(ctx context.Context, limit int) ([]db.Order, error)
}

// Deps are the services the server exposes. Nil members disable their routes'
// data and those routes answer 503.
type Deps struct {
	Bus        *events.Bus
	Historical HistoricalStatus
	Live       LiveTrader
	Book       *quote.Book
	Series     analytics.Reader
	Journal    OrderJournal
	Metrics    *monitor.Metrics
	Gatherer   prometheus.Gatherer
	Meta       SystemMeta
}

// SystemMeta describes the running process.
type SystemMeta struct {
	Mode        string `json:"mode"`
	UseMockFeed bool   `json:"use_mock_feed"`
	Version     string `json:"version"`
}

// Server wires HTTP endpoints around the gateways.
type Server struct {
	Router    *gin.Engine
	Deps      Deps
	JWTSecret string

	limiters *limiterSet
}

func NewServer(deps Deps, jwtSecret string) *Server {
	r := gin.New()

	s := &Server{
		Router:    r,
		Deps:      deps,
		JWTSecret: jwtSecret,
		limiters:  newLimiterSet(20, 50, 5*time.Minute),
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(deps.Metrics))
	r.Use(RateLimitMiddleware(s.limiters))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Deps.Gatherer != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/watchers", s.getWatchers)
		api.GET("/series/:kind/:ticker", s.getSeries)
		api.GET("/analytics/vol/:kind/:ticker", s.getVolSummary)
		api.GET("/analytics/mixed/:ticker", s.getMixedVol)
		api.GET("/analytics/stock/:ticker", s.getStockStats)
		api.GET("/analytics/pair/:ticker1/:ticker2", s.getPairStats)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/orders", s.getOrders)
			protected.POST("/orders", s.createOrder)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HTTPServer wraps the router for graceful shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
