package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/exchange/pkg/app/core/completion"
	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/core/orderbook"
	"github.com/uhyunpark/exchange/pkg/app/feed"
)

// Engine is the read and submit surface the API needs from the exchange.
type Engine interface {
	RunID() string
	Mode() string
	State() completion.State
	Sources() []string
	Symbols() []string
	Snapshot(symbol string) (model.BookSnapshot, bool)
	Levels(symbol string) (bids, asks []orderbook.PriceLevel, ok bool)
	FinalDigest() (common.Hash, bool)
	Submit(msg model.Message) error
}

// TradeStore serves trade history. Optional.
type TradeStore interface {
	LoadTrades(symbol string, limit int) ([]model.Trade, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine  Engine
	trades  TradeStore
	metrics http.Handler
	router  *mux.Router
	hub     *Hub
	logger  *zap.SugaredLogger
}

// NewServer creates a new API server. trades and metrics may be nil.
func NewServer(engine Engine, trades TradeStore, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		trades:  trades,
		metrics: metrics,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		logger:  logger.Sugar().With("component", "api"),
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub, to be registered as an engine publisher.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/books", s.handleGetBooks).Methods("GET")
	api.HandleFunc("/books/{symbol}", s.handleGetBook).Methods("GET")
	api.HandleFunc("/books/{symbol}/trades", s.handleGetTrades).Methods("GET")

	// Message submission for sources that deliver over HTTP
	api.HandleFunc("/messages", s.handleSubmit).Methods("POST")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		RunID:   s.engine.RunID(),
		Mode:    s.engine.Mode(),
		State:   s.engine.State().String(),
		Sources: s.engine.Sources(),
		Symbols: s.engine.Symbols(),

		WSClients: s.hub.Clients(),
	}
	if d, ok := s.engine.FinalDigest(); ok {
		resp.Digest = d.Hex()
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetBooks(w http.ResponseWriter, r *http.Request) {
	symbols := s.engine.Symbols()
	out := make([]BookResponse, 0, len(symbols))
	for _, sym := range symbols {
		if b, ok := s.book(sym, false); ok {
			out = append(out, b)
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	withOrders, _ := strconv.ParseBool(r.URL.Query().Get("orders"))

	b, ok := s.book(symbol, withOrders)
	if !ok {
		respondError(w, http.StatusNotFound, "book not found", symbol)
		return
	}
	respondJSON(w, b)
}

func (s *Server) book(symbol string, withOrders bool) (BookResponse, bool) {
	bids, asks, ok := s.engine.Levels(symbol)
	if !ok {
		return BookResponse{}, false
	}
	resp := BookResponse{
		Symbol: symbol,
		Bids:   toLevels(bids),
		Asks:   toLevels(asks),
	}
	if withOrders {
		if snap, ok := s.engine.Snapshot(symbol); ok {
			resp.Orders = &OrdersDetail{Bids: snap.Bids, Asks: snap.Asks}
		}
	}
	return resp, true
}

func toLevels(levels []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price, Size: l.Qty, Orders: l.Orders}
	}
	return out
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if s.trades == nil {
		respondError(w, http.StatusNotImplemented, "trade history disabled", "no trade store configured")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}
	trades, err := s.trades.LoadTrades(symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load trades", err.Error())
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	respondJSON(w, TradesResponse{Symbol: symbol, Trades: trades})
}

// handleSubmit accepts one message in the broker wire format.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "read body", err.Error())
		return
	}
	msg, err := feed.DecodeRecord(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid message", err.Error())
		return
	}
	if err := s.engine.Submit(msg); err != nil {
		// Rejections are also published as statuses; the 200 mirrors that
		// the message was processed.
		respondJSON(w, SubmitResponse{Accepted: false, Reason: err.Error()})
		return
	}
	respondJSON(w, SubmitResponse{Accepted: true})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
