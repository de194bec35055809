package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fundingbot/internal/api/handlers"
	"fundingbot/internal/api/middleware"
	"fundingbot/internal/exchange"
	"fundingbot/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Orchestrator handlers.Orchestrator
	Positions    handlers.PositionSource
	Intents      handlers.IntentBuilder
	Rates        *exchange.RateFeed
	Trades       handlers.TradeHistory
	Hub          *websocket.Hub

	// Bcrypt-хеш операторского токена (API_TOKEN_HASH)
	APITokenHash string

	Log *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/ (Bearer auth)
//
//	├── /positions
//	│   ├── GET / - отслеживаемые позиции
//	│   ├── POST / - ручное открытие хеджа
//	│   ├── GET /{id} - одна позиция
//	│   ├── POST /{id}/close - ручное закрытие
//	│   └── POST /close-all - закрыть всё
//	├── /rates
//	│   ├── GET / - текущие спреды фандинга
//	│   └── GET /top - лучший спред
//	└── /trades
//	    ├── GET / - история закрытий (period/ticker/limit)
//	    └── GET /summary - агрегированная сводка
//
// /ws/stream - WebSocket события позиций
// /metrics - Prometheus метрики
// /health - health check
//
// Middleware: Recovery -> Logging -> CORS глобально, Auth на /api/v1.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	// API v1 routes
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.Auth(deps.APITokenHash))

	// Position routes
	if deps.Orchestrator != nil && deps.Positions != nil {
		positionHandler := handlers.NewPositionHandler(deps.Orchestrator, deps.Positions, deps.Intents, deps.Rates)
		apiRouter.HandleFunc("/positions", positionHandler.GetPositions).Methods("GET")
		apiRouter.HandleFunc("/positions", positionHandler.OpenPosition).Methods("POST")
		apiRouter.HandleFunc("/positions/close-all", positionHandler.CloseAllPositions).Methods("POST")
		apiRouter.HandleFunc("/positions/{id}", positionHandler.GetPosition).Methods("GET")
		apiRouter.HandleFunc("/positions/{id}/close", positionHandler.ClosePosition).Methods("POST")
	}

	// Rates routes
	if deps.Rates != nil {
		ratesHandler := handlers.NewRatesHandler(deps.Rates)
		apiRouter.HandleFunc("/rates", ratesHandler.GetRates).Methods("GET")
		apiRouter.HandleFunc("/rates/top", ratesHandler.GetTopRate).Methods("GET")
	}

	// Trades routes
	if deps.Trades != nil {
		tradesHandler := handlers.NewTradesHandler(deps.Trades)
		apiRouter.HandleFunc("/trades", tradesHandler.GetTrades).Methods("GET")
		apiRouter.HandleFunc("/trades/summary", tradesHandler.GetSummary).Methods("GET")
	}

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
