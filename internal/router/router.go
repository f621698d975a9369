package router

import (
	"net/http"

	"livestock/internal/controller"
)

func NewRouter(c *controller.Controller, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", c.Ping)
	mux.HandleFunc("POST /api/applications/new", c.NewApplication)
	mux.HandleFunc("GET /api/applications/{userId}/status", c.ApplicationStatus)
	mux.HandleFunc("PUT /api/applications/{userId}/review", c.ReviewApplication)
	mux.HandleFunc("GET /api/listings", c.GetListings)
	mux.HandleFunc("POST /api/listings/new", c.NewListing)
	mux.HandleFunc("GET /api/listings/{listingId}", c.GetListing)
	mux.HandleFunc("PUT /api/listings/{listingId}/cancel", c.CancelListing)
	mux.HandleFunc("PUT /api/listings/{listingId}/settle", c.SettleListing)
	mux.HandleFunc("GET /api/listings/{listingId}/winner", c.Winner)
	mux.HandleFunc("POST /api/listings/{listingId}/bids", c.PlaceBid)
	mux.HandleFunc("GET /api/listings/{listingId}/bids", c.ListBids)
	mux.HandleFunc("GET /api/listings/{listingId}/leaderboard", c.Leaderboard)
	mux.HandleFunc("GET /api/listings/{listingId}/watch", c.Watch)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("page not found"))
	})

	cors := http.NewServeMux()
	cors.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key")
		w.Header().Set("Accept", "*/*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
		} else {
			mux.ServeHTTP(w, r)
		}
	})

	return cors
}
