package httptransport

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"wagerboard/internal/app/betting"
	"wagerboard/internal/app/challenge"
	"wagerboard/internal/app/gamble"
	"wagerboard/internal/ledger"
	"wagerboard/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store    store.Gateway
	Ledger   *ledger.Ledger
	Registry *challenge.Registry
	Engine   *betting.Engine
	Gamble   *gamble.Service

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

func NewRouter(svc Services, adminAPIKey string) *chi.Mux {
	publicHandlers := NewPublicHandlers(svc.Ledger, svc.Registry, svc.Engine, svc.Gamble)
	adminHandlers := NewAdminHandlers(svc.Store, svc.Ledger, svc.Registry, svc.Engine)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())

	r.Route("/api", func(r chi.Router) {
		r.Use(ActorMiddleware)
		r.Use(APILogMiddleware())

		r.Get("/users/{user_id}/balance", publicHandlers.Balance())
		r.Get("/leaderboard", publicHandlers.Leaderboard())
		r.Get("/challenges", publicHandlers.Challenges())
		r.Get("/challenges/completions", publicHandlers.Completions())
		r.Get("/scopes/{scope}/events", publicHandlers.OpenEvents())
		r.Get("/scopes/{scope}/events/{event_id}", publicHandlers.EventDetail())
		r.Post("/scopes/{scope}/events/{event_id}/bets", publicHandlers.PlaceBet())
		r.Post("/gamble/fifty-fifty", publicHandlers.FiftyFifty())

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminAPIKey))
			r.Use(BodyCaptureMiddleware(4096))
			r.Get("/ledger", adminHandlers.Ledger())
			r.Post("/users/{user_id}/adjust", adminHandlers.Adjust())
			r.Post("/challenges", adminHandlers.CreateChallenge())
			r.Post("/challenges/{id}/complete", adminHandlers.CompleteChallenge())
			r.Post("/scopes/{scope}/events", adminHandlers.CreateEvent())
			r.Post("/scopes/{scope}/events/{event_id}/settle", adminHandlers.SettleEvent())
		})
	})

	if svc.MCP != nil {
		r.Mount("/mcp", APILogMiddleware()(svc.MCP))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteHTTPError(w, http.StatusNotFound, "not_found")
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
