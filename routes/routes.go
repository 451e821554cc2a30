package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scrimlab/match-engine/handlers"
	"github.com/scrimlab/match-engine/middleware"
)

type Handlers struct {
	Submissions *handlers.SubmissionHandler
	Matches     *handlers.MatchHandler
	Scrimmages  *handlers.ScrimmageHandler
	Tournaments *handlers.TournamentHandler
	AutoScrim   *handlers.AutoScrimHandler
	Live        *handlers.LiveHandler
}

// InitRoutes builds the router. Report and admin endpoints sit behind the
// admin JWT guard; reads and team operations are open here because caller
// identity is enforced by the external gateway in front of the engine.
func InitRoutes(h Handlers, jwtSecret string) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/episode/{episode}", func(r chi.Router) {
		r.Post("/submissions", h.Submissions.Create)
		r.Get("/matches", h.Matches.ListByEpisode)
		r.Post("/scrimmages", h.Scrimmages.Create)
		r.Get("/live", h.Live.Subscribe)

		// Admin dispatch controls.
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(jwtSecret))
			r.Post("/submissions/enqueue", h.Submissions.Enqueue)
			r.Post("/submissions/enqueue-all", h.Submissions.EnqueueAll)
			r.Post("/matches/enqueue", h.Matches.Enqueue)
			r.Post("/matches/enqueue-all", h.Matches.EnqueueAll)
			r.Post("/autoscrim", h.AutoScrim.Run)
		})
	})

	router.Route("/submissions/{id}", func(r chi.Router) {
		r.Get("/", h.Submissions.Get)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(jwtSecret))
			r.Post("/report", h.Submissions.Report)
			r.Post("/cancel", h.Submissions.Cancel)
		})
	})

	router.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/", h.Matches.Get)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(jwtSecret))
			r.Post("/report", h.Matches.Report)
			r.Post("/cancel", h.Matches.Cancel)
		})
	})

	router.Route("/teams/{teamID}", func(r chi.Router) {
		r.Get("/submissions", h.Submissions.ListByTeam)
		r.Get("/scrimmages/inbox", h.Scrimmages.Inbox)
		r.Get("/scrimmages/outbox", h.Scrimmages.Outbox)
	})

	router.Route("/scrimmages", func(r chi.Router) {
		r.Get("/{id}", h.Scrimmages.Get)
		r.Post("/accept", h.Scrimmages.Accept)
		r.Post("/reject", h.Scrimmages.Reject)
		r.Post("/cancel", h.Scrimmages.Cancel)
	})

	router.Route("/tournaments", func(r chi.Router) {
		r.Use(middleware.AdminOnly(jwtSecret))
		r.Post("/{id}/brackets", h.Tournaments.CreateBrackets)
		r.Post("/{id}/seed", h.Tournaments.SeedTeams)
		r.Post("/{id}/start", h.Tournaments.Start)
		r.Post("/rounds/{roundID}/enqueue", h.Tournaments.EnqueueRound)
		r.Post("/matches/{matchID}/report-result", h.Tournaments.ReportResult)
	})

	return router
}
