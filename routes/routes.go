package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbolis/survey-builder/app"
	"github.com/mbolis/survey-builder/routes/middlewares"
	"github.com/mbolis/survey-builder/view"
	"github.com/rs/cors"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	root.Handle("/static/*", http.StripPrefix("/static", view.Static()))

	root.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, surveysPath, http.StatusFound)
	})
	root.Get("/survey", PublicSurvey(app))
	root.Get("/results", PublicResults(app))

	root.Get("/login", LoginPage(app))
	root.Post("/login", LoginForm(app))
	root.Post("/logout", Logout)

	root.Mount("/api", apiRouter(app))
	root.Mount("/admin", adminRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()
	if len(app.CORSOrigins) > 0 {
		api.Use(cors.New(cors.Options{
			AllowedOrigins: app.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler)
	}

	api.Get(`/surveys/{id:^\d+$}`, PublicGetSurveyById(app))

	api.Group(func(r chi.Router) {
		if app.SubmitRate > 0 {
			r.Use(middlewares.NewRateLimiter(app.SubmitRate).Handler)
		}
		r.Use(middlewares.OneAtATime)
		r.Post("/submit", PublicSubmit(app))
	})

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD survey
		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get(`/surveys/{id:^\d+$}`, GetSurveyById(app))
		r.Put(`/surveys/{id:^\d+$}`, UpdateSurvey(app))
		r.Patch(`/surveys/{id:^\d+$}`, PatchSurvey(app))
		r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(app))
		r.Post(`/surveys/{id:^\d+$}/duplicate`, DuplicateSurvey(app))

		r.Post(`/surveys/{id:^\d+$}/questions`, AddQuestion(app))
		r.Put(`/surveys/{id:^\d+$}/questions/{qid:^\d+$}`, UpdateQuestion(app))
		r.Delete(`/surveys/{id:^\d+$}/questions/{qid:^\d+$}`, DeleteQuestion(app))

		r.Get(`/surveys/{id:^\d+$}/submissions`, GetSurveySubmissions(app))
		r.Get(`/surveys/{id:^\d+$}/stats`, GetSurveyStats(app))
		r.Get(`/submissions/{id:^\d+$}`, GetSubmission(app))
		r.Delete(`/submissions/{id:^\d+$}`, DeleteSubmission(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func adminRouter(app app.App) http.Handler {
	admin := chi.NewRouter()
	admin.Use(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret))

	admin.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, surveysPath, http.StatusFound)
	})

	admin.Get("/surveys", AdminSurveys(app))
	admin.Get("/surveys/new", AdminNewSurvey(app))
	admin.Post("/surveys/save", AdminSaveSurvey(app))
	admin.Get(`/surveys/{id:^\d+$}/edit`, AdminEditSurvey(app))
	admin.Post(`/surveys/{id:^\d+$}/delete`, AdminDeleteSurvey(app))
	admin.Post(`/surveys/{id:^\d+$}/duplicate`, AdminDuplicateSurvey(app))
	admin.Post(`/surveys/{id:^\d+$}/toggle-status`, AdminToggleSurvey(app))

	admin.Get("/submissions", AdminSubmissions(app))
	admin.Get(`/submissions/{id:^\d+$}`, AdminSubmission(app))
	admin.Post(`/submissions/{id:^\d+$}/delete`, AdminDeleteSubmission(app))

	admin.Post("/test-email", AdminTestEmail(app))

	return admin
}
