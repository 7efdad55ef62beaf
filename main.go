package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mbolis/survey-builder/app"
	"github.com/mbolis/survey-builder/cache"
	"github.com/mbolis/survey-builder/config"
	"github.com/mbolis/survey-builder/database"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/log"
	"github.com/mbolis/survey-builder/notify"
	"github.com/mbolis/survey-builder/repository"
	"github.com/mbolis/survey-builder/routes"
	"github.com/mbolis/survey-builder/service"
	"github.com/mbolis/survey-builder/token"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg.DBUrl)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	err = database.EnsureAdmin(context.Background(), db, cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		log.Fatal("main.db.admin:", err)
	}

	bearerServer := httpx.NewBearerServer(db, cfg)
	tokens := token.NewIssuer(cfg.TokenSecret, cfg.ActionTokenTTL)
	links := app.NewLinks(cfg.BaseURL, tokens)
	notifier := notify.NewNotifier(newMailer(cfg.Mail), notify.Settings{
		SiteName:     cfg.SiteName,
		AdminEmail:   cfg.Mail.AdminEmail,
		AdminSubject: cfg.Mail.AdminSubject,
		UserSubject:  cfg.Mail.UserSubject,
	})

	surveys := service.NewSurveyService(repository.NewSurveyRepo(db), newCache(cfg))
	submissions := service.NewSubmissionService(surveys, repository.NewSubmissionRepo(db), notifier, links).
		WithAdminLinks(links.AdminSubmission).
		WithNotifyTimeout(cfg.Mail.Timeout)

	app := app.App{
		DB:           db,
		BearerServer: bearerServer,
		Config:       cfg,
		Surveys:      surveys,
		Submissions:  submissions,
		Notifier:     notifier,
		Tokens:       tokens,
		Links:        links,
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

// newCache connects the survey cache, or disables it when redis is not
// configured or not reachable.
func newCache(cfg config.Config) cache.SurveyCache {
	if cfg.RedisAddr == "" {
		return cache.Nop()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("main.cache: redis unreachable, survey cache disabled")
		client.Close()
		return cache.Nop()
	}
	return cache.NewSurveyCache(client, cfg.CacheTTL)
}

func newMailer(m config.Mail) notify.Mailer {
	if !m.Enabled() {
		log.Warn("main.mail: no SMTP host, emails are only logged")
		return notify.LogMailer()
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     m.SMTPHost,
		Port:     m.SMTPPort,
		Username: m.SMTPUser,
		Password: m.SMTPPassword,
		From:     m.FromEmail,
		FromName: m.FromName,
		UseSSL:   m.SMTPSSL,
	})
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
