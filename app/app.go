package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mbolis/survey-builder/config"
	"github.com/mbolis/survey-builder/notify"
	"github.com/mbolis/survey-builder/service"
	"github.com/mbolis/survey-builder/token"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config

	Surveys     *service.SurveyService
	Submissions *service.SubmissionService
	Notifier    *notify.Notifier
	Tokens      *token.Issuer
	Links       *Links
}
