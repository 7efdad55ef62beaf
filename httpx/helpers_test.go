package httpx

import (
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/mbolis/survey-builder/config"
)

func testConfig() config.Config {
	return config.Config{TokenSecret: "test-secret", TokenTTL: time.Minute}
}

func passwordForm(user, pass string) io.Reader {
	return strings.NewReader(url.Values{
		"grant_type": {"password"},
		"username":   {user},
		"password":   {pass},
	}.Encode())
}
