package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		notFound  bool
		forbidden bool
	}{
		{"unknown message", restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), true, false},
		{"unknown channel wrapped", fmt.Errorf("fetch: %w", restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel)), true, false},
		{"bare 404", &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}, true, false},
		{"missing access", restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess), false, true},
		{"closed dms", restError(http.StatusForbidden, discordgo.ErrCodeCannotSendMessagesToThisUser), false, true},
		{"server error", restError(http.StatusBadGateway, 0), false, false},
		{"network", errors.New("connection reset"), false, false},
		{"nil", nil, false, false},
	}
	for _, tc := range cases {
		if got := IsNotFound(tc.err); got != tc.notFound {
			t.Fatalf("%s: IsNotFound = %v", tc.name, got)
		}
		if got := IsForbidden(tc.err); got != tc.forbidden {
			t.Fatalf("%s: IsForbidden = %v", tc.name, got)
		}
		if got := IsGone(tc.err); got != (tc.notFound || tc.forbidden) {
			t.Fatalf("%s: IsGone = %v", tc.name, got)
		}
	}
}
