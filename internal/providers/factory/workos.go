package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/janekbaraniewski/quotaprobe/internal/cookies"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

var refreshTokenQuery = cookies.LocalStorageQuery{
	Marker:  "workos:refresh-token",
	Pattern: regexp.MustCompile(`[A-Za-z0-9_-]{20,128}`),
}

type authenticateRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
}

type authenticateResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		Email string `json:"email"`
	} `json:"user"`
}

// exchange trades a scraped refresh token for an access token. WorkOS
// answers a stale token with 400 invalid_grant, reported as an auth error.
func (p *Provider) exchange(ctx context.Context, clientID, refreshToken string) (authenticateResponse, error) {
	body, err := json.Marshal(authenticateRequest{
		GrantType:    "refresh_token",
		ClientID:     clientID,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return authenticateResponse{}, core.WrapError(core.KindUnknown, err)
	}

	var out authenticateResponse
	err = p.rt.DoJSON(ctx, shared.Request{
		Method: http.MethodPost,
		URL:    p.workosBase + "/user_management/authenticate",
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   bytes.NewReader(body),
	}, &out)
	var fe *core.FetchError
	if errors.As(err, &fe) && fe.StatusCode == http.StatusBadRequest {
		return authenticateResponse{}, core.AuthError(fe.StatusCode, "sign in to app.factory.ai again")
	}
	if err != nil {
		return authenticateResponse{}, err
	}
	if out.AccessToken == "" {
		return authenticateResponse{}, core.Errorf(core.KindMalformed, "token exchange returned no access token")
	}
	return out, nil
}
