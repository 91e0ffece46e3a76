//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/service"
	"github.com/clashmarket/arena/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI_PrivateGameFlow(t *testing.T) {
	env := testutil.NewTestEnv(t)
	creatorTok, creatorID := env.PlayerToken()
	opponentTok, opponentID := env.PlayerToken()
	resolverTok := env.ResolverToken()

	resp := env.AuthPOST("/games", map[string]interface{}{
		"principal_amount": 2,
		"pot_amount":       4,
		"is_private":       true,
		"duration_seconds": 120,
	}, creatorTok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g := env.DecodeGame(resp)
	require.NotNil(t, g.Code)
	assert.Equal(t, creatorID, g.CreatorID)
	assert.Equal(t, "SOL", g.Token)

	resp = env.AuthPOST("/games/join", map[string]string{"code": " " + *g.Code + " "}, opponentTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g = env.DecodeGame(resp)
	assert.Equal(t, domain.GameJoined, g.Status)
	assert.Equal(t, opponentID, *g.OpponentID)

	resp = env.AuthPOST("/games/start/"+g.ID.String(), nil, creatorTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g = env.DecodeGame(resp)
	assert.Equal(t, domain.GameActive, g.Status)

	resp = env.GET("/games/" + g.ID.String() + "/countdown")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view service.CountdownView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, domain.GameActive, view.Status)
	assert.InDelta(t, 120, view.RemainingSeconds, 2)

	resp = env.AuthPOST("/games/"+g.ID.String()+"/complete", map[string]string{"winner_id": opponentID.String()}, resolverTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g = env.DecodeGame(resp)
	assert.Equal(t, domain.GameCompleted, g.Status)
	assert.Equal(t, opponentID, *g.WinnerID)

	// code is free again once the game is terminal
	resp = env.AuthPOST("/games/join", map[string]string{"code": *g.Code}, opponentTok)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_EditAndCancel(t *testing.T) {
	env := testutil.NewTestEnv(t)
	creatorTok, _ := env.PlayerToken()
	otherTok, _ := env.PlayerToken()

	resp := env.AuthPOST("/games", map[string]interface{}{"principal_amount": 1, "pot_amount": 2}, creatorTok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g := env.DecodeGame(resp)
	path := "/games/" + g.ID.String()

	resp = env.AuthPATCH(path, map[string]interface{}{"pot_amount": 5}, otherTok)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthPATCH(path, map[string]interface{}{"game_code": "ZZZ999"}, creatorTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g = env.DecodeGame(resp)
	assert.True(t, g.IsPrivate)
	assert.Equal(t, "ZZZ999", *g.Code)

	resp = env.AuthPOST(path+"/cancel", nil, creatorTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g = env.DecodeGame(resp)
	assert.Equal(t, domain.GameCanceled, g.Status)

	resp = env.AuthPOST(path+"/join", nil, otherTok)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var body struct {
		Code    string       `json:"code"`
		Current *domain.Game `json:"current"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, domain.CodeInvalidState, body.Code)
	require.NotNil(t, body.Current)
	assert.Equal(t, domain.GameCanceled, body.Current.Status)
}

func TestAPI_Health(t *testing.T) {
	env := testutil.NewTestEnv(t)
	resp := env.GET("/health")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
