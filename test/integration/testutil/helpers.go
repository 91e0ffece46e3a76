//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/clashmarket/arena/internal/auth"
	"github.com/clashmarket/arena/internal/domain"
	"github.com/google/uuid"
)

// PlayerToken issues a player-realm token for a fresh user.
func (env *TestEnv) PlayerToken() (string, uuid.UUID) {
	env.t.Helper()
	return env.token(auth.RealmPlayer)
}

// ResolverToken issues a resolver-realm token.
func (env *TestEnv) ResolverToken() string {
	env.t.Helper()
	tok, _ := env.token(auth.RealmResolver)
	return tok
}

func (env *TestEnv) token(realm auth.Realm) (string, uuid.UUID) {
	id := uuid.New()
	tok, err := env.JWTMgr.GenerateToken(realm, id)
	if err != nil {
		env.t.Fatalf("generate token: %v", err)
	}
	return tok, id
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// AuthPOST performs a POST with a JSON body and bearer token.
func (env *TestEnv) AuthPOST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.send(http.MethodPost, path, body, token)
}

// AuthPATCH performs a PATCH with a JSON body and bearer token.
func (env *TestEnv) AuthPATCH(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.send(http.MethodPatch, path, body, token)
}

func (env *TestEnv) send(method, path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// DecodeGame reads a game from resp and closes the body.
func (env *TestEnv) DecodeGame(resp *http.Response) domain.Game {
	env.t.Helper()
	defer resp.Body.Close()
	var g domain.Game
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		env.t.Fatalf("decode game: %v", err)
	}
	return g
}
