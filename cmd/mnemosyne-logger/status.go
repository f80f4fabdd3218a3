package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// fetchStatus mints a short-lived HS256 bearer token and dials addr's
// /status endpoint, the client-side counterpart of adminserver's auth
// middleware.
func fetchStatus(addr string, secret [32]byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString(secret[:])
	if err != nil {
		return "", fmt.Errorf("sign status request token: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, addr+"/status", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+signed)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status request failed: %s: %s", resp.Status, body)
	}
	return string(body), nil
}
