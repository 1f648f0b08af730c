package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"event-ticketing/internal/auth"
	"event-ticketing/internal/config"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
)

const CookieName = "test_session"

// NewAuthenticator wires an Authenticator to a throwaway miniredis instance.
func NewAuthenticator(t *testing.T, users auth.UserLoader) *auth.Authenticator {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return auth.NewAuthenticator(
		auth.NewSessionStore(client, time.Hour),
		auth.NewTokenIssuer("test-jwt-secret", time.Hour),
		nil,
		users,
		config.AuthConfig{CookieName: CookieName},
		logger.Nop(),
	)
}

// Bearer returns an Authorization header value for user.
func Bearer(t *testing.T, a *auth.Authenticator, user *models.User) string {
	t.Helper()
	token, _, err := a.Tokens.Issue(user)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return "Bearer " + token
}

func PNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// Multipart builds a multipart body from plain fields and files keyed by form field name.
func Multipart(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field %s: %v", k, err)
		}
	}
	for field, content := range files {
		part, err := w.CreateFormFile(field, field+".bin")
		if err != nil {
			t.Fatalf("Failed to create file %s: %v", field, err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("Failed to write file %s: %v", field, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return &body, w.FormDataContentType()
}
