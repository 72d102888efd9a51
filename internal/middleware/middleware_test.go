package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIPRateLimiter_BlocksAfterBurst(t *testing.T) {
	lim := NewIPRateLimiter(1, 2, zap.NewNop().Sugar())
	app := fiber.New()
	app.Post("/api/upload", lim.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/api/upload", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	lim := NewIPRateLimiter(60, 1, zap.NewNop().Sugar())
	now := time.Date(2025, 2, 23, 9, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return now }
	lim.getLimiter("10.0.0.1")

	now = now.Add(10 * time.Minute)
	lim.getLimiter("10.0.0.2")
	lim.Sweep(5 * time.Minute)

	assert.NotContains(t, lim.visitors, "10.0.0.1")
	assert.Contains(t, lim.visitors, "10.0.0.2")
}

type tokenVerifier string

func (v tokenVerifier) Verify(tok string) error {
	if tok != string(v) {
		return errors.New("bad token")
	}
	return nil
}

func TestRequireSession(t *testing.T) {
	app := fiber.New()
	app.Get("/private", RequireSession(tokenVerifier("good")), func(c *fiber.Ctx) error { return c.SendString("ok") })

	cases := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{name: "none", target: "/private", want: 401},
		{name: "bearer", target: "/private", header: map[string]string{"Authorization": "Bearer good"}, want: 200},
		{name: "header", target: "/private", header: map[string]string{SessionHeader: "good"}, want: 200},
		{name: "query", target: "/private?session=good", want: 200},
		{name: "wrong", target: "/private", header: map[string]string{"Authorization": "Bearer bad"}, want: 401},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
