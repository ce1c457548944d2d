package ratelimit

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestAllowRefillsOverTime(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("a", 1) || !rl.allow("a", 1) {
		t.Fatal("first two requests must pass")
	}
	if rl.allow("a", 1) {
		t.Fatal("third request must be limited")
	}
	if !rl.allow("b", 2) {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(30 * time.Second)
	if !rl.allow("a", 1) {
		t.Fatal("one token refills every 30s")
	}
	if rl.allow("a", 1) {
		t.Fatal("only one token refilled")
	}
}

func TestMiddlewareRejectsWithRetryAfter(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()

	app := fiber.New()
	app.Post("/analyze", rl.Middleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("POST", "/analyze", nil)
	req.Header.Set("X-User-ID", "user-1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/analyze", nil)
	req.Header.Set("X-User-ID", "user-1")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q", got)
	}
}

func TestCostBySize(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 4, Cost: CostBySize(10)})
	defer rl.Stop()

	app := fiber.New()
	app.Post("/analyze", rl.Middleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	post := func(body string) int {
		req := httptest.NewRequest("POST", "/analyze", strings.NewReader(body))
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode
	}

	// 25 bytes costs 3 of the 4 tokens.
	if got := post(strings.Repeat("x", 25)); got != fiber.StatusOK {
		t.Fatalf("status = %d", got)
	}
	if got := post(strings.Repeat("x", 15)); got != fiber.StatusTooManyRequests {
		t.Fatalf("second upload needs 2 tokens, status = %d", got)
	}
	if got := post("x"); got != fiber.StatusOK {
		t.Fatalf("small request should use the last token, status = %d", got)
	}
}
