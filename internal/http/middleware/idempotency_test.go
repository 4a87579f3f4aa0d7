package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	userID, scope, key string
	now                time.Time
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, seen *struct{ key, replay, bypass bool }) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Identity(IdentityOptions{}, nil), IdempotencyValidator(opts, lookup))
	r.POST("/api/v1/meetings", func(c *gin.Context) {
		_, seen.key = GetIdempotencyKey(c)
		seen.replay, seen.bypass = IsReplay(c), IsRateBypass(c)
		c.Status(http.StatusCreated)
	})
	return r
}

func TestIdempotencyHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if k, ok := GetIdempotencyKey(c); k != "" || ok || IsReplay(c) {
		t.Fatal("unset context should report nothing")
	}
	c.Set(ctxKeyIdemKey, 123)
	c.Set(ctxKeyIdemReplay, "yes")
	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatal("wrong types should be ignored")
	}
	c.Set(ctxKeyIdemKey, "k-1")
	c.Set(ctxKeyIdemReplay, true)
	if k, ok := GetIdempotencyKey(c); k != "k-1" || !ok || !IsReplay(c) {
		t.Fatal("set values should be reported")
	}
}

func TestIdempotencyValidator_NoHeaderSkipsLookup(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return false, nil
	}
	var seen struct{ key, replay, bypass bool }
	w := serve(idemRouter(IdempotencyOptions{}, lookup, &seen), http.MethodPost, "/api/v1/meetings", nil)

	if w.Code != http.StatusCreated || called || seen.key {
		t.Fatalf("code %d called %v key %v", w.Code, called, seen.key)
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"default max", IdempotencyOptions{}, strings.Repeat("k", 201)},
		{"default pattern", IdempotencyOptions{}, "has space"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen struct{ key, replay, bypass bool }
			w := serve(idemRouter(tc.opts, nil, &seen), http.MethodPost, "/api/v1/meetings",
				map[string]string{HeaderIdempotencyKey: tc.key, requestIDHeader: "rid-k"})
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" || body["request_id"] != "rid-k" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_LookupMissHitAndError(t *testing.T) {
	var calls []lookupCall
	result := map[string]bool{"fresh": false, "again": true}
	lookup := func(_ context.Context, userID, scope, key string, now time.Time) (bool, error) {
		calls = append(calls, lookupCall{userID, scope, key, now})
		if key == "broken" {
			return false, errors.New("db closed")
		}
		return result[key], nil
	}
	opts := IdempotencyOptions{Scope: func(*gin.Context) string { return "meetings" }}

	var seen struct{ key, replay, bypass bool }
	r := idemRouter(opts, lookup, &seen)

	serve(r, http.MethodPost, "/api/v1/meetings", map[string]string{HeaderIdempotencyKey: "fresh", HeaderUserID: "alice"})
	if !seen.key || seen.replay || seen.bypass {
		t.Fatalf("miss = %+v", seen)
	}

	serve(r, http.MethodPost, "/api/v1/meetings", map[string]string{HeaderIdempotencyKey: "again", HeaderUserID: "alice"})
	if !seen.replay || !seen.bypass {
		t.Fatalf("hit = %+v", seen)
	}

	w := serve(r, http.MethodPost, "/api/v1/meetings", map[string]string{HeaderIdempotencyKey: "broken"})
	if w.Code != http.StatusCreated || seen.replay {
		t.Fatalf("lookup error must not block: %d %+v", w.Code, seen)
	}

	if len(calls) != 3 {
		t.Fatalf("calls = %d", len(calls))
	}
	if c := calls[0]; c.userID != "alice" || c.scope != "meetings" || c.key != "fresh" || c.now.Location() != time.UTC {
		t.Fatalf("first call = %+v", c)
	}
	if calls[2].userID != "demo-user" {
		t.Fatalf("anonymous viewer = %q", calls[2].userID)
	}
}

func TestIdempotencyValidator_DefaultScopeIsRoute(t *testing.T) {
	var scope string
	lookup := func(_ context.Context, _, s, _ string, _ time.Time) (bool, error) {
		scope = s
		return false, nil
	}
	var seen struct{ key, replay, bypass bool }
	serve(idemRouter(IdempotencyOptions{}, lookup, &seen), http.MethodPost, "/api/v1/meetings",
		map[string]string{HeaderIdempotencyKey: "k"})
	if scope != "/api/v1/meetings" {
		t.Fatalf("scope = %q", scope)
	}
}
