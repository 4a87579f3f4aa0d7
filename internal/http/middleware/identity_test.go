package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func runIdentity(t *testing.T, opts IdentityOptions, lookup UserLookup, headers map[string]string) (string, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity(opts, lookup))

	var uid string
	var admin bool
	r.GET("/who", func(c *gin.Context) {
		uid, admin = UserID(c), IsAdmin(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(httptest.NewRecorder(), req)
	return uid, admin
}

func TestIdentity_HeadersAndDefaults(t *testing.T) {
	uid, admin := runIdentity(t, IdentityOptions{}, nil, nil)
	if uid != "demo-user" || admin {
		t.Fatalf("defaults = %q, %v", uid, admin)
	}

	uid, _ = runIdentity(t, IdentityOptions{DefaultUser: "anon"}, nil, nil)
	if uid != "anon" {
		t.Fatalf("configured default = %q", uid)
	}

	// Admin header ignored unless trusted.
	uid, admin = runIdentity(t, IdentityOptions{}, nil, map[string]string{HeaderUserID: " alice ", HeaderUserAdmin: "true"})
	if uid != "alice" || admin {
		t.Fatalf("untrusted = %q, %v", uid, admin)
	}
	_, admin = runIdentity(t, IdentityOptions{TrustAdminHeader: true}, nil, map[string]string{HeaderUserID: "alice", HeaderUserAdmin: "yes"})
	if !admin {
		t.Fatal("trusted admin header should be honoured")
	}
}

func TestIdentity_LookupIsAuthoritative(t *testing.T) {
	lookup := func(_ context.Context, id string) (bool, bool, error) {
		switch id {
		case "root":
			return true, true, nil
		case "alice":
			return false, true, nil
		case "broken":
			return false, false, errors.New("db down")
		}
		return false, false, nil
	}
	opts := IdentityOptions{TrustAdminHeader: true}

	if _, admin := runIdentity(t, opts, lookup, map[string]string{HeaderUserID: "root"}); !admin {
		t.Fatal("root is an admin in the directory")
	}
	if _, admin := runIdentity(t, opts, lookup, map[string]string{HeaderUserID: "alice", HeaderUserAdmin: "1"}); admin {
		t.Fatal("directory says alice is not an admin")
	}
	if _, admin := runIdentity(t, opts, lookup, map[string]string{HeaderUserID: "stranger", HeaderUserAdmin: "1"}); !admin {
		t.Fatal("unknown users fall back to the trusted header")
	}
	if uid, admin := runIdentity(t, opts, lookup, map[string]string{HeaderUserID: "broken"}); uid != "broken" || admin {
		t.Fatalf("lookup errors are ignored: %q, %v", uid, admin)
	}
}

func TestUserID_FallsBackToHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(HeaderUserID, "bob")

	if got := UserID(c); got != "bob" {
		t.Fatalf("UserID = %q", got)
	}
	if got := userIDFromCtx(c); got != "demo-user" {
		t.Fatalf("userIDFromCtx must ignore the header, got %q", got)
	}
	if IsAdmin(c) {
		t.Fatal("no admin flag without Identity")
	}
}
