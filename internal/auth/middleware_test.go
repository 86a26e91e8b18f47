package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func syncRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sync", SyncAuth("test-key", "shiftboard", secret), func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no identity"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subject": id.Subject, "via": id.Via})
	})
	return r
}

func TestSyncAuthSharedSecret(t *testing.T) {
	r := syncRouter("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("X-Sync-Secret", "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"via":"secret"`) {
		t.Fatalf("body = %s, want secret identity", w.Body.String())
	}
}

func TestSyncAuthRejectsWrongSecret(t *testing.T) {
	r := syncRouter("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("X-Sync-Secret", "guess")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestSyncAuthRejectsSecretWhenNoneConfigured(t *testing.T) {
	r := syncRouter("")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("X-Sync-Secret", "anything")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestSyncAuthAcceptsAdminBearer(t *testing.T) {
	r := syncRouter("s3cret")

	sess, err := Issue("admin", RoleAdmin, "shiftboard", "test-key", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"via":"session"`) {
		t.Fatalf("body = %s, want session identity", w.Body.String())
	}
}

func TestSyncAuthRejectsMissingCredentials(t *testing.T) {
	r := syncRouter("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
