package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestExtOf(t *testing.T) {
	cases := map[string]string{
		"video.mp4":     "mp4",
		"archive.tar.gz": "gz",
		"noextension":   "",
	}
	for in, want := range cases {
		if got := extOf(in); got != want {
			t.Errorf("extOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOwnerIDReadsClientHeader(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Client-Id", "client-42")
	c.Request = req

	if got := ownerID(c); got != "client-42" {
		t.Errorf("ownerID() = %q, want client-42", got)
	}
}

func TestOwnerIDEmptyWhenHeaderMissing(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if got := ownerID(c); got != "" {
		t.Errorf("ownerID() = %q, want empty string", got)
	}
}

func TestRespondErrorMapsAppErrType(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, apperr.New(apperr.InsufficientDiskSpace, "no room"))

	if w.Code != 422 {
		t.Errorf("status = %d, want 422", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["errorType"] != string(apperr.InsufficientDiskSpace) {
		t.Errorf("errorType = %v, want %v", body["errorType"], apperr.InsufficientDiskSpace)
	}
}

func TestRespondErrorFallsBackToFatalForPlainErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, errors.New("boom"))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
