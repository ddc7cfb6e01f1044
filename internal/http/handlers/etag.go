package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RespondWithETag tags payload with a strong validator over its JSON body
// and answers 304 when the client already holds it. Used for lists and
// aggregates that have no single version.
func RespondWithETag(ctx *gin.Context, status int, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		ctx.JSON(status, payload)
		return
	}

	sum := sha256.Sum256(b)
	tag := `"` + base64.RawURLEncoding.EncodeToString(sum[:16]) + `"`
	if notModified(ctx, tag) {
		return
	}
	ctx.Data(status, "application/json; charset=utf-8", b)
}

// respondVersioned tags a single parcel or payment with a weak validator
// built from its id and last update, so the body is not hashed.
func respondVersioned(ctx *gin.Context, id string, updatedAt time.Time, payload any) {
	tag := `W/"` + id + "-" + strconv.FormatInt(updatedAt.UnixMicro(), 36) + `"`
	if notModified(ctx, tag) {
		return
	}
	ctx.JSON(http.StatusOK, payload)
}

func notModified(ctx *gin.Context, tag string) bool {
	ctx.Header("ETag", tag)

	if !etagMatches(ctx.GetHeader("If-None-Match"), tag) {
		return false
	}
	ctx.Status(http.StatusNotModified)
	return true
}

// etagMatches applies the weak comparison If-None-Match calls for.
func etagMatches(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
