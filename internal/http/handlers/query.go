package handlers

import (
	"strconv"
	"strings"

	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}

	return n
}

// parseBoolQuery returns nil when the key is absent.
func parseBoolQuery(ctx *gin.Context, key string) (*bool, bool) {
	raw := strings.TrimSpace(ctx.Query(key))
	if raw == "" {
		return nil, true
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &b, true
}

func optionalString(ctx *gin.Context, key string) *string {
	v := strings.TrimSpace(ctx.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

// pageParams reads limit and cursor, answering 400 itself when they are
// malformed.
func pageParams(ctx *gin.Context) (int, *utils.Cursor, bool) {
	limit := utils.ClampLimit(parseIntDefault(ctx.Query("limit"), defaultPageSize), defaultPageSize, maxPageSize)

	cur, err := utils.OptionalCursor(ctx.Query("cursor"))
	if err != nil {
		RespondBadRequest(ctx, "cursor is invalid", gin.H{"field": "cursor"})
		return 0, nil, false
	}
	return limit, cur, true
}

func pageResponse(items any, count, limit int, next *string) gin.H {
	return gin.H{
		"items":      items,
		"count":      count,
		"limit":      limit,
		"hasMore":    next != nil,
		"nextCursor": next,
	}
}

// isUUID guards path ids before they reach a uuid column.
func isUUID(id string) bool {
	return uuid.Validate(id) == nil
}
