package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// queryTime parses an optional timestamp query parameter. Absent means zero,
// which the services read as now.
func queryTime(c *gin.Context, key string) (timestamp.Timestamp, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return timestamp.Timestamp{}, nil
	}
	ts, err := timestamp.Parse(raw)
	if err != nil {
		return timestamp.Timestamp{}, domainagg.Validation("http.query", "invalid %s: %v", key, err)
	}
	return ts, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domainagg.Validation("http.query", "invalid %s: %q", key, raw)
	}
	return v, nil
}

func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return domainagg.Validation("http.body", "invalid body: %v", err)
	}
	return nil
}
