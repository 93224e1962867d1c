package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// queryInt extracts an integer query param with a default value.
func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// bindInput decodes an optional JSON object body. An empty body yields nil.
func bindInput(c *gin.Context) (map[string]any, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}

// webhookHeaders are copied into trigger metadata when present.
var webhookHeaders = []string{"Content-Type", "User-Agent", "X-Request-Id", "X-Forwarded-For"}

func headerSubset(c *gin.Context) map[string]any {
	out := map[string]any{}
	for _, h := range webhookHeaders {
		if v := c.GetHeader(h); v != "" {
			out[h] = v
		}
	}
	return out
}
