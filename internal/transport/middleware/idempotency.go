package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	idempotencyProcessing = "PROCESSING"
	idempotencyLockTTL    = 10 * time.Second
)

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a successful request sent
// again with the same Idempotency-Key by the same user. A key still being
// processed answers 409. Failed requests release the key. Must run after
// Auth.
func Idempotency(client *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || client == nil {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		default:
			c.Next()
			return
		}

		ctx := c.Request.Context()
		idemKey := fmt.Sprintf("idempotency:%s:%s:%s:%s", c.GetString(ContextUserID), c.Request.Method, c.Request.URL.Path, key)

		acquired, err := client.SetNX(ctx, idemKey, idempotencyProcessing, idempotencyLockTTL).Result()
		if err != nil {
			// redis is down: serve without the guarantee
			logrus.WithError(err).Warn("idempotency check skipped")
			c.Next()
			return
		}

		if !acquired {
			val, err := client.Get(ctx, idemKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				logrus.WithError(err).Warn("idempotency lookup failed")
			}

			var stored storedResponse
			if val != "" && val != idempotencyProcessing && json.Unmarshal([]byte(val), &stored) == nil {
				c.Header("X-Idempotency-Replayed", "true")
				c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
				c.Abort()
				return
			}

			abort(c, http.StatusConflict, "CONFLICT", "request with this Idempotency-Key is already in progress")
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		status := recorder.Status()
		if status < 200 || status >= 300 || !json.Valid(recorder.body.Bytes()) {
			client.Del(storeCtx, idemKey)
			return
		}

		data, err := json.Marshal(storedResponse{Status: status, Body: recorder.body.Bytes()})
		if err != nil {
			client.Del(storeCtx, idemKey)
			return
		}
		if err := client.Set(storeCtx, idemKey, data, ttl).Err(); err != nil {
			logrus.WithError(err).Warn("failed to store idempotent response")
		}
	}
}
