package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/safar/qooldab/internal/idempotency"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
)

// idempotent replays the recorded response when a request repeats an
// Idempotency-Key already used by the same user on the same route. Requests
// without the header, or servers without a store, pass straight through.
// Server errors release the key so the client can retry.
func (s *Server) idempotent(route string, env envelope, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if s.idem == nil || key == "" {
			next(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeAPIError(w, env, apiError{
				Status:  http.StatusBadRequest,
				Code:    CodeInvalidInput,
				Message: "Idempotency-Key must be at most " + strconv.Itoa(maxIdempotencyKeyLength) + " characters",
			})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			respondError(w, env, bodyError(err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		sum := sha256.Sum256(body)
		fingerprint := hex.EncodeToString(sum[:])
		scoped := strconv.FormatInt(userID(r), 10) + "|" + route + "|" + key

		replay, err := s.idem.Begin(scoped, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeAPIError(w, env, apiError{
				Status:  http.StatusConflict,
				Code:    CodeRequestInProgress,
				Message: "A request with this Idempotency-Key is still being processed",
			})
			return
		case errors.Is(err, idempotency.ErrKeyReused):
			writeAPIError(w, env, apiError{
				Status:  http.StatusUnprocessableEntity,
				Code:    CodeIdempotencyKeyReused,
				Message: "Idempotency-Key was already used with a different request",
			})
			return
		case err != nil:
			s.log.Error("idempotency lookup failed",
				zap.String("request_id", RequestID(r.Context())),
				zap.Error(err))
			writeAPIError(w, env, apiError{
				Status:  http.StatusServiceUnavailable,
				Code:    CodeStoreUnavailable,
				Message: "Service temporarily unavailable, please retry",
			})
			return
		}

		if replay != nil {
			if replay.ContentType != "" {
				w.Header().Set("Content-Type", replay.ContentType)
			}
			w.Header().Set(HeaderReplayed, "true")
			w.WriteHeader(replay.Status)
			w.Write(replay.Body)
			return
		}

		rec := &recorder{ResponseWriter: w, body: &bytes.Buffer{}}
		completed := false
		defer func() {
			if !completed {
				s.release(r, scoped)
			}
		}()

		next(rec, r)

		if rec.statusCode() >= http.StatusInternalServerError {
			return
		}

		err = s.idem.Complete(scoped, idempotency.Response{
			Fingerprint: fingerprint,
			Status:      rec.statusCode(),
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			s.log.Error("record idempotent response",
				zap.String("request_id", RequestID(r.Context())),
				zap.Error(err))
			return
		}
		completed = true
	}
}

func (s *Server) release(r *http.Request, key string) {
	if err := s.idem.Release(key); err != nil {
		s.log.Warn("release idempotency key",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
	}
}
