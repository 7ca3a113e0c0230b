package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-course-checkout/internal/progress"
	"github.com/ariefcatur/go-course-checkout/internal/redisx"
)

type ProgressHandler struct {
	Repo  *progress.Repo
	Redis *redis.Client
}

func (h *ProgressHandler) Register(r *chi.Mux) {
	r.Get("/progress", h.getProgress)
}

// getProgress menghitung watched time per course on demand dari log mentah.
// Cache TTL pendek; staleness bisa diterima (agregasi pure atas snapshot).
func (h *ProgressHandler) getProgress(w http.ResponseWriter, r *http.Request) {
	buyerID := r.URL.Query().Get("buyer_id")
	if buyerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing buyer_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyProgress, buyerID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s))
		return
	}

	// 2) fallback hitung dari DB
	rows, err := h.Repo.RowsForBuyer(ctx, buyerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	result := progress.Aggregate(rows)

	b, _ := json.Marshal(result)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLProgress).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
