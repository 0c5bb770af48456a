package stats

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MonilMehta/fyp/internal/tracking"
)

// RegisterRoutes mounts the chart JSON endpoints consumed by the
// dashboard. These are operator-facing: errors surface normally.
func RegisterRoutes(r chi.Router, engine *Engine) {
	r.Get("/dashboard/api/hourly", handleHourly(engine))
	r.Get("/dashboard/api/endpoints", handleEndpoints(engine))
}

// chartData is the labels/values shape the dashboard charts expect.
type chartData struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

func handleHourly(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := 24
		if v := r.URL.Query().Get("hours"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				hours = n
			}
		}

		buckets, err := engine.HourlyActivity(r.Context(), hours)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		data := chartData{Labels: []string{}, Values: []int{}}
		for _, b := range buckets {
			data.Labels = append(data.Labels, b.Hour.Format("15:04"))
			data.Values = append(data.Values, b.Count)
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func handleEndpoints(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := engine.GroupByEndpoint(r.Context(), nil, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		data := chartData{Labels: []string{}, Values: []int{}}
		for _, c := range tracking.Categories {
			data.Labels = append(data.Labels, string(c))
			data.Values = append(data.Values, counts[c])
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
