package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
)

// handleStore is the generic passthrough: /store/{store}/{table} with POST
// insert, GET find (query parameters as the filter), PUT update and DELETE
// truncate. External collaborator surface; the scenario and benchmark
// runners never go through it.
func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/store/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, `{"error":"expected_path_store_table"}`, http.StatusNotFound)
		return
	}
	name, table := parts[0], parts[1]

	drv, ok := s.drivers[name]
	if !ok {
		http.Error(w, fmt.Sprintf(`{"error":"unknown_store","store":%q}`, name), http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var rec driver.Record
		if err := decodeJSON(r, &rec); err != nil {
			http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
			return
		}
		if err := drv.EnsureTable(r.Context(), table); err != nil {
			s.storeError(w, "table_setup_failed", err)
			return
		}
		if err := drv.Insert(r.Context(), table, rec); err != nil {
			s.storeError(w, "insert_failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"inserted": true})

	case http.MethodGet:
		filter := driver.Filter{}
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				filter[k] = vs[0]
			}
		}
		rows, err := drv.Find(r.Context(), table, filter)
		if err != nil {
			s.storeError(w, "find_failed", err)
			return
		}
		if rows == nil {
			rows = []driver.Record{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "records": rows})

	case http.MethodPut:
		var body struct {
			Filter driver.Filter `json:"filter"`
			Patch  driver.Patch  `json:"patch"`
		}
		if err := decodeJSON(r, &body); err != nil {
			http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
			return
		}
		if len(body.Filter) == 0 || len(body.Patch) == 0 {
			http.Error(w, `{"error":"filter_and_patch_required"}`, http.StatusBadRequest)
			return
		}
		if err := drv.Update(r.Context(), table, body.Filter, body.Patch); err != nil {
			s.storeError(w, "update_failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": true})

	case http.MethodDelete:
		if err := drv.Truncate(r.Context(), table); err != nil {
			s.storeError(w, "truncate_failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"truncated": true})

	default:
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (s *Server) storeError(w http.ResponseWriter, code string, err error) {
	http.Error(w, fmt.Sprintf(`{"error":%q,"details":%q}`, code, err.Error()), http.StatusBadGateway)
}
