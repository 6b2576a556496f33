package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog"
	"github.com/airbusgeo/s1ard-worklist/service/log"
)

const queryJSONField = "query"
const tilesJSONField = "tiles"
const scenesJSONField = "scenes"

func (c *Catalog) AddHandler(r *mux.Router) {
	r.HandleFunc("/worklist/scenes", c.ScenesHandler).Methods("GET", "POST")
	r.HandleFunc("/worklist/completeness", c.CompletenessHandler).Methods("GET", "POST")
}

func readField(req *http.Request, field string) ([]byte, error) {
	if req.FormValue(field) != "" {
		return []byte(req.FormValue(field)), nil
	}
	file, _, err := req.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	io.Copy(&buf, file)
	return buf.Bytes(), nil
}

func loadQuery(req *http.Request) (entities.Query, error) {
	query := entities.Query{}
	queryJSON, err := readField(req, queryJSONField)
	if err != nil || len(queryJSON) == 0 {
		return query, fmt.Errorf("loadQuery: missing required field: '%s' (application/json)", queryJSONField)
	}
	if err := json.Unmarshal(queryJSON, &query); err != nil {
		return query, fmt.Errorf("loadQuery: %w\nJSON:\n%s", err, queryJSON)
	}
	return query, nil
}

func loadStrings(req *http.Request, field string) ([]string, error) {
	raw, err := readField(req, field)
	if err != nil || len(raw) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("loadStrings: %w\nJSON:\n%s", err, raw)
	}
	return values, nil
}

// ScenesHandler builds the work-list for the posted query and optional tile
// list.
func (c *Catalog) ScenesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := log.With(req.Context(), zap.String("request", uuid.New().String()))

	query, err := loadQuery(req)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	aoiTiles, err := loadStrings(req, tilesJSONField)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	selection, err := c.Select(ctx, query, aoiTiles)
	if err != nil {
		var notFound catalog.ErrSceneNotFound
		if errors.As(err, &notFound) {
			w.WriteHeader(404)
		} else {
			w.WriteHeader(500)
		}
		log.Logger(ctx).Sugar().Errorf("%v", err)
		fmt.Fprintf(w, "%v", err)
		return
	}
	log.Logger(ctx).Sugar().Infof("selected %d scenes over %d tiles", len(selection.Scenes), len(selection.Tiles))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(selection)
}

// CompletenessHandler verifies the posted scenes against the archive and the
// reference catalog.
func (c *Catalog) CompletenessHandler(w http.ResponseWriter, req *http.Request) {
	ctx := log.With(req.Context(), zap.String("request", uuid.New().String()))

	scenesJSON, err := readField(req, scenesJSONField)
	if err != nil || len(scenesJSON) == 0 {
		w.WriteHeader(400)
		fmt.Fprintf(w, "missing required field: '%s' (application/json)", scenesJSONField)
		return
	}
	var scenes []*entities.Scene
	if err := json.Unmarshal(scenesJSON, &scenes); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%s %v", scenesJSON, err)
		return
	}

	result := struct {
		Complete bool     `json:"complete"`
		Missing  []string `json:"missing,omitempty"`
	}{Complete: true}

	if err := c.CheckCompleteness(ctx, scenes); err != nil {
		var completeness *CompletenessError
		if !errors.As(err, &completeness) {
			w.WriteHeader(500)
			log.Logger(ctx).Sugar().Errorf("%v", err)
			fmt.Fprintf(w, "%v", err)
			return
		}
		result.Complete = false
		result.Missing = completeness.Messages
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
