package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/airbusgeo/s1ard-worklist/catalog"
	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog/asf"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog/sqlite"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog/stac"
	"github.com/airbusgeo/s1ard-worklist/interface/grid"
	"github.com/airbusgeo/s1ard-worklist/service/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type config struct {
	Query  string
	Tiles  string
	Scenes string

	StacServer      string
	StacCollections string
	SqliteDB        string
	AsfServer       string
	GridFile        string
	GridIDProperty  string
	Workers         int
	AppPort         string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Query, "query", "", "Json of the archive query (runs once and prints the work-list, instead of serving HTTP)")
	flag.StringVar(&config.Tiles, "tiles", "", "comma-separated grid tile ids constraining the query (optional)")
	flag.StringVar(&config.Scenes, "scenes", "", "Json work-list whose scenes must be checked for completeness (the output of a previous query)")

	flag.StringVar(&config.StacServer, "stac-server", "", "address of the STAC catalog service")
	flag.StringVar(&config.StacCollections, "stac-collections", "", "comma-separated STAC collections to search (optional)")
	flag.StringVar(&config.SqliteDB, "sqlite-db", "", "path of the local scene database (alternative to stac-server)")
	flag.StringVar(&config.AsfServer, "asf-server", "", "address of the reference catalog service used to confirm missing acquisitions (optional)")
	flag.StringVar(&config.GridFile, "grid", "", "GeoJSON file of the tiling grid")
	flag.StringVar(&config.GridIDProperty, "grid-id-property", "", "feature property holding the tile id (default: id)")
	flag.IntVar(&config.Workers, "workers", 4, "number of parallel per-tile searches")
	flag.StringVar(&config.AppPort, "port", "8080", "port of the HTTP server")
	flag.Parse()

	if config.StacServer == "" && config.SqliteDB == "" {
		return nil, fmt.Errorf("missing configuration for the scene archive (stac-server or sqlite-db)")
	}
	if config.StacServer != "" && config.SqliteDB != "" {
		return nil, fmt.Errorf("stac-server and sqlite-db are exclusive")
	}
	if config.GridFile == "" {
		return nil, fmt.Errorf("missing configuration for the tiling grid (grid)")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

var c catalog.Catalog

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	c = catalog.Catalog{Workers: config.Workers}
	{
		// Scene archive
		if config.StacServer != "" {
			var collections []string
			if config.StacCollections != "" {
				collections = strings.Split(config.StacCollections, ",")
			}
			archive, err := stac.Open(ctx, config.StacServer, collections)
			if err != nil {
				return fmt.Errorf("connection to the stac catalog: %w", err)
			}
			c.Archive = archive
		} else {
			archive, err := sqlite.Open(config.SqliteDB)
			if err != nil {
				return fmt.Errorf("open the scene database: %w", err)
			}
			c.Archive = archive
		}
		defer c.Archive.Close()

		// Reference catalog (DefaultURL if unset)
		c.Reference = &asf.Archive{URL: config.AsfServer}

		// Tiling grid
		if c.Grid, err = grid.LoadGeoJSON(config.GridFile, config.GridIDProperty); err != nil {
			return fmt.Errorf("load the tiling grid: %w", err)
		}
	}

	if config.Scenes != "" {
		return checkCompleteness(ctx, config.Scenes)
	}
	if config.Query != "" {
		return buildWorklist(ctx, config.Query, config.Tiles)
	}

	// HTTP Server
	r := mux.NewRouter()
	c.AddHandler(r)
	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(r),
	}

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("worklist.ListenAndServe", zap.Error(err))
		}
	}()

	<-ctx.Done()
	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}

func buildWorklist(ctx context.Context, queryJSONPath, tiles string) error {
	query := entities.Query{}
	if err := loadJSON(queryJSONPath, &query); err != nil {
		return err
	}

	var aoiTiles []string
	if tiles != "" {
		aoiTiles = strings.Split(tiles, ",")
	}

	selection, err := c.Select(ctx, query, aoiTiles)
	if err != nil {
		return err
	}

	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	return e.Encode(selection)
}

func checkCompleteness(ctx context.Context, scenesJSONPath string) error {
	worklist := entities.Selection{}
	if err := loadJSON(scenesJSONPath, &worklist); err != nil {
		return err
	}
	return c.CheckCompletenessPaths(ctx, worklist.Scenes)
}

func loadJSON(path string, v interface{}) error {
	jsonFile, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(jsonFile, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
