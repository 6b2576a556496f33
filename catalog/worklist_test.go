package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/gorilla/mux"

	"github.com/airbusgeo/s1ard-worklist/catalog"
	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
)

var _ = Describe("Worklist", func() {
	var scenes []*entities.Scene
	query := entities.Query{
		Sensors:          []string{"S1A"},
		Products:         []string{"GRD"},
		AcquisitionModes: []string{"IW"},
		MinDate:          mustParse("20210101T000000"),
		MaxDate:          mustParse("20210102T000000"),
	}

	BeforeEach(func() {
		scenes = dataTake()
		Expect(archive.IngestScenes(ctx, scenes)).To(Succeed())
		ref.names = []string{scenes[0].SourceID, scenes[1].SourceID, scenes[2].SourceID}
	})

	Describe("selecting scenes", func() {
		It("returns the full data take over its two tiles", func() {
			selection, err := c.Select(ctx, query, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(selection.Scenes).To(Equal([]string{
				scenes[0].Path, scenes[1].Path, scenes[2].Path,
			}))
			Expect(selection.Tiles).To(Equal([]string{"X01_Y01", "X02_Y01"}))
		})

		It("is idempotent", func() {
			first, err := c.Select(ctx, query, nil)
			Expect(err).NotTo(HaveOccurred())
			second, err := c.Select(ctx, query, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("keeps an explicit tile list unchanged", func() {
			selection, err := c.Select(ctx, query, []string{"X02_Y01"})
			Expect(err).NotTo(HaveOccurred())
			Expect(selection.Tiles).To(Equal([]string{"X02_Y01"}))
			Expect(selection.Scenes).To(Equal([]string{scenes[1].Path, scenes[2].Path}))
		})

		It("does not shrink the result when the window is widened under relaxed matching", func() {
			narrow := query
			narrow.DateRelaxed = true
			narrowSelection, err := c.Select(ctx, narrow, []string{"X01_Y01", "X02_Y01"})
			Expect(err).NotTo(HaveOccurred())

			wide := narrow
			wide.MinDate = wide.MinDate.Add(-time.Hour)
			wide.MaxDate = wide.MaxDate.Add(time.Hour)
			wideSelection, err := c.Select(ctx, wide, []string{"X01_Y01", "X02_Y01"})
			Expect(err).NotTo(HaveOccurred())
			for _, scene := range narrowSelection.Scenes {
				Expect(wideSelection.Scenes).To(ContainElement(scene))
			}
		})
	})

	Describe("checking completeness", func() {
		It("passes for a complete group", func() {
			Expect(c.CheckCompleteness(ctx, scenes[1:2])).To(Succeed())
		})

		It("reports a reference-confirmed missing predecessor", func() {
			selected, err := archive.SelectScenes(ctx, entities.Query{Datatake: 0x04354A})
			Expect(err).NotTo(HaveOccurred())
			Expect(selected).To(HaveLen(3))

			// drop the predecessor from the local archive only
			Expect(archive.Delete(ctx, scenes[0].SourceID)).To(Succeed())
			err = c.CheckCompleteness(ctx, scenes[1:2])
			Expect(err).To(BeAssignableToTypeOf(&catalog.CompletenessError{}))
			Expect(err.Error()).To(ContainSubstring("predecessor acquisition for scene " + scenes[1].SourceID + ".SAFE"))
		})
	})

	Describe("the http handler", func() {
		var server *httptest.Server

		BeforeEach(func() {
			router := mux.NewRouter()
			c.AddHandler(router)
			server = httptest.NewServer(router)
		})

		AfterEach(func() {
			server.Close()
		})

		It("builds the work-list from a posted query", func() {
			queryJSON, err := json.Marshal(query)
			Expect(err).NotTo(HaveOccurred())

			resp, err := http.PostForm(server.URL+"/worklist/scenes", url.Values{"query": {string(queryJSON)}})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))

			var selection entities.Selection
			Expect(json.NewDecoder(resp.Body).Decode(&selection)).To(Succeed())
			Expect(selection.Scenes).To(HaveLen(3))
			Expect(selection.Tiles).To(Equal([]string{"X01_Y01", "X02_Y01"}))
		})

		It("rejects a request without query", func() {
			resp, err := http.PostForm(server.URL+"/worklist/scenes", url.Values{})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("verifies posted scenes", func() {
			scenesJSON, err := json.Marshal(scenes[1:2])
			Expect(err).NotTo(HaveOccurred())

			resp, err := http.PostForm(server.URL+"/worklist/completeness", url.Values{"scenes": {string(scenesJSON)}})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))

			result := struct {
				Complete bool     `json:"complete"`
				Missing  []string `json:"missing"`
			}{}
			Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
			Expect(result.Complete).To(BeTrue())
			Expect(result.Missing).To(BeEmpty())
		})
	})
})
