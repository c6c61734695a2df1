package specification

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/gewnthar/registers/config"
	"github.com/gewnthar/registers/models"
)

const treeMarkdown = `---
dataset: tree
name: Tree
entity-minimum: 100
entity-maximum: "105"
fields:
- field: reference
- field: name
- field: end-date
---

A tree protected by a preservation order.
`

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		server *ghttp.Server
		client *Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		client = NewClient(config.SpecificationConfig{BaseURL: server.URL() + "/", Timeout: 5 * time.Second})
	})

	AfterEach(func() {
		server.Close()
	})

	It("reads the dataset and its field definitions", func() {
		server.RouteToHandler(http.MethodGet, "/specification/main/content/dataset/tree.md",
			ghttp.RespondWith(http.StatusOK, treeMarkdown))
		server.RouteToHandler(http.MethodGet, "/specification/main/content/field/reference.md",
			ghttp.RespondWith(http.StatusOK, "---\nfield: reference\nname: Reference\ndatatype: string\n---\n"))
		server.RouteToHandler(http.MethodGet, "/specification/main/content/field/name.md",
			ghttp.RespondWith(http.StatusOK, "---\nfield: name\nname: Name\ndatatype: string\ndescription: The tree name\n---\n"))
		server.RouteToHandler(http.MethodGet, "/specification/main/content/field/end-date.md",
			ghttp.RespondWith(http.StatusNotFound, ""))

		ds, err := client.Dataset(ctx, "tree")
		Expect(err).ToNot(HaveOccurred())
		Expect(ds.ID).To(Equal("tree"))
		Expect(ds.Name).To(Equal("Tree"))
		Expect(ds.EntityMinimum).To(BeEquivalentTo(100))
		Expect(ds.EntityMaximum).To(BeEquivalentTo(105))
		Expect(ds.EndDate).To(BeNil())
		Expect(ds.Fields).To(ConsistOf(
			models.Field{Field: "reference", Name: "Reference", Datatype: "string"},
			models.Field{Field: "name", Name: "Name", Datatype: "string", Description: "The tree name"},
			models.Field{Field: "end-date", Name: "end-date", Datatype: "string"},
		))
	})

	It("fails when the dataset is unknown", func() {
		server.RouteToHandler(http.MethodGet, "/specification/main/content/dataset/missing.md",
			ghttp.RespondWith(http.StatusNotFound, ""))

		_, err := client.Dataset(ctx, "missing")
		Expect(err).To(MatchError(ContainSubstring("404")))
	})

	It("fails on markdown without frontmatter", func() {
		server.RouteToHandler(http.MethodGet, "/specification/main/content/dataset/tree.md",
			ghttp.RespondWith(http.StatusOK, "# Tree\n"))

		_, err := client.Dataset(ctx, "tree")
		Expect(err).To(MatchError(errNoFrontmatter))
	})
})

var _ = Describe("Frontmatter", func() {
	It("returns the block between the markers", func() {
		front, err := Frontmatter([]byte("---\r\nname: Tree\r\n---\r\nbody\r\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(front)).To(Equal("name: Tree\n"))
	})

	It("needs a closing marker", func() {
		_, err := Frontmatter([]byte("---\nname: Tree\n"))
		Expect(err).To(MatchError(errNoFrontmatter))
	})
})
