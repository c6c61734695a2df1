package github

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	gh "github.com/google/go-github/v66/github"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/gewnthar/registers/config"
)

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		server *ghttp.Server
		client *Client
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		server = ghttp.NewServer()
		client, err = NewClient(ctx, config.GitHubConfig{
			Token:  "my-token",
			Repo:   "digital-land/registers",
			Branch: "main",
			APIURL: server.URL(),
		})
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("rejects a repo without an owner", func() {
		_, err := NewClient(ctx, config.GitHubConfig{Repo: "registers"})
		Expect(err).To(MatchError(ContainSubstring("owner/name")))
	})

	Describe("GetFile", func() {
		It("decodes wrapped base64 content and sends the token", func() {
			encoded := base64.StdEncoding.EncodeToString([]byte("entity,name\n1,Oak\n"))
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/repos/digital-land/registers/contents/data/tree.csv", "ref=main"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer my-token"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{
					"path":     "data/tree.csv",
					"sha":      "abc123",
					"encoding": "base64",
					"content":  encoded[:8] + "\n" + encoded[8:],
				}),
			))

			file, err := client.GetFile(ctx, "data/tree.csv")
			Expect(err).ToNot(HaveOccurred())
			Expect(file.SHA).To(Equal("abc123"))
			Expect(string(file.Content)).To(Equal("entity,name\n1,Oak\n"))
		})

		It("returns nil for a missing file", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"message":"Not Found"}`))

			file, err := client.GetFile(ctx, "data/tree.csv")
			Expect(err).ToNot(HaveOccurred())
			Expect(file).To(BeNil())
		})

		It("fails on a directory path", func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, []map[string]string{
				{"type": "file", "path": "data/tree.csv"},
			}))

			_, err := client.GetFile(ctx, "data")
			Expect(err).To(MatchError(ContainSubstring("directory")))
		})

		It("fails on other status codes", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, ""))

			_, err := client.GetFile(ctx, "data/tree.csv")
			Expect(err).To(MatchError(ContainSubstring("500")))
		})
	})

	Describe("PutFile", func() {
		It("sends the content, sha and branch", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPut, "/repos/digital-land/registers/contents/data/tree.csv"),
				ghttp.VerifyJSONRepresenting(map[string]string{
					"message": "Updated tree register",
					"content": base64.StdEncoding.EncodeToString([]byte("entity\n1\n")),
					"sha":     "abc123",
					"branch":  "main",
				}),
				ghttp.RespondWith(http.StatusOK, `{}`),
			))

			err := client.PutFile(ctx, "data/tree.csv", []byte("entity\n1\n"), "abc123", "Updated tree register")
			Expect(err).ToNot(HaveOccurred())
		})

		It("omits the sha when creating", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyJSONRepresenting(map[string]string{
					"message": "Updated tree register",
					"content": base64.StdEncoding.EncodeToString([]byte("entity\n")),
					"branch":  "main",
				}),
				ghttp.RespondWith(http.StatusCreated, `{}`),
			))

			Expect(client.PutFile(ctx, "data/tree.csv", []byte("entity\n"), "", "Updated tree register")).To(Succeed())
		})

		It("reports a rejected write", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusConflict, `{"message":"sha does not match"}`))

			err := client.PutFile(ctx, "data/tree.csv", []byte("x"), "stale", "msg")
			Expect(err).To(MatchError(ContainSubstring("sha does not match")))
			var apiErr *gh.ErrorResponse
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Response.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("BlobSHA", func() {
		It("matches git hash-object", func() {
			Expect(BlobSHA([]byte{})).To(Equal("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"))
			Expect(BlobSHA([]byte("hello\n"))).To(Equal("ce013625030ba8dba906f756967f9e9ca394464a"))
		})
	})
})
