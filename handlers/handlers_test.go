package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/oauth2"

	"github.com/gewnthar/registers/config"
	"github.com/gewnthar/registers/handlers"
	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/services"
)

const fullHeader = "entity,name,prefix,reference,organisation,entry-date,start-date,end-date\n"

func oak() map[string]string {
	return map[string]string{
		"reference":    "T1",
		"name":         "Oak",
		"organisation": "local-authority:ABC",
		"start-date":   "2020-01-01",
	}
}

var _ = Describe("Register pages", func() {
	var (
		ctx     context.Context
		svc     *services.Service
		browser *browser
	)

	BeforeEach(func() {
		ctx = context.Background()
		var router http.Handler
		svc, _, router = newApp(nil)
		browser = newBrowser(router)
	})

	addOak := func() *models.Record {
		record, err := svc.AddRecord(ctx, "tree", oak())
		Expect(err).NotTo(HaveOccurred())
		return record
	}

	follow := func(resp *http.Response) *http.Response {
		Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))
		return browser.get(resp.Header.Get("Location"))
	}

	It("redirects the root to the dataset list", func() {
		resp := browser.get("/")
		Expect(resp.StatusCode).To(Equal(http.StatusFound))
		Expect(resp.Header.Get("Location")).To(Equal("/dataset"))
	})

	It("lists datasets", func() {
		doc := page(browser.get("/dataset"))
		Expect(doc.Find(`a[href="/dataset/tree"]`).Length()).To(Equal(1))
	})

	It("reports unknown datasets and records as not found", func() {
		resp := browser.get("/dataset/nope")
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(page(resp).Find("h1").Text()).To(Equal("Not Found"))

		resp = browser.get("/dataset/tree/record/not-a-uuid")
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("reports the database as healthy", func() {
		resp := browser.get("/api/health")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body(resp)).To(ContainSubstring(`"status":"ok"`))
	})

	Describe("adding a record", func() {
		It("saves the record and flashes its curie", func() {
			resp := browser.post("/dataset/tree/add", url.Values{
				"name":            {"Oak"},
				"reference":       {"T1"},
				"start-date-year": {"2020"},
			})
			Expect(resp.Header.Get("Location")).To(HavePrefix("/dataset/tree/record/"))

			doc := page(follow(resp))
			Expect(doc.Find(".flash").Text()).To(Equal("Added tree:T1"))
			Expect(doc.Find(`dd[data-field="entity"]`).Text()).To(Equal("100"))
			Expect(doc.Find(`dd[data-field="start-date"]`).Text()).To(Equal("2020-01-01"))

			// Flashes are shown once.
			again := page(browser.get(resp.Header.Get("Location")))
			Expect(again.Find(".flash").Length()).To(Equal(0))
		})

		It("shows validation errors on the form", func() {
			resp := browser.post("/dataset/tree/add", url.Values{
				"name":         {"Oak"},
				"organisation": {"no-colon"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			doc := page(resp)
			Expect(doc.Find(`[data-field="reference"] .error-message`).Text()).To(Equal("This field is required."))
			Expect(doc.Find(`[data-field="organisation"] .error-message`).Text()).To(ContainSubstring("curie"))

			records, err := svc.Store().CountRecords(ctx, "tree")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeZero())
		})
	})

	It("exports records as JSON and CSV", func() {
		addOak()

		resp := browser.get("/dataset/tree.json")
		Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
		var got struct {
			Dataset string              `json:"dataset"`
			Records []map[string]string `json:"records"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
		Expect(got.Dataset).To(Equal("tree"))
		Expect(got.Records).To(HaveLen(1))
		Expect(got.Records[0]).To(HaveKeyWithValue("reference", "T1"))

		resp = browser.get("/dataset/tree.csv")
		Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("tree.csv"))
		Expect(body(resp)).To(HavePrefix(fullHeader + "100,Oak,tree,T1,local-authority:ABC,"))
	})

	It("lists the schema in display order", func() {
		doc := page(browser.get("/dataset/tree/schema"))
		var fields []string
		doc.Find("#fields tbody tr td:first-child").Each(func(_ int, s *goquery.Selection) {
			fields = append(fields, s.Text())
		})
		Expect(fields).To(Equal([]string{"entity", "name", "prefix", "reference", "organisation", "entry-date", "start-date", "end-date"}))
	})

	Describe("editing a record", func() {
		It("prefills the form and saves changes with notes", func() {
			record := addOak()
			path := "/dataset/tree/record/" + record.ID.String() + "/edit"

			doc := page(browser.get(path))
			Expect(doc.Find(`input[name="name"]`).AttrOr("value", "")).To(Equal("Oak"))
			Expect(doc.Find(`input[name="reference"]`).Is("[readonly]")).To(BeTrue())
			Expect(doc.Find(`input[name="version"]`).AttrOr("value", "")).To(Equal("1"))

			resp := browser.post(path, url.Values{
				"version":    {"1"},
				"name":       {"Oak tree"},
				"reference":  {"ignored"},
				"edit_notes": {"renamed"},
			})
			doc = page(follow(resp))
			Expect(doc.Find(`dd[data-field="name"]`).Text()).To(Equal("Oak tree"))
			Expect(doc.Find(`dd[data-field="reference"]`).Text()).To(Equal("T1"))

			history := page(browser.get("/dataset/tree/record/" + record.ID.String() + "/history"))
			Expect(history.Find(".change .notes").First().Text()).To(Equal("Updated tree:T1. renamed"))
		})

		It("requires edit notes", func() {
			record := addOak()
			resp := browser.post("/dataset/tree/record/"+record.ID.String()+"/edit", url.Values{
				"version": {"1"},
				"name":    {"Oak tree"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(page(resp).Find(`[data-field="edit_notes"] .error-message`).Length()).To(Equal(1))
		})

		It("rejects a stale version", func() {
			record := addOak()
			_, err := svc.EditRecord(ctx, "tree", record.ID, 0, map[string]string{"name": "Ash", "edit_notes": "first"})
			Expect(err).NotTo(HaveOccurred())

			resp := browser.post("/dataset/tree/record/"+record.ID.String()+"/edit", url.Values{
				"version":    {strconv.Itoa(record.Version)},
				"name":       {"Oak tree"},
				"edit_notes": {"second"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("treats a version that is not a number as a conflict", func() {
			record := addOak()
			resp := browser.post("/dataset/tree/record/"+record.ID.String()+"/edit", url.Values{
				"version":    {"one"},
				"name":       {"Oak tree"},
				"edit_notes": {"renamed"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	It("archives and unarchives a record", func() {
		record := addOak()
		base := "/dataset/tree/record/" + record.ID.String()

		doc := page(follow(browser.post(base+"/archive", url.Values{"end-date": {"2024-05-01"}})))
		Expect(doc.Find("p.ended").Text()).To(ContainSubstring("2024-05-01"))

		Expect(browser.get(base + "/edit").StatusCode).To(Equal(http.StatusBadRequest))

		doc = page(follow(browser.post(base+"/unarchive", url.Values{"edit_notes": {"ended by mistake"}})))
		Expect(doc.Find("p.ended").Length()).To(Equal(0))
		Expect(doc.Find(".flash").Text()).To(Equal("tree:T1 unarchived"))

		resp := browser.post(base+"/unarchive", url.Values{"edit_notes": {"again"}})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	Describe("uploading a CSV", func() {
		It("imports rows and reports each one", func() {
			resp := browser.upload("/dataset/tree/upload", "trees.csv", "reference,name\nT1,Oak\nT2,Ash\n")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			doc := page(resp)
			Expect(doc.Find("#report tr.ok").Length()).To(Equal(2))
			Expect(doc.Find(".flash").Text()).To(Equal("Imported 2 record(s)."))
		})

		It("warns when the entity range runs out", func() {
			var rows strings.Builder
			rows.WriteString("reference,name\n")
			for i := 1; i <= 7; i++ {
				rows.WriteString("T" + strconv.Itoa(i) + ",Tree\n")
			}
			doc := page(browser.upload("/dataset/tree/upload", "trees.csv", rows.String()))
			Expect(doc.Find("#report tr.failed").Length()).To(Equal(1))
			Expect(doc.Find(".flash").Last().Text()).To(ContainSubstring("entity range"))
		})

		It("rejects columns the dataset does not have", func() {
			resp := browser.upload("/dataset/tree/upload", "trees.csv", "reference,colour\nT1,red\n")
			Expect(resp.Header.Get("Location")).To(Equal("/dataset/tree/upload"))
			doc := page(follow(resp))
			Expect(doc.Find(".flash").Text()).To(ContainSubstring("colour"))
		})
	})

	Describe("processing updates", func() {
		var processPath string

		BeforeEach(func() {
			addOak()
			resp := browser.upload("/dataset/tree/update", "changes.csv",
				fullHeader+"100,Oak tree,tree,T1,local-authority:ABC,2024-06-01,2020-01-01,\n")
			Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))
			processPath = resp.Header.Get("Location")
			Expect(processPath).To(HavePrefix("/dataset/tree/process-updates/"))
		})

		It("previews and applies the selected rows", func() {
			doc := page(browser.get(processPath))
			Expect(doc.Find("#update-rows tr.updated").Length()).To(Equal(1))
			id, ok := doc.Find(`input[name="record_id"]`).Attr("value")
			Expect(ok).To(BeTrue())

			doc = page(follow(browser.post(processPath, url.Values{"record_id": {id}})))
			Expect(doc.Find(".flash").Text()).To(Equal("Applied 1 change(s)."))
			Expect(doc.Find("#records").Text()).To(ContainSubstring("Oak tree"))
			Expect(doc.Find("#pending-updates").Length()).To(Equal(0))
		})

		It("rejects a malformed record id", func() {
			resp := browser.post(processPath, url.Values{"record_id": {"not-a-uuid"}})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(page(resp).Find("p.message").Text()).To(ContainSubstring("not-a-uuid"))
		})

		It("lists the pending update on the dataset page until cancelled", func() {
			doc := page(browser.get("/dataset/tree"))
			Expect(doc.Find(`#pending-updates a[href="` + processPath + `"]`).Length()).To(Equal(1))

			follow(browser.post(processPath+"/cancel", nil))
			Expect(browser.get(processPath).StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})

var _ = Describe("Request logging", func() {
	It("tags handler logs with the request they belong to", func() {
		var buf bytes.Buffer
		previous := slog.Default()
		slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
		DeferCleanup(func() { slog.SetDefault(previous) })

		svc, _, router := newApp(nil)
		record, err := svc.AddRecord(context.Background(), "tree", oak())
		Expect(err).NotTo(HaveOccurred())
		path := "/dataset/tree/record/" + record.ID.String() + "/edit"
		resp := newBrowser(router).post(path, url.Values{
			"version":    {"1"},
			"name":       {"Oak tree"},
			"edit_notes": {"renamed"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))

		entries := map[string]map[string]any{}
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			var entry map[string]any
			Expect(json.Unmarshal([]byte(line), &entry)).To(Succeed())
			entries[entry["msg"].(string)] = entry
		}
		changed, request := entries["Handler: record changed"], entries["Handler: request"]
		Expect(changed).NotTo(BeNil())
		Expect(request).NotTo(BeNil())
		Expect(changed["request"]).NotTo(BeEmpty())
		Expect(changed["request"]).To(Equal(request["request"]))
		Expect(changed["path"]).To(Equal(path))
		Expect(request["status"]).To(BeEquivalentTo(http.StatusSeeOther))
	})
})

var _ = Describe("Sign in", func() {
	var (
		server  *ghttp.Server
		browser *browser
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		DeferCleanup(server.Close)

		_, _, router := newApp(func() *handlers.Auth {
			return handlers.NewAuth(config.AuthConfig{
				Enabled:      true,
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/auth/callback",
				AllowedUsers: []string{"octocat"},
			}, config.GitHubConfig{APIURL: server.URL()}).WithEndpoint(oauth2.Endpoint{
				AuthURL:  server.URL() + "/login/oauth/authorize",
				TokenURL: server.URL() + "/login/oauth/access_token",
			}, server.URL()+"/user")
		})
		browser = newBrowser(router)

		server.RouteToHandler("POST", "/login/oauth/access_token", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{
			"access_token": "token",
			"token_type":   "bearer",
		}))
	})

	signIn := func(next string) *http.Response {
		resp := browser.get("/auth/login?next=" + url.QueryEscape(next))
		Expect(resp.StatusCode).To(Equal(http.StatusFound))
		location, err := url.Parse(resp.Header.Get("Location"))
		Expect(err).NotTo(HaveOccurred())
		Expect(location.Query().Get("client_id")).To(Equal("client"))
		state := location.Query().Get("state")
		Expect(state).NotTo(BeEmpty())
		return browser.get("/auth/callback?code=abc&state=" + state)
	}

	It("lets anyone read but sends editors to sign in", func() {
		Expect(browser.get("/dataset/tree").StatusCode).To(Equal(http.StatusOK))

		resp := browser.get("/dataset/tree/add")
		Expect(resp.StatusCode).To(Equal(http.StatusFound))
		Expect(resp.Header.Get("Location")).To(Equal("/auth/login?next=%2Fdataset%2Ftree%2Fadd"))
	})

	It("signs in an allowed user and returns to the page they wanted", func() {
		server.RouteToHandler("GET", "/user", ghttp.CombineHandlers(
			ghttp.VerifyHeaderKV("Authorization", "Bearer token"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{"login": "octocat"}),
		))

		resp := signIn("/dataset/tree/add")
		Expect(resp.StatusCode).To(Equal(http.StatusFound))
		Expect(resp.Header.Get("Location")).To(Equal("/dataset/tree/add"))

		resp = browser.get("/dataset/tree/add")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(page(resp).Find(".user").Text()).To(Equal("octocat"))

		browser.get("/auth/logout")
		Expect(browser.get("/dataset/tree/add").StatusCode).To(Equal(http.StatusFound))
	})

	It("refuses users who are not allowed", func() {
		server.RouteToHandler("GET", "/user", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{"login": "mallory"}))

		Expect(signIn("/dataset/tree/add").StatusCode).To(Equal(http.StatusForbidden))
		Expect(browser.get("/dataset/tree/add").StatusCode).To(Equal(http.StatusFound))
	})

	It("rejects a callback with the wrong state", func() {
		browser.get("/auth/login")
		Expect(browser.get("/auth/callback?code=abc&state=forged").StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("keeps redirects on this site", func() {
		server.RouteToHandler("GET", "/user", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{"login": "octocat"}))
		Expect(signIn("//evil.example").Header.Get("Location")).To(Equal("/dataset"))
	})
})
