package invoice

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-index/internal/export"
	"github.com/zombor/invoice-index/internal/extraction"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		loader      *mockLoader
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		loader = &mockLoader{}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, &mockProcessor{}, loader, storage,
			&mockIDGenerator{id: "run-1"}, &mockTimeSource{now: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	postJSON := func(path, body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	readBody := func(resp *http.Response) []byte {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return body
	}

	Describe("handleExtract", func() {
		When("text is posted as JSON", func() {
			It("should return the record", func() {
				resp := postJSON("/api/extract", `{"source":"mail.txt","text":"INV-7"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var ex Extraction
				Expect(json.Unmarshal(readBody(resp), &ex)).To(Succeed())
				Expect(ex.Record.Source).To(Equal("mail.txt"))
				Expect(ex.Record.InvoiceNumber).To(Equal("INV-7"))
				Expect(ex.Key).To(Equal(RecordKey("mock", "INV-7")))
			})
		})

		When("the JSON body is invalid", func() {
			It("should return Bad Request", func() {
				resp := postJSON("/api/extract", `{"text":`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(readBody(resp))).To(ContainSubstring("Invalid request body"))
			})
		})

		Context("with a multipart upload", func() {
			var (
				body        *bytes.Buffer
				contentType string
			)

			BeforeEach(func() {
				body = &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				part, err := writer.CreateFormFile("file", "june.pdf")
				Expect(err).NotTo(HaveOccurred())
				_, err = part.Write([]byte("INV-9"))
				Expect(err).NotTo(HaveOccurred())
				Expect(writer.Close()).To(Succeed())
				contentType = writer.FormDataContentType()
			})

			It("should archive the file and return the record", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var ex Extraction
				Expect(json.Unmarshal(readBody(resp), &ex)).To(Succeed())
				Expect(ex.File).To(Equal("run-1_june.pdf"))
				Expect(ex.Record.InvoiceNumber).To(Equal("INV-9"))
				Expect(storage.files).To(HaveKey("run-1_june.pdf"))
			})

			When("the file cannot be loaded", func() {
				BeforeEach(func() {
					loader.err = io.ErrUnexpectedEOF
				})

				It("should return the error as JSON", func() {
					resp, err := http.Post(ghttpServer.URL()+"/api/extract", contentType, body)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

					var payload map[string]string
					Expect(json.Unmarshal(readBody(resp), &payload)).To(Succeed())
					Expect(payload["error"]).To(Equal("unexpected EOF"))
				})
			})
		})

		When("no file is provided", func() {
			It("should return Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("note", "nothing")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/extract", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(readBody(resp))).To(ContainSubstring("No file was selected"))
			})
		})
	})

	Describe("handleCreateRun", func() {
		It("should process the documents and return the run", func() {
			resp := postJSON("/api/runs", `{"documents":[{"source":"a","text":"INV-1"},{"source":"b","text":""}]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var run Run
			Expect(json.Unmarshal(readBody(resp), &run)).To(Succeed())
			Expect(run.ID).To(Equal("run-1"))
			Expect(run.Records).To(HaveLen(2))
			Expect(run.Records[1].Status).To(Equal(extraction.StatusFailed))
			Expect(run.Summary.Failed).To(Equal(1))
		})

		When("there are no documents", func() {
			It("should return Bad Request", func() {
				resp := postJSON("/api/runs", `{"documents":[]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(readBody(resp))).To(ContainSubstring(ErrNoDocuments.Error()))
			})
		})
	})

	Context("with a stored run", func() {
		BeforeEach(func() {
			db.runs["stored"] = &Run{
				ID:         "stored",
				Method:     "mock",
				RecordKeys: []string{"k1"},
				Records: []extraction.InvoiceRecord{
					{Source: "a.pdf", InvoiceNumber: "INV-1", Status: extraction.StatusComplete, MissingFields: []extraction.Field{}},
				},
			}
			db.records["k1"] = &db.runs["stored"].Records[0]
		})

		It("should list runs without records", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/runs")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var runs []map[string]any
			Expect(json.Unmarshal(readBody(resp), &runs)).To(Succeed())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0]).To(HaveKeyWithValue("id", "stored"))
			Expect(runs[0]).NotTo(HaveKey("records"))
		})

		It("should return a run", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/runs/stored")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var run Run
			Expect(json.Unmarshal(readBody(resp), &run)).To(Succeed())
			Expect(run.Records[0].InvoiceNumber).To(Equal("INV-1"))
		})

		It("should return 404 for unknown runs", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/runs/unknown")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("should export CSV by default", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/runs/stored/export")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(export.FormatCSV.ContentType()))
			Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="run-stored.csv"`))

			rows, err := csv.NewReader(bytes.NewReader(readBody(resp))).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[1][3]).To(Equal("INV-1"))
		})

		It("should export XLSX on request", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/runs/stored/export?format=xlsx")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(export.FormatXLSX.ContentType()))
			Expect(string(readBody(resp))).To(HavePrefix("PK"))
		})

		It("should reject unknown export formats", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/runs/stored/export?format=pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("should return stored records by key", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/records/k1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var rec extraction.InvoiceRecord
			Expect(json.Unmarshal(readBody(resp), &rec)).To(Succeed())
			Expect(rec.InvoiceNumber).To(Equal("INV-1"))
		})

		It("should return 404 for unknown records", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/records/nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("handleListRuns", func() {
		When("there are no runs", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/runs")
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(readBody(resp)))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = io.ErrClosedPipe
			})

			It("should return Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/runs")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetUpload", func() {
		It("should serve archived files", func() {
			storage.files["run-1_june.pdf"] = []byte("%PDF-1.4")
			resp, err := http.Get(ghttpServer.URL() + "/api/uploads/run-1_june.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			Expect(string(readBody(resp))).To(Equal("%PDF-1.4"))
		})

		It("should return 404 for unknown uploads", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/uploads/missing.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		get := func(user, pass string) *http.Response {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/runs", nil)
			Expect(err).NotTo(HaveOccurred())
			if user != "" {
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
			}
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should reject requests without credentials", func() {
			resp := get("", "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should reject wrong credentials", func() {
			resp := get("admin", "wrong")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			resp := get("admin", "secret")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should answer preflight requests without credentials", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/runs", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})
})
