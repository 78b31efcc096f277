package sheet

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kmckee/sheetscribe/internal/csvstore"
	"github.com/kmckee/sheetscribe/internal/table"
	"github.com/kmckee/sheetscribe/internal/vision"
)

// multipartBody builds an extract request body with a file part and the
// given form fields.
func multipartBody(fields map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "sheet.png")
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write([]byte("fake image bytes"))
	Expect(err).NotTo(HaveOccurred())
	for k, v := range fields {
		Expect(writer.WriteField(k, v)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		client   *mockClient
		history  *mockHistory
		csvPath  string
		server   *Server
		auth     BasicAuth
		recorder *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		client = &mockClient{
			avail: vision.Availability{
				Status: vision.StatusOnline,
				Models: []vision.ModelInfo{{Name: "llava:latest"}},
			},
		}
		history = &mockHistory{}
		csvPath = filepath.Join(GinkgoT().TempDir(), "results.csv")
		auth = BasicAuth{}
		recorder = httptest.NewRecorder()
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(
			client,
			csvstore.New(),
			history,
			csvPath,
			DefaultThreshold,
			&mockIDGenerator{id: "record-1"},
			&mockTimeSource{now: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)},
		)
		server = NewServer(service, auth)
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			req := httptest.NewRequest("GET", "/api/status", nil)
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts requests with the configured credentials", func() {
			req := httptest.NewRequest("GET", "/api/status", nil)
			req.SetBasicAuth("user", "secret")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("rejects wrong credentials", func() {
			req := httptest.NewRequest("GET", "/api/status", nil)
			req.SetBasicAuth("user", "wrong")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("GET /api/status", func() {
		It("returns the probe result", func() {
			req := httptest.NewRequest("GET", "/api/status", nil)
			server.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var avail vision.Availability
			Expect(json.Unmarshal(recorder.Body.Bytes(), &avail)).To(Succeed())
			Expect(avail.Status).To(Equal(vision.StatusOnline))
		})
	})

	Describe("GET /api/models", func() {
		It("lists models with a count", func() {
			req := httptest.NewRequest("GET", "/api/models", nil)
			server.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var body struct {
				Status string             `json:"status"`
				Models []vision.ModelInfo `json:"models"`
				Count  int                `json:"count"`
			}
			Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Count).To(Equal(1))
			Expect(body.Models[0].Name).To(Equal("llava:latest"))
		})

		When("the endpoint is offline", func() {
			BeforeEach(func() {
				client.avail = vision.Availability{Status: vision.StatusOffline}
			})

			It("still responds 200 with an empty list", func() {
				req := httptest.NewRequest("GET", "/api/models", nil)
				server.ServeHTTP(recorder, req)

				Expect(recorder.Code).To(Equal(http.StatusOK))
				Expect(recorder.Body.String()).To(ContainSubstring(`"models":[]`))
			})
		})
	})

	Describe("POST /api/extract", func() {
		When("the model returns a clean table", func() {
			BeforeEach(func() {
				client.raw = `{"headers":["Name","Age"],"rows":[["Alice","30"]],"confidence":[[0.95,0.4]]}`
			})

			It("returns the annotated preview", func() {
				body, contentType := multipartBody(nil)
				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)

				Expect(recorder.Code).To(Equal(http.StatusOK))
				var preview table.Table
				Expect(json.Unmarshal(recorder.Body.Bytes(), &preview)).To(Succeed())
				Expect(preview.Headers).To(Equal([]string{"Name", "Age"}))
				Expect(preview.Rows[0][1].LowConfidence).To(BeTrue())
			})

			It("forwards form fields into the extraction request", func() {
				body, contentType := multipartBody(map[string]string{
					"columns":      "Name,Age",
					"instructions": "ages are integers",
					"model":        "llava:latest",
					"threshold":    "0.9",
				})
				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)

				Expect(recorder.Code).To(Equal(http.StatusOK))
				Expect(client.lastReq.Headers).To(Equal([]string{"Name", "Age"}))
				Expect(client.lastReq.Instructions).To(Equal("ages are integers"))
				Expect(client.lastReq.Model).To(Equal("llava:latest"))
			})
		})

		When("the caller posts a zero threshold", func() {
			BeforeEach(func() {
				client.raw = `{"headers":["Name","Age"],"rows":[["Alice","30"]],"confidence":[[0.95,0.4]]}`
			})

			It("flags nothing", func() {
				body, contentType := multipartBody(map[string]string{"threshold": "0"})
				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)

				Expect(recorder.Code).To(Equal(http.StatusOK))
				var preview table.Table
				Expect(json.Unmarshal(recorder.Body.Bytes(), &preview)).To(Succeed())
				Expect(preview.Rows[0][1].LowConfidence).To(BeFalse())
			})
		})

		When("no file part is present", func() {
			It("responds 400", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("columns", "a,b")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", writer.FormDataContentType())
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("the upload exceeds the size cap", func() {
			It("rejects it with a size message", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				part, err := writer.CreateFormFile("file", "huge.png")
				Expect(err).NotTo(HaveOccurred())
				_, err = part.Write(bytes.Repeat([]byte("x"), int(maxUploadSize)+1))
				Expect(err).NotTo(HaveOccurred())
				Expect(writer.Close()).To(Succeed())

				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", writer.FormDataContentType())
				server.ServeHTTP(recorder, req)

				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
				Expect(recorder.Body.String()).To(ContainSubstring("too large"))
			})
		})

		When("the threshold is not a number in [0,1]", func() {
			It("responds 400", func() {
				body, contentType := multipartBody(map[string]string{"threshold": "1.5"})
				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("the model output is unusable", func() {
			BeforeEach(func() {
				client.raw = "no table here"
			})

			It("responds 422 with the error", func() {
				body, contentType := multipartBody(nil)
				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)

				Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
				Expect(recorder.Body.String()).To(ContainSubstring("error"))
			})
		})

		When("the endpoint is unreachable", func() {
			BeforeEach(func() {
				client.err = vision.ErrUnreachable
			})

			It("responds 502", func() {
				body, contentType := multipartBody(nil)
				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusBadGateway))
			})
		})

		When("the inference call times out", func() {
			BeforeEach(func() {
				client.err = vision.ErrTimeout
			})

			It("responds 504", func() {
				body, contentType := multipartBody(nil)
				req := httptest.NewRequest("POST", "/api/extract", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusGatewayTimeout))
			})
		})
	})

	Describe("POST /api/save and GET /api/export", func() {
		saveBody := func() *bytes.Buffer {
			t := table.Table{
				Headers: []string{"Name", "Age"},
				Rows: []table.Row{
					{{Value: "Alice", Confidence: 1}, {Value: "30", Confidence: 1}},
				},
			}
			data, err := json.Marshal(t)
			Expect(err).NotTo(HaveOccurred())
			return bytes.NewBuffer(data)
		}

		It("saves reviewed rows and reports the count", func() {
			req := httptest.NewRequest("POST", "/api/save", saveBody())
			req.Header.Set("Content-Type", "application/json")
			server.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusCreated))
			Expect(recorder.Body.String()).To(ContainSubstring(`"rows_written":1`))
		})

		It("exports the accumulated CSV as an attachment", func() {
			req := httptest.NewRequest("POST", "/api/save", saveBody())
			req.Header.Set("Content-Type", "application/json")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusCreated))

			exportRec := httptest.NewRecorder()
			server.ServeHTTP(exportRec, httptest.NewRequest("GET", "/api/export", nil))

			Expect(exportRec.Code).To(Equal(http.StatusOK))
			Expect(exportRec.Header().Get("Content-Type")).To(ContainSubstring("text/csv"))
			Expect(exportRec.Header().Get("Content-Disposition")).To(ContainSubstring("results.csv"))
			Expect(exportRec.Body.String()).To(Equal("Name,Age\nAlice,30\n"))
		})

		It("responds 404 for export before any save", func() {
			server.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/export", nil))
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})

		It("responds 400 for an empty save", func() {
			req := httptest.NewRequest("POST", "/api/save", bytes.NewBufferString(`{"headers":[],"rows":[]}`))
			req.Header.Set("Content-Type", "application/json")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("responds 400 for a malformed body", func() {
			req := httptest.NewRequest("POST", "/api/save", bytes.NewBufferString("not json"))
			req.Header.Set("Content-Type", "application/json")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/history", func() {
		BeforeEach(func() {
			history.records = []*ExtractionRecord{
				{ID: "1", Kind: KindExtract, Rows: 3, Columns: 2},
			}
		})

		It("returns the recorded entries", func() {
			server.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/history", nil))

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var records []*ExtractionRecord
			Expect(json.Unmarshal(recorder.Body.Bytes(), &records)).To(Succeed())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Kind).To(Equal(KindExtract))
		})
	})

	Describe("GET /", func() {
		It("serves the embedded interface", func() {
			server.ServeHTTP(recorder, httptest.NewRequest("GET", "/", nil))

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Header().Get("Content-Type")).To(ContainSubstring("text/html"))
			Expect(recorder.Body.String()).To(ContainSubstring("Sheetscribe"))
		})
	})
})
