package ticket

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/ohta-d/barcode-scan-api/internal/decode"
)

// uploadBody builds a multipart body with the given files under one field
// name, preserving order.
func uploadBody(field string, files ...[]byte) (*bytes.Buffer, string) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	for _, data := range files {
		part, err := writer.CreateFormFile(field, "ticket.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).NotTo(HaveOccurred())
	return &b, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		engine      *stubEngine
		store       *fakeStore
		service     *Service
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		pipeline := NewPipeline([]decode.Engine{engine}, nil, testConfig())
		service = NewServiceWithDeps(pipeline, store, &mockTimeSource{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		engine = newStubEngine(piaValid)
		store = newFakeStore()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleScan", func() {
		When("the upload decodes cleanly", func() {
			It("should return status OK with the result", func() {
				body, contentType := uploadBody("file", testPNG())
				resp, err := http.Post(ghttpServer.URL()+"/scan", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result Result
				Expect(json.NewDecoder(resp.Body).Decode(&result)).NotTo(HaveOccurred())
				Expect(result.Success).To(BeTrue())
				Expect(result.BarcodeData).To(Equal(piaValid))
				Expect(result.Provider).To(Equal("ticket_pia"))
			})
		})

		When("the upload is not an image", func() {
			It("should return status Bad Request with the error branch", func() {
				body, contentType := uploadBody("file", []byte("garbage"))
				resp, err := http.Post(ghttpServer.URL()+"/scan", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var result Result
				Expect(json.NewDecoder(resp.Body).Decode(&result)).NotTo(HaveOccurred())
				Expect(result.Success).To(BeFalse())
				Expect(result.Error.Code).To(Equal(CodeInvalidImage))
			})
		})

		When("no barcode is found", func() {
			BeforeEach(func() {
				engine = newStubEngine("")
				setupServer()
			})

			It("should return status Not Found", func() {
				body, contentType := uploadBody("file", testPNG())
				resp, err := http.Post(ghttpServer.URL()+"/scan", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				body, contentType := uploadBody("file")
				resp, err := http.Post(ghttpServer.URL()+"/scan", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("invalid multipart form", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/scan", "multipart/form-data", bytes.NewBufferString("invalid"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleScanBatch", func() {
		When("the batch mixes good and corrupt uploads", func() {
			It("should return all results in upload order", func() {
				body, contentType := uploadBody("files", testPNG(), []byte("corrupt"))
				resp, err := http.Post(ghttpServer.URL()+"/scan/batch", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var results []Result
				Expect(json.NewDecoder(resp.Body).Decode(&results)).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(2))
				Expect(results[0].Success).To(BeTrue())
				Expect(results[1].Success).To(BeFalse())
				Expect(results[1].Error.Code).To(Equal(CodeInvalidImage))
			})
		})

		When("no files are provided", func() {
			It("should return status Bad Request", func() {
				body, contentType := uploadBody("files")
				resp, err := http.Post(ghttpServer.URL()+"/scan/batch", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleValidate", func() {
		postValidate := func(format string, payload any) *http.Response {
			bodyBytes, err := json.Marshal(payload)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.Post(ghttpServer.URL()+"/validate/"+format, "application/json", bytes.NewBuffer(bodyBytes))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the payload matches a provider grammar", func() {
			It("should return the provider detail", func() {
				resp := postValidate("EAN13", map[string]string{"barcode_data": piaValid})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result Result
				Expect(json.NewDecoder(resp.Body).Decode(&result)).NotTo(HaveOccurred())
				Expect(result.Provider).To(Equal("ticket_pia"))
				Expect(result.ChecksumValid).NotTo(BeNil())
				Expect(*result.ChecksumValid).To(BeTrue())
			})
		})

		When("the format is unsupported", func() {
			It("should return status Bad Request", func() {
				resp := postValidate("QR", map[string]string{"barcode_data": piaValid})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/validate/EAN13", "application/json", bytes.NewBufferString("not json"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetTicket", func() {
		When("the ticket exists", func() {
			BeforeEach(func() {
				store.tickets[piaValid] = &StoredTicket{BarcodeData: piaValid, Provider: "ticket_pia"}
			})

			It("should return it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/tickets/" + piaValid)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var got StoredTicket
				Expect(json.NewDecoder(resp.Body).Decode(&got)).NotTo(HaveOccurred())
				Expect(got.BarcodeData).To(Equal(piaValid))
			})
		})

		When("the ticket does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/tickets/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Ticket not found"))
			})
		})
	})

	Describe("handleQueryTickets", func() {
		BeforeEach(func() {
			store.tickets["EP1234567897"] = &StoredTicket{BarcodeData: "EP1234567897", Provider: "eplus"}
			store.tickets[piaValid] = &StoredTicket{BarcodeData: piaValid, Provider: "ticket_pia"}
		})

		When("filtering by provider", func() {
			It("should return the matching decodes", func() {
				resp, err := http.Get(ghttpServer.URL() + "/tickets?provider=eplus")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var tickets []*StoredTicket
				Expect(json.NewDecoder(resp.Body).Decode(&tickets)).NotTo(HaveOccurred())
				Expect(tickets).To(HaveLen(1))
				Expect(tickets[0].Provider).To(Equal("eplus"))
			})
		})

		When("the from parameter is malformed", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Get(ghttpServer.URL() + "/tickets?from=yesterday")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		When("no credentials are provided", func() {
			It("should return status Unauthorized with a challenge", func() {
				resp, err := http.Get(ghttpServer.URL() + "/tickets")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).NotTo(BeEmpty())
			})
		})

		When("valid credentials are provided", func() {
			It("should serve the request", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/tickets", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:pass"))
				req.Header.Set("Authorization", "Basic "+credentials)
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})
})
