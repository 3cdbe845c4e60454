package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider"
	"github.com/papercomputeco/chatrelay/pkg/upload"
)

type formFile struct {
	name    string
	mime    string
	content string
}

func multipartRequest(path, field string, files ...formFile) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.name))
		h.Set("Content-Type", f.mime)
		part, err := mw.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = io.WriteString(part, f.content)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(mw.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeUpload(resp *http.Response) uploadResponse {
	var body uploadResponse
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("Upload routes", func() {
	var (
		upstream *fakeUpstream
		store    *upload.DiskStore
		r        *Relay
	)

	BeforeEach(func() {
		upstream = newUpstream(sseUpstream(deltaFrame("seen"), "data: [DONE]\n\n"))

		var err error
		store, err = upload.NewDiskStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		r = newTestRelay(Config{
			Provider:  providerAt(provider.DeepSeek, upstream.URL),
			Providers: []provider.Provider{providerAt(provider.SiliconFlow, upstream.URL)},
			Uploads:   store,
		})
	})

	AfterEach(func() {
		r.Close()
		upstream.Close()
	})

	test := func(req *http.Request) *http.Response {
		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("stores a single file and serves it back", func() {
		resp := test(multipartRequest(UploadPath, "file", formFile{"notes.txt", "text/plain", "hello world"}))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := decodeUpload(resp)
		Expect(body.Success).To(BeTrue())
		Expect(body.File).NotTo(BeNil())
		Expect(body.File.Name).To(Equal("notes.txt"))
		Expect(body.File.Category).To(Equal(upload.CategoryOthers))
		Expect(body.File.Size).To(BeEquivalentTo(len("hello world")))
		Expect(body.File.Path).To(HavePrefix(upload.URLPrefix + upload.CategoryOthers + "/"))
		Expect(body.File.URL).To(HaveSuffix(body.File.Path))

		served := test(httptest.NewRequest(http.MethodGet, body.File.Path, nil))
		Expect(served.StatusCode).To(Equal(http.StatusOK))
		content, err := io.ReadAll(served.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("hello world"))
	})

	It("rejects a request without a file", func() {
		resp := test(multipartRequest(UploadPath, "other", formFile{"a.txt", "text/plain", "a"}))
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decodeUpload(resp).Error).To(Equal(noFileMessage))
	})

	It("stores several files at once and lists them", func() {
		resp := test(multipartRequest(UploadMultiplePath, "files",
			formFile{"a.png", "image/png", "png"},
			formFile{"b.pdf", "application/pdf", "pdf"},
		))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := decodeUpload(resp)
		Expect(body.Files).To(HaveLen(2))
		Expect(body.Files[0].Category).To(Equal(upload.CategoryImages))
		Expect(body.Files[1].Category).To(Equal(upload.CategoryPDFs))

		listed := decodeUpload(test(httptest.NewRequest(http.MethodGet, FilesPath, nil)))
		Expect(listed.Success).To(BeTrue())
		Expect(listed.Files).To(HaveLen(2))
	})

	It("limits the number of files per request", func() {
		files := make([]formFile, upload.MaxFiles+1)
		for i := range files {
			files[i] = formFile{fmt.Sprintf("f%d.txt", i), "text/plain", "x"}
		}

		resp := test(multipartRequest(UploadMultiplePath, "files", files...))
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

		listed, err := store.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(listed).To(BeEmpty())
	})

	It("inlines stored documents into the prompt", func() {
		stored := decodeUpload(test(multipartRequest(UploadPath, "file", formFile{"notes.txt", "text/plain", "hello world"})))

		resp := postJSON(r, StreamPath, llm.Prompt{
			Message: "summarize",
			Files:   []llm.FileRef{{Name: "notes.txt", Type: "text/plain", Path: stored.File.Path}},
		})
		events := readEvents(resp.Body)
		Expect(events[len(events)-1]).To(Equal(llm.Done()))

		raw := upstream.lastRaw()
		Expect(raw).To(ContainSubstring(`Document: notes.txt\nhello world`))
		Expect(raw).To(ContainSubstring("summarize"))
	})

	It("notes documents it cannot read", func() {
		stored := decodeUpload(test(multipartRequest(UploadPath, "file", formFile{"report.pdf", "application/pdf", "%PDF-1.4"})))

		resp := postJSON(r, StreamPath, llm.Prompt{
			Files: []llm.FileRef{{Name: "report.pdf", Type: "application/pdf", Path: stored.File.Path}},
		})
		readEvents(resp.Body)

		Expect(upstream.lastRaw()).To(ContainSubstring("Received file: report.pdf"))
	})

	It("sends stored images to vision models as data URLs", func() {
		stored := decodeUpload(test(multipartRequest(UploadPath, "file", formFile{"cat.png", "image/png", "png-bytes"})))

		resp := postJSON(r, StreamPath, llm.Prompt{
			Message: "what is this?",
			Model:   "Qwen/Qwen2.5-VL-72B-Instruct",
			Files:   []llm.FileRef{{Name: "cat.png", Type: "image/png", Path: stored.File.Path}},
		})
		readEvents(resp.Body)

		body := upstream.lastBody()
		Expect(body["model"]).To(Equal("Qwen/Qwen2.5-VL-72B-Instruct"))
		Expect(upstream.lastRaw()).To(ContainSubstring(`"url":"data:image/png;base64,cG5nLWJ5dGVz"`))
	})

	It("reports health with uploads enabled", func() {
		var body HealthResponse
		resp := test(httptest.NewRequest(http.MethodGet, HealthPath, nil))
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		Expect(body.UploadsEnabled).To(BeTrue())
	})
})
