package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// tinyPNG produces a minimal valid PNG so image preparation succeeds
func tinyPNG() []byte {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	Expect(png.Encode(&buf, img)).NotTo(HaveOccurred())
	return buf.Bytes()
}

var _ = Describe("Space", func() {
	var (
		server *ghttp.Server
		client *Space
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		client, newErr = NewSpace(server.URL(), "test-key")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = client.RecognizeText(context.Background(), tinyPNG(), "image/png")
	})

	When("recognition succeeds", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(r.ParseMultipartForm(10 << 20)).NotTo(HaveOccurred())
					Expect(r.FormValue("apikey")).To(Equal("test-key"))
					Expect(r.FormValue("language")).To(Equal("eng"))
					Expect(r.FormValue("OCREngine")).To(Equal("2"))
					Expect(r.FormValue("isTable")).To(Equal("false"))
					Expect(r.FormValue("scale")).To(Equal("true"))
					_, _, fileErr := r.FormFile("file")
					Expect(fileErr).NotTo(HaveOccurred())
				},
				ghttp.RespondWith(http.StatusOK, `{"ParsedResults":[{"ParsedText":"Reading 048213 kWh"}],"IsErroredOnProcessing":false}`),
			))
		})

		It("should return the parsed text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Reading 048213 kWh"))
		})
	})

	When("the endpoint returns a non-2xx status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusForbidden, "denied"))
		})

		It("should return ErrUnavailable", func() {
			Expect(err).To(MatchError(ErrUnavailable))
		})
	})

	When("the response carries an error flag", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK,
				`{"ParsedResults":[],"IsErroredOnProcessing":true,"ErrorMessage":["Unable to recognize the file type"]}`))
		})

		It("should return ErrUnavailable", func() {
			Expect(err).To(MatchError(ErrUnavailable))
		})
	})

	When("the response body is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>gateway error</html>"))
		})

		It("should return ErrUnavailable", func() {
			Expect(err).To(MatchError(ErrUnavailable))
		})
	})

	When("the endpoint is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("should return ErrUnavailable", func() {
			Expect(err).To(MatchError(ErrUnavailable))
		})
	})

	Describe("NewSpace", func() {
		BeforeEach(func() {
			// No handlers are registered here; the top-level JustBeforeEach
			// still issues a request, so keep the server from failing the spec.
			server.SetAllowUnhandledRequests(true)
		})

		It("should require an api key", func() {
			_, newErr := NewSpace("", "")
			Expect(newErr).To(HaveOccurred())
		})
	})
})
