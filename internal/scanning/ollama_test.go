package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/ahorro/internal/media"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		client  *Ollama
		request ollamaChatRequest
	)

	capture := func(w http.ResponseWriter, r *http.Request) {
		defer GinkgoRecover()
		Expect(json.NewDecoder(r.Body).Decode(&request)).To(Succeed())
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		client, err = NewOllama(server.URL(), "llava", []string{"Salud", "Supermercado"}, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Analyze", func() {
		var pngData []byte

		BeforeEach(func() {
			img := image.NewRGBA(image.Rect(0, 0, 4, 4))
			img.Set(1, 1, color.Black)
			var buf bytes.Buffer
			Expect(png.Encode(&buf, img)).To(Succeed())
			pngData = buf.Bytes()
		})

		When("the model returns fenced JSON", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
					capture,
					ghttp.RespondWith(http.StatusOK, "{\"message\": {\"role\": \"assistant\", \"content\": \"```json\\n{\\\"merchant\\\": {\\\"name\\\": \\\"Jumbo\\\"}, \\\"categories\\\": [\\\"Supermercado\\\"]}\\n```\"}, \"done\": true}"),
				))
			})

			It("decodes the analysis", func() {
				analysis, err := client.Analyze(context.Background(), pngData, media.KindImage, "", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(*analysis.Merchant.Name).To(Equal("Jumbo"))
				Expect(analysis.Categories).To(Equal([]string{"Supermercado"}))
			})

			It("attaches the image and the category vocabulary", func() {
				_, err := client.Analyze(context.Background(), pngData, media.KindImage, "", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(request.Model).To(Equal("llava"))
				Expect(request.Stream).To(BeFalse())
				Expect(request.Messages).To(HaveLen(2))
				Expect(request.Messages[1].Images).To(HaveLen(1))
				Expect(request.Messages[1].Content).To(ContainSubstring("Supermercado"))
			})
		})

		When("the server fails", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
			})

			It("returns an unexpected response error", func() {
				_, err := client.Analyze(context.Background(), pngData, media.KindImage, "", nil)
				Expect(err).To(MatchError(ErrUnexpectedResponse))
			})
		})
	})

	Describe("AnswerQuestion", func() {
		When("the model answers", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					capture,
					ghttp.RespondWith(http.StatusOK, `{"message": {"role": "assistant", "content": "  Gastaste CLP 1190  "}, "done": true}`),
				))
			})

			It("returns the trimmed answer", func() {
				answer, err := client.AnswerQuestion(context.Background(), "¿cuánto?", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(answer).To(Equal("Gastaste CLP 1190"))
				Expect(request.Messages[0].Content).To(Equal(answerSystemPrompt))
			})
		})

		When("the model answers with nothing", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"message": {"role": "assistant", "content": ""}, "done": true}`))
			})

			It("returns an unexpected response error", func() {
				_, err := client.AnswerQuestion(context.Background(), "¿cuánto?", nil)
				Expect(err).To(MatchError(ErrUnexpectedResponse))
			})
		})

		When("the response is not JSON", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `not json`))
			})

			It("returns a decoding error", func() {
				_, err := client.AnswerQuestion(context.Background(), "¿cuánto?", nil)
				Expect(err).To(MatchError(ErrDecodingFailed))
			})
		})
	})
})
