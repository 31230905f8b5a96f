package receipt

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/media"
	"github.com/zombor/ahorro/internal/scanning"
)

func testJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Processor", func() {
	var (
		analyzer    *mockAnalyzer
		thumbnailer *mockThumbnailer
		now         time.Time
		processor   *Processor
		input       Input
		processed   *Processed
		err         error
	)

	BeforeEach(func() {
		analyzer = newMockAnalyzer()
		thumbnailer = newMockThumbnailer()
		now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		processor = NewProcessorWithDeps(analyzer, thumbnailer, "clp", &sequentialIDGenerator{}, &fixedTimeSource{t: now})
		input = Input{
			Data:         testJPEG(),
			Kind:         media.KindImage,
			OriginalName: "recibo.png",
			Hint:         "compra supermercado",
			Location:     &Geolocation{Latitude: -33.0, Longitude: -71.5},
		}
	})

	JustBeforeEach(func() {
		processed, err = processor.Process(context.Background(), input)
	})

	When("the analysis returns categories and keywords only", func() {
		BeforeEach(func() {
			analyzer.analysis = &scanning.Analysis{
				Categories: []string{"groceries"},
				Keywords:   []string{"super", "comida"},
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("maps the categories", func() {
			Expect(processed.Receipt.Categories).To(Equal([]Category{CategoryGroceries}))
		})

		It("enriches the keywords with the hint", func() {
			Expect(processed.Receipt.Keywords).To(ContainElements("super", "comida", "compra", "supermercado"))
		})

		It("derives a jpg file name", func() {
			Expect(processed.Receipt.FileName).To(HaveSuffix(".jpg"))
			Expect(processed.Receipt.FileName).To(Equal("id-1_recibo.png.jpg"))
		})

		It("has no effective total", func() {
			_, ok := processed.Receipt.EffectiveTotal()
			Expect(ok).To(BeFalse())
		})

		It("passes the hint and location to the analyzer", func() {
			Expect(analyzer.hint).To(Equal("compra supermercado"))
			Expect(analyzer.location).To(Equal(&scanning.Geolocation{Latitude: -33.0, Longitude: -71.5}))
		})

		It("records the capture context", func() {
			r := processed.Receipt
			Expect(r.ID).To(Equal("id-1"))
			Expect(r.CreatedAt).To(Equal(now))
			Expect(*r.UserDescription).To(Equal("compra supermercado"))
			Expect(r.Location).To(Equal(&Geolocation{Latitude: -33.0, Longitude: -71.5}))
			Expect(r.MediaKind).To(Equal(media.KindImage))
		})

		It("falls back to the default currency", func() {
			Expect(processed.Receipt.CurrencyCode).To(Equal("CLP"))
		})

		It("leaves the file locations to the store", func() {
			Expect(processed.Receipt.FilePath).To(BeEmpty())
			Expect(processed.Receipt.ThumbnailPath).To(BeEmpty())
		})

		It("re-encodes the payload as JPEG", func() {
			_, format, decodeErr := image.Decode(bytes.NewReader(processed.Payload))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("jpeg"))
		})

		It("includes the thumbnail", func() {
			Expect(processed.Thumbnail).To(Equal(thumbnailer.img))
		})
	})

	When("the analysis is complete", func() {
		BeforeEach(func() {
			date := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
			analyzer.analysis = &scanning.Analysis{
				Merchant:     scanning.Party{Name: ptr("Clínica Mayo")},
				PurchaseDate: &date,
				TaxBreakdown: scanning.TaxBreakdown{Total: ptr(decimal.NewFromInt(35000))},
				CurrencyCode: "usd",
				Categories:   []string{"Health"},
				LineItems: []scanning.LineItem{
					{Description: "Consulta", Total: ptr(decimal.NewFromInt(35000))},
				},
				Notes:   ptr("control anual"),
				Summary: ptr("resumen"),
			}
		})

		It("copies the analysis into the receipt", func() {
			r := processed.Receipt
			Expect(r.MerchantName()).To(Equal("Clínica Mayo"))
			Expect(r.CurrencyCode).To(Equal("USD"))
			Expect(r.Categories).To(Equal([]Category{CategoryHealth}))
			Expect(*r.Notes).To(Equal("control anual"))
			total, ok := r.EffectiveTotal()
			Expect(ok).To(BeTrue())
			Expect(total.String()).To(Equal("35000"))
		})

		It("assigns line item ids", func() {
			Expect(processed.Receipt.LineItems).To(HaveLen(1))
			Expect(processed.Receipt.LineItems[0].ID).To(Equal("id-2"))
		})
	})

	When("the analysis has a summary but no notes", func() {
		BeforeEach(func() {
			analyzer.analysis = &scanning.Analysis{Summary: ptr("compra semanal")}
		})

		It("uses the summary as notes", func() {
			Expect(*processed.Receipt.Notes).To(Equal("compra semanal"))
		})

		It("falls back to other", func() {
			Expect(processed.Receipt.Categories).To(Equal([]Category{CategoryOther}))
		})
	})

	When("the image cannot be decoded", func() {
		BeforeEach(func() {
			input.Data = []byte("not an image")
		})

		It("stores the payload unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(processed.Payload).To(Equal([]byte("not an image")))
		})
	})

	When("the capture is a PDF", func() {
		BeforeEach(func() {
			input.Data = []byte("%PDF-1.4 fake")
			input.Kind = media.KindPDF
			input.OriginalName = "factura.pdf"
		})

		It("keeps the payload and the pdf extension", func() {
			Expect(processed.Payload).To(Equal([]byte("%PDF-1.4 fake")))
			Expect(processed.Receipt.FileName).To(Equal("id-1_factura.pdf"))
		})
	})

	When("no thumbnail can be made", func() {
		BeforeEach(func() {
			thumbnailer.img = nil
		})

		It("still processes the receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(processed.Thumbnail).To(BeNil())
		})
	})

	When("the analysis fails", func() {
		BeforeEach(func() {
			analyzer.analyzeErr = scanning.ErrTransport
		})

		It("returns the analysis error", func() {
			Expect(err).To(MatchError(scanning.ErrTransport))
			Expect(processed).To(BeNil())
		})
	})

	When("the media kind is unknown", func() {
		BeforeEach(func() {
			input.Kind = media.Kind("video")
		})

		It("rejects the input without analyzing", func() {
			Expect(err).To(HaveOccurred())
			Expect(analyzer.calls).To(BeZero())
		})
	})

	When("the context is cancelled", func() {
		It("aborts", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := processor.Process(ctx, input)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	When("the context is cancelled after the analysis succeeded", func() {
		It("still returns the processed receipt", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			processor = NewProcessorWithDeps(analyzer, cancellingThumbnailer{cancel: cancel}, "CLP", &sequentialIDGenerator{}, &fixedTimeSource{t: now})

			processed, err := processor.Process(ctx, input)
			Expect(err).NotTo(HaveOccurred())
			Expect(ctx.Err()).To(MatchError(context.Canceled))
			Expect(processed.Receipt).NotTo(BeNil())
			Expect(processed.Thumbnail).To(BeNil())
			Expect(processed.Payload).NotTo(BeEmpty())
		})
	})
})

// cancellingThumbnailer cancels the processing context and produces nothing
type cancellingThumbnailer struct {
	cancel context.CancelFunc
}

func (c cancellingThumbnailer) Thumbnail(context.Context, []byte, media.Kind) image.Image {
	c.cancel()
	return nil
}
