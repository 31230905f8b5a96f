package scanning

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/media"
)

var _ = Describe("Offline", func() {
	var (
		offline *Offline
		fixed   time.Time
	)

	BeforeEach(func() {
		fixed = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
		offline = NewOffline("clp")
		offline.now = func() time.Time { return fixed }
	})

	Describe("Tokenize", func() {
		It("lower-cases and splits on punctuation", func() {
			Expect(Tokenize("Consulta médica, por DOLOR-estomacal!")).To(Equal([]string{"consulta", "médica", "por", "dolor", "estomacal"}))
		})

		It("returns nothing for blank text", func() {
			Expect(Tokenize("  ¡¿ ")).To(BeEmpty())
		})
	})

	Describe("Analyze", func() {
		var (
			hint     string
			analysis *Analysis
			err      error
		)

		JustBeforeEach(func() {
			analysis, err = offline.Analyze(context.Background(), []byte("img"), media.KindImage, hint, nil)
		})

		When("the hint mentions a health visit", func() {
			BeforeEach(func() {
				hint = "Consulta médica con doctor"
			})

			It("infers health once", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(analysis.Categories).To(Equal([]string{"health"}))
			})

			It("fills the offline defaults", func() {
				Expect(*analysis.Merchant.Name).To(Equal("Comercio desconocido"))
				Expect(analysis.PurchaseDate).To(Equal(&fixed))
				Expect(analysis.CurrencyCode).To(Equal("CLP"))
				Expect(*analysis.Notes).To(Equal("Consulta médica con doctor"))
				Expect(*analysis.Summary).To(ContainSubstring("sin conexión"))
				Expect(analysis.TaxBreakdown.Total).To(BeNil())
			})
		})

		When("the hint matches nothing", func() {
			BeforeEach(func() {
				hint = "regalo"
			})

			It("falls back to other", func() {
				Expect(analysis.Categories).To(Equal([]string{"other"}))
			})
		})

		When("the hint is blank", func() {
			BeforeEach(func() {
				hint = "   "
			})

			It("leaves notes empty", func() {
				Expect(analysis.Notes).To(BeNil())
				Expect(analysis.Keywords).To(BeEmpty())
			})
		})
	})

	Describe("AnswerQuestion", func() {
		It("sums the totals and lists the matches", func() {
			first := decimal.NewFromInt(1190)
			second := decimal.NewFromInt(10000)
			date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

			answer, err := offline.AnswerQuestion(context.Background(), "salud", []ReceiptDigest{
				{ID: "a", Merchant: "Clínica Mayo", PurchaseDate: &date, Total: &first, Currency: "CLP"},
				{ID: "b", Total: &second, Currency: "CLP"},
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(answer).To(Equal("Resumen sin conexión\n\nTotal estimado: CLP 11190\n\nCoincidencias: \n• Clínica Mayo - 2024-01-02\n• Comercio - fecha desconocida"))
		})

		It("reports a zero total without receipts", func() {
			answer, err := offline.AnswerQuestion(context.Background(), "x", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(answer).To(ContainSubstring("Total estimado: CLP 0"))
		})
	})
})

var _ = Describe("FormatAmount", func() {
	It("drops decimals for zero-decimal currencies", func() {
		Expect(FormatAmount(decimal.RequireFromString("1190.4"), "clp")).To(Equal("CLP 1190"))
	})

	It("keeps two decimals otherwise", func() {
		Expect(FormatAmount(decimal.RequireFromString("12.5"), "USD")).To(Equal("USD 12.50"))
	})

	It("omits a missing currency", func() {
		Expect(FormatAmount(decimal.NewFromInt(3), "")).To(Equal("3.00"))
	})
})

var _ = Describe("Select", func() {
	When("the cloud provider has no key", func() {
		It("falls back to the offline analyzer", func() {
			analyzer := Select(Config{Provider: ProviderOpenAI, DefaultCurrency: "CLP"}, nil)
			Expect(analyzer).To(BeAssignableToTypeOf(&Offline{}))
		})
	})

	When("a key is configured", func() {
		It("builds the OpenAI analyzer", func() {
			analyzer := Select(Config{APIKey: "sk-test"}, nil)
			Expect(analyzer).To(BeAssignableToTypeOf(&OpenAI{}))
		})
	})

	When("gemini has no key", func() {
		It("falls back to the offline analyzer", func() {
			analyzer := Select(Config{Provider: "Gemini"}, nil)
			Expect(analyzer).To(BeAssignableToTypeOf(&Offline{}))
		})
	})

	Describe("New", func() {
		It("rejects unknown providers", func() {
			_, err := New(Config{Provider: "claude"}, nil)
			Expect(err).To(MatchError(ContainSubstring("unknown analysis provider")))
		})

		It("builds the offline analyzer on request", func() {
			analyzer, err := New(Config{Provider: ProviderOffline}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(analyzer).To(BeAssignableToTypeOf(&Offline{}))
		})
	})
})
