package receipt

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/media"
)

var _ = Describe("Receipt", func() {
	Describe("EffectiveTotal", func() {
		var (
			receipt *Receipt
			total   decimal.Decimal
			ok      bool
		)

		BeforeEach(func() {
			receipt = &Receipt{}
		})

		JustBeforeEach(func() {
			total, ok = receipt.EffectiveTotal()
		})

		When("an explicit total is present", func() {
			BeforeEach(func() {
				receipt.TaxBreakdown = TaxBreakdown{
					Subtotal: ptr(decimal.NewFromInt(10000)),
					Tax:      ptr(decimal.NewFromInt(1900)),
					Total:    ptr(decimal.NewFromInt(11900)),
				}
				receipt.LineItems = []LineItem{{Total: ptr(decimal.NewFromInt(1))}}
			})

			It("returns the total", func() {
				Expect(ok).To(BeTrue())
				Expect(total.Equal(decimal.NewFromInt(11900))).To(BeTrue())
			})
		})

		When("only subtotal and tax are present", func() {
			BeforeEach(func() {
				receipt.TaxBreakdown = TaxBreakdown{
					Subtotal: ptr(decimal.NewFromInt(10000)),
					Tax:      ptr(decimal.NewFromInt(1900)),
				}
			})

			It("returns their sum", func() {
				Expect(ok).To(BeTrue())
				Expect(total.Equal(decimal.NewFromInt(11900))).To(BeTrue())
			})
		})

		When("only a subtotal is present", func() {
			BeforeEach(func() {
				receipt.TaxBreakdown = TaxBreakdown{Subtotal: ptr(decimal.NewFromInt(10000))}
				receipt.LineItems = []LineItem{{Total: ptr(decimal.NewFromInt(300))}}
			})

			It("falls through to the line items", func() {
				Expect(ok).To(BeTrue())
				Expect(total.Equal(decimal.NewFromInt(300))).To(BeTrue())
			})
		})

		When("only line items are present", func() {
			BeforeEach(func() {
				receipt.LineItems = []LineItem{
					{Description: "pan", Total: ptr(decimal.NewFromInt(500))},
					{Description: "sin total"},
					{Description: "leche", Total: ptr(decimal.NewFromInt(700))},
				}
			})

			It("sums the line totals", func() {
				Expect(ok).To(BeTrue())
				Expect(total.Equal(decimal.NewFromInt(1200))).To(BeTrue())
			})
		})

		When("nothing is known", func() {
			It("is undefined", func() {
				Expect(ok).To(BeFalse())
			})
		})

		When("amounts have cents", func() {
			BeforeEach(func() {
				receipt.LineItems = []LineItem{
					{Total: ptr(decimal.RequireFromString("0.1"))},
					{Total: ptr(decimal.RequireFromString("0.2"))},
				}
			})

			It("sums them exactly", func() {
				Expect(total.String()).To(Equal("0.3"))
			})
		})
	})

	Describe("Clone", func() {
		It("shares no mutable state", func() {
			original := &Receipt{
				ID:           "r1",
				Merchant:     Party{Name: ptr("Líder")},
				TaxBreakdown: TaxBreakdown{Total: ptr(decimal.NewFromInt(10))},
				Keywords:     []string{"super"},
				Categories:   []Category{CategoryGroceries},
				LineItems:    []LineItem{{ID: "l1", Total: ptr(decimal.NewFromInt(10))}},
			}

			clone := original.Clone()
			*clone.Merchant.Name = "Jumbo"
			clone.Keywords[0] = "otro"
			clone.Categories[0] = CategoryOther
			*clone.LineItems[0].Total = decimal.NewFromInt(99)

			Expect(original.MerchantName()).To(Equal("Líder"))
			Expect(original.Keywords).To(Equal([]string{"super"}))
			Expect(original.Categories).To(Equal([]Category{CategoryGroceries}))
			Expect(original.LineItems[0].Total.String()).To(Equal("10"))
		})
	})

	Describe("Digest", func() {
		It("carries labels and the effective total", func() {
			date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
			r := &Receipt{
				ID:           "r1",
				PurchaseDate: &date,
				Merchant:     Party{Name: ptr("Clínica Mayo")},
				TaxBreakdown: TaxBreakdown{Subtotal: ptr(decimal.NewFromInt(100)), Tax: ptr(decimal.NewFromInt(19))},
				CurrencyCode: "CLP",
				Categories:   []Category{CategoryHealth},
				Keywords:     []string{"dolor"},
				Notes:        ptr("control"),
			}

			d := r.Digest()
			Expect(d.Merchant).To(Equal("Clínica Mayo"))
			Expect(d.Categories).To(Equal([]string{"Salud"}))
			Expect(d.Total.String()).To(Equal("119"))
			Expect(d.Notes).To(Equal("control"))
			Expect(d.PurchaseDate.Equal(date)).To(BeTrue())
		})
	})

	Describe("JSON encoding", func() {
		It("encodes decimals as strings and never stores the effective total", func() {
			r := &Receipt{
				ID:           "r1",
				TaxBreakdown: TaxBreakdown{Total: ptr(decimal.NewFromInt(11900))},
				Categories:   []Category{CategoryHealth},
				MediaKind:    media.KindImage,
			}
			data, err := json.Marshal(r)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"total":"11900"`))
			Expect(string(data)).To(ContainSubstring(`"categories":["health"]`))
			Expect(strings.Contains(string(data), "effectiveTotal")).To(BeFalse())
		})
	})
})

var _ = Describe("MapCategories", func() {
	It("keeps valid categories as they are", func() {
		for _, c := range Categories {
			Expect(MapCategories([]string{string(c)})).To(Equal([]Category{c}))
		}
	})

	It("is idempotent", func() {
		first := MapCategories([]string{"Health", "supermarket groceries", "xyz"})
		names := make([]string, len(first))
		for i, c := range first {
			names[i] = string(c)
		}
		Expect(MapCategories(names)).To(Equal(first))
	})

	It("maps unrecognized strings to other", func() {
		Expect(MapCategories([]string{"zzz", "qqq"})).To(Equal([]Category{CategoryOther}))
	})

	It("maps an empty list to other", func() {
		Expect(MapCategories(nil)).To(Equal([]Category{CategoryOther}))
	})

	It("ignores blank strings", func() {
		Expect(MapCategories([]string{"", "  "})).To(Equal([]Category{CategoryOther}))
	})

	It("matches by containment in either direction", func() {
		Expect(MapCategories([]string{"public transportation"})).To(Equal([]Category{CategoryTransport}))
		Expect(MapCategories([]string{"fast"})).To(Equal([]Category{CategoryFastFood}))
	})

	It("matches display labels", func() {
		Expect(MapCategories([]string{"Supermercado", "SALUD"})).To(Equal([]Category{CategoryGroceries, CategoryHealth}))
	})

	It("deduplicates and sorts in display order", func() {
		Expect(MapCategories([]string{"other", "health", "HEALTH ", "basics"})).To(Equal([]Category{CategoryBasics, CategoryHealth, CategoryOther}))
	})
})

var _ = Describe("EnrichKeywords", func() {
	It("deduplicates case-insensitively", func() {
		keywords := EnrichKeywords([]string{"salud", "dolor"}, "Consulta médica por DOLOR estomacal")

		count := 0
		for _, k := range keywords {
			if k == "dolor" {
				count++
			}
		}
		Expect(count).To(Equal(1))
		Expect(keywords).To(Equal([]string{"consulta", "dolor", "estomacal", "médica", "por", "salud"}))
	})

	It("drops hint tokens of two runes or fewer", func() {
		Expect(EnrichKeywords(nil, "de la compra en el súper")).To(Equal([]string{"compra", "súper"}))
	})

	It("lower-cases analysis keywords", func() {
		Expect(EnrichKeywords([]string{"Super", "SUPER", " "}, "")).To(Equal([]string{"super"}))
	})
})

var _ = Describe("fileNameFor", func() {
	It("prefixes the id and appends the media extension", func() {
		Expect(fileNameFor("id-1", "recibo.png", media.KindImage)).To(Equal("id-1_recibo.png.jpg"))
	})

	It("keeps a matching extension regardless of case", func() {
		Expect(fileNameFor("id-1", "Factura.PDF", media.KindPDF)).To(Equal("id-1_Factura.PDF"))
	})

	It("replaces unsafe characters", func() {
		Expect(fileNameFor("id-1", "boleta mañana/1.jpg", media.KindImage)).To(Equal("id-1_boleta_ma_ana_1.jpg"))
	})

	It("generates a name when the original is empty", func() {
		name := fileNameFor("id-1", "", media.KindPDF)
		Expect(name).To(HavePrefix("id-1_receipt-"))
		Expect(name).To(HaveSuffix(".pdf"))
	})

	It("never collides for the same original name", func() {
		Expect(fileNameFor("id-1", "recibo.jpg", media.KindImage)).NotTo(Equal(fileNameFor("id-2", "recibo.jpg", media.KindImage)))
	})
})
