package decode

import (
	"context"
	"image"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/codabar"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/code93"
	"github.com/boombuler/barcode/ean"
	"github.com/boombuler/barcode/twooffive"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ohta-d/barcode-scan-api/internal/imaging"
)

// renderBarcode synthesizes a clean barcode image for one symbology.
func renderBarcode(symbology Symbology, content string) image.Image {
	var bc barcode.Barcode
	var err error
	switch symbology {
	case Code128:
		bc, err = code128.Encode(content)
	case Code39:
		bc, err = code39.Encode(content, false, false)
	case Code93:
		bc, err = code93.Encode(content, true, false)
	case EAN13:
		bc, err = ean.Encode(content)
	case ITF:
		bc, err = twooffive.Encode(content, true)
	case Codabar:
		bc, err = codabar.Encode(content)
	}
	Expect(err).NotTo(HaveOccurred())

	scaled, err := barcode.Scale(bc, 400, 120)
	Expect(err).NotTo(HaveOccurred())
	return scaled
}

func barcodeVariant(symbology Symbology, content string) imaging.Variant {
	return imaging.Variant{
		Tag:      imaging.TagStandard,
		Priority: 0,
		Image:    renderBarcode(symbology, content),
	}
}

var _ = Describe("ZXing", func() {
	var engine *ZXing

	BeforeEach(func() {
		engine = NewZXing()
	})

	DescribeTable("decoding a clean synthetic barcode",
		func(symbology Symbology, content, want string) {
			candidates, err := engine.Decode(context.Background(), barcodeVariant(symbology, content), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Value).To(Equal(want))
			Expect(candidates[0].Symbology).To(Equal(symbology))
			Expect(candidates[0].EngineID).To(Equal("zxing"))
			Expect(candidates[0].NativeConfidence).To(BeNumerically(">", 0))
		},
		Entry("CODE128", Code128, "EP1234567897", "EP1234567897"),
		Entry("CODE39", Code39, "TICKET1", "TICKET1"),
		Entry("CODE93", Code93, "TICKET1", "TICKET1"),
		Entry("EAN13", EAN13, "641234567890", "6412345678907"),
		Entry("ITF", ITF, "12345678", "12345678"),
		Entry("CODABAR", Codabar, "A40156B", "40156"),
	)

	When("the variant contains no barcode", func() {
		It("returns an empty candidate set, not an error", func() {
			v := imaging.Variant{
				Tag:   imaging.TagStandard,
				Image: image.NewGray(image.Rect(0, 0, 200, 100)),
			}
			candidates, err := engine.Decode(context.Background(), v, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(BeEmpty())
		})
	})

	When("a format hint excludes the barcode's symbology", func() {
		It("finds nothing", func() {
			candidates, err := engine.Decode(context.Background(), barcodeVariant(Code128, "EP1234567897"), EAN13)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(BeEmpty())
		})
	})

	When("a format hint matches the barcode's symbology", func() {
		It("still decodes it", func() {
			candidates, err := engine.Decode(context.Background(), barcodeVariant(Code128, "EP1234567897"), Code128)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Value).To(Equal("EP1234567897"))
		})
	})

	When("the context is cancelled", func() {
		It("returns the context error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := engine.Decode(ctx, barcodeVariant(Code128, "EP1234567897"), "")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("the try-harder registration", func() {
		It("reports a distinct engine ID", func() {
			Expect(NewZXingTryHarder().ID()).To(Equal("zxing_harder"))
			Expect(NewZXing().ID()).To(Equal("zxing"))
		})

		It("decodes the same clean barcode", func() {
			candidates, err := NewZXingTryHarder().Decode(context.Background(), barcodeVariant(Code128, "EP1234567897"), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
		})
	})
})

var _ = Describe("ParseSymbology", func() {
	It("accepts every supported symbology", func() {
		for _, s := range []string{"CODE128", "CODE39", "EAN13", "ITF", "CODABAR", "CODE93"} {
			parsed, ok := ParseSymbology(s)
			Expect(ok).To(BeTrue())
			Expect(string(parsed)).To(Equal(s))
		}
	})

	It("rejects unknown values", func() {
		_, ok := ParseSymbology("QR")
		Expect(ok).To(BeFalse())
		_, ok = ParseSymbology("")
		Expect(ok).To(BeFalse())
	})
})
