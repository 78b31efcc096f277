package vision

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("normalizeImage", func() {
	When("the upload is already PNG", func() {
		It("passes the bytes through untouched", func() {
			data := []byte("png-bytes-left-alone")
			out, err := normalizeImage(data, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
		})
	})

	When("the upload is a JPEG", func() {
		It("re-encodes it as PNG", func() {
			var buf bytes.Buffer
			img := image.NewRGBA(image.Rect(0, 0, 4, 4))
			Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())

			out, err := normalizeImage(buf.Bytes(), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())

			decoded, err := png.Decode(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Bounds().Dx()).To(Equal(4))
		})
	})

	When("the MIME type is missing", func() {
		It("still decodes by sniffing the content", func() {
			var buf bytes.Buffer
			img := image.NewRGBA(image.Rect(0, 0, 2, 2))
			Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())

			_, err := normalizeImage(buf.Bytes(), "")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the upload is not an image at all", func() {
		It("returns a helpful error", func() {
			_, err := normalizeImage([]byte("definitely not an image"), "image/jpeg")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("looksLikeHEIC", func() {
	heicHeader := func(brand string) []byte {
		return append([]byte{0, 0, 0, 24, 'f', 't', 'y', 'p'}, []byte(brand)...)
	}

	It("recognizes the HEIC container brands", func() {
		for _, brand := range []string{"heic", "heif", "mif1", "msf1"} {
			Expect(looksLikeHEIC(heicHeader(brand))).To(BeTrue(), brand)
		}
	})

	It("rejects other ftyp brands", func() {
		Expect(looksLikeHEIC(heicHeader("avif"))).To(BeFalse())
	})

	It("rejects short or plain data", func() {
		Expect(looksLikeHEIC([]byte("tiny"))).To(BeFalse())
		Expect(looksLikeHEIC([]byte("a plain text file, quite long"))).To(BeFalse())
	})
})
