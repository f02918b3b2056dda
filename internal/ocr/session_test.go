package ocr

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// gateRecognizer blocks each RecognizeText call until released
type gateRecognizer struct {
	gate chan struct{}
	text string
	err  error
}

func (g *gateRecognizer) RecognizeText(ctx context.Context, image []byte, contentType string) (string, error) {
	<-g.gate
	return g.text, g.err
}

func (g *gateRecognizer) Close() error {
	return nil
}

var _ = Describe("Session", func() {
	var (
		recognizer *gateRecognizer
		session    *Session
	)

	BeforeEach(func() {
		recognizer = &gateRecognizer{
			gate: make(chan struct{}),
			text: "Reading 048213 kWh",
		}
		session = NewSession(recognizer)
	})

	When("a single capture completes", func() {
		It("should deliver the extracted candidate", func() {
			results := make(chan Result, 1)
			session.Capture(context.Background(), []byte("img"), "image/jpeg", func(r Result) {
				results <- r
			})
			close(recognizer.gate)

			var result Result
			Eventually(results).Should(Receive(&result))
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Value).To(Equal("048213"))
		})
	})

	When("a retake starts before the first capture completes", func() {
		It("should discard the older attempt as superseded", func() {
			first := make(chan Result, 1)
			second := make(chan Result, 1)

			session.Capture(context.Background(), []byte("img1"), "image/jpeg", func(r Result) {
				first <- r
			})
			session.Capture(context.Background(), []byte("img2"), "image/jpeg", func(r Result) {
				second <- r
			})
			close(recognizer.gate)

			var stale Result
			Eventually(first).Should(Receive(&stale))
			Expect(stale.Err).To(MatchError(ErrSuperseded))
			Expect(stale.Value).To(BeEmpty())

			var fresh Result
			Eventually(second).Should(Receive(&fresh))
			Expect(fresh.Err).NotTo(HaveOccurred())
			Expect(fresh.Value).To(Equal("048213"))
		})
	})

	When("Cancel is called with a capture in flight", func() {
		It("should discard the pending attempt", func() {
			results := make(chan Result, 1)
			session.Capture(context.Background(), []byte("img"), "image/jpeg", func(r Result) {
				results <- r
			})
			session.Cancel()
			close(recognizer.gate)

			var result Result
			Eventually(results).Should(Receive(&result))
			Expect(result.Err).To(MatchError(ErrSuperseded))
		})
	})

	When("tokens are issued", func() {
		It("should increase monotonically", func() {
			t1 := session.Capture(context.Background(), nil, "", func(Result) {})
			t2 := session.Capture(context.Background(), nil, "", func(Result) {})
			close(recognizer.gate)
			Expect(t2).To(BeNumerically(">", t1))
		})
	})

	When("recognition fails", func() {
		BeforeEach(func() {
			recognizer.err = errors.New("backend down")
		})

		It("should surface the error instead of a value", func() {
			results := make(chan Result, 1)
			session.Capture(context.Background(), []byte("img"), "image/jpeg", func(r Result) {
				results <- r
			})
			close(recognizer.gate)

			var result Result
			Eventually(results).Should(Receive(&result))
			Expect(result.Err).To(HaveOccurred())
			Expect(result.Value).To(BeEmpty())
		})
	})
})
