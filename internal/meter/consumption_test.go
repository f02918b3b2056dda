package meter

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ConsumptionSince", func() {
	var periodStart time.Time

	reading := func(id string, day int, value float64) *Reading {
		return &Reading{
			ID:      id,
			MeterID: "m1",
			Value:   value,
			TakenAt: time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC),
		}
	}

	BeforeEach(func() {
		periodStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	})

	When("two readings fall inside the period", func() {
		It("should return the delta between latest and earliest", func() {
			readings := []*Reading{reading("01", 1, 100), reading("02", 10, 140)}
			Expect(ConsumptionSince(readings, periodStart)).To(Equal(40.0))
		})
	})

	When("only one reading falls inside the period", func() {
		It("should return 0", func() {
			readings := []*Reading{reading("01", 10, 140)}
			Expect(ConsumptionSince(readings, periodStart)).To(BeZero())
		})
	})

	When("there are no readings", func() {
		It("should return 0", func() {
			Expect(ConsumptionSince(nil, periodStart)).To(BeZero())
		})
	})

	When("readings before the period exist", func() {
		It("should exclude them from the delta", func() {
			before := &Reading{ID: "00", Value: 10, TakenAt: time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)}
			readings := []*Reading{before, reading("01", 1, 100), reading("02", 10, 140)}
			Expect(ConsumptionSince(readings, periodStart)).To(Equal(40.0))
		})
	})

	When("a reading sits exactly on the period boundary", func() {
		It("should include it", func() {
			onBoundary := &Reading{ID: "01", Value: 100, TakenAt: periodStart}
			readings := []*Reading{onBoundary, reading("02", 10, 140)}
			Expect(ConsumptionSince(readings, periodStart)).To(Equal(40.0))
		})
	})

	When("the input sequence is out of date order", func() {
		It("should return the same result as for sorted input", func() {
			unordered := []*Reading{reading("03", 10, 140), reading("01", 1, 100), reading("02", 5, 120)}
			Expect(ConsumptionSince(unordered, periodStart)).To(Equal(40.0))
		})
	})

	When("two readings share a timestamp", func() {
		It("should tie-break by creation order deterministically", func() {
			a := reading("01", 1, 100)
			b := reading("02", 1, 105) // same instant, created later
			last := reading("03", 10, 140)
			Expect(ConsumptionSince([]*Reading{b, last, a}, periodStart)).To(Equal(40.0))
			Expect(ConsumptionSince([]*Reading{last, a, b}, periodStart)).To(Equal(40.0))
		})
	})

	It("should round to two decimal places", func() {
		readings := []*Reading{reading("01", 1, 100.005), reading("02", 10, 140.1234)}
		Expect(ConsumptionSince(readings, periodStart)).To(Equal(40.12))
	})
})

var _ = Describe("LatestReading", func() {
	When("the sequence is empty", func() {
		It("should return nil", func() {
			Expect(LatestReading(nil)).To(BeNil())
		})
	})

	When("readings exist", func() {
		It("should return the most recently taken one regardless of input order", func() {
			r1 := &Reading{ID: "01", Value: 100, TakenAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
			r2 := &Reading{ID: "02", Value: 140, TakenAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}
			r3 := &Reading{ID: "03", Value: 120, TakenAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}
			Expect(LatestReading([]*Reading{r2, r3, r1}).Value).To(Equal(140.0))
		})
	})
})
