package meter

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CurrentPeriodStart", func() {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	When("the reset day is 1", func() {
		It("should always return the first of the current month", func() {
			Expect(CurrentPeriodStart(day(2024, time.March, 1), 1)).To(Equal(day(2024, time.March, 1)))
			Expect(CurrentPeriodStart(day(2024, time.March, 20), 1)).To(Equal(day(2024, time.March, 1)))
			Expect(CurrentPeriodStart(day(2024, time.December, 31), 1)).To(Equal(day(2024, time.December, 1)))
		})
	})

	When("the reset day is 15", func() {
		It("should return the previous month's 15th before the reset day", func() {
			Expect(CurrentPeriodStart(day(2024, time.March, 10), 15)).To(Equal(day(2024, time.February, 15)))
		})

		It("should return this month's 15th on or after the reset day", func() {
			Expect(CurrentPeriodStart(day(2024, time.March, 15), 15)).To(Equal(day(2024, time.March, 15)))
			Expect(CurrentPeriodStart(day(2024, time.March, 20), 15)).To(Equal(day(2024, time.March, 15)))
		})
	})

	When("the period spans a year boundary", func() {
		It("should roll January back to December of the prior year", func() {
			Expect(CurrentPeriodStart(day(2024, time.January, 5), 15)).To(Equal(day(2023, time.December, 15)))
		})
	})

	When("the reset day is out of range", func() {
		It("should clamp low values to 1", func() {
			Expect(CurrentPeriodStart(day(2024, time.March, 20), 0)).To(Equal(day(2024, time.March, 1)))
		})

		It("should clamp high values to 28", func() {
			Expect(CurrentPeriodStart(day(2024, time.March, 30), 31)).To(Equal(day(2024, time.March, 28)))
		})
	})

	It("should ignore the time-of-day of now", func() {
		now := time.Date(2024, 3, 20, 23, 59, 59, 0, time.UTC)
		Expect(CurrentPeriodStart(now, 15)).To(Equal(day(2024, time.March, 15)))
	})

	It("should preserve the location of now", func() {
		loc := time.FixedZone("UTC+2", 2*60*60)
		now := time.Date(2024, 3, 20, 10, 0, 0, 0, loc)
		Expect(CurrentPeriodStart(now, 15).Location()).To(Equal(loc))
	})
})
