package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revos.app/pipeline/core/config"
)

var _ = Describe("Load", func() {
	BeforeEach(func() {
		// Production skips .env loading so the specs only see what they set.
		GinkgoT().Setenv("PIPELINE_ENV", "production")
		GinkgoT().Setenv("SOCIAL_API_BASE_URL", "https://api.social.example.com")
		GinkgoT().Setenv("DOWNLOAD_LINK_SECRET", "link-secret")
	})

	It("loads worker defaults", func() {
		cfg, err := config.Load(config.ServiceTypeWorker)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.DM.DailyLimit).To(Equal(100))
		Expect(cfg.DM.RatePerMinute).To(Equal(10))
		Expect(cfg.Broker.DelayedSet).To(Equal("pipeline:delayed"))
	})

	It("clamps a zero send rate so the limiter interval stays positive", func() {
		GinkgoT().Setenv("DM_RATE_PER_MINUTE", "0")
		GinkgoT().Setenv("DM_CONCURRENCY", "0")

		cfg, err := config.Load(config.ServiceTypeWorker)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.DM.RatePerMinute).To(Equal(1))
		Expect(cfg.DM.Concurrency).To(Equal(1))
	})

	It("requires the social API base URL", func() {
		GinkgoT().Setenv("SOCIAL_API_BASE_URL", "")

		_, err := config.Load(config.ServiceTypeServer)
		Expect(err).To(MatchError(ContainSubstring("SOCIAL_API_BASE_URL")))
	})
})
