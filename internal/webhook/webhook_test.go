package webhook_test

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revos.app/pipeline/internal/webhook"
)

var _ = Describe("Sign and Verify", func() {
	payload := []byte(`{"event":"lead.captured","lead":{"id":42}}`)
	secret := "whsec_test"

	It("round-trips for any payload and secret", func() {
		sig := webhook.Sign(payload, secret)
		Expect(webhook.Verify(sig, payload, secret)).To(BeTrue())
	})

	It("fails when any payload byte is flipped", func() {
		sig := webhook.Sign(payload, secret)
		for i := range payload {
			mutated := append([]byte(nil), payload...)
			mutated[i] ^= 0x01
			Expect(webhook.Verify(sig, mutated, secret)).To(BeFalse())
		}
	})

	It("fails with the wrong secret", func() {
		sig := webhook.Sign(payload, secret)
		Expect(webhook.Verify(sig, payload, "other")).To(BeFalse())
	})

	It("produces 64 hex chars", func() {
		Expect(webhook.Sign(payload, secret)).To(HaveLen(64))
	})
})

var _ = Describe("RetryDelay", func() {
	It("follows 5^n seconds for attempts 1..4", func() {
		Expect(webhook.RetryDelay(1).Milliseconds()).To(Equal(int64(5 * 1000)))
		Expect(webhook.RetryDelay(2).Milliseconds()).To(Equal(int64(25 * 1000)))
		Expect(webhook.RetryDelay(3).Milliseconds()).To(Equal(int64(125 * 1000)))
		Expect(webhook.RetryDelay(4).Milliseconds()).To(Equal(int64(625 * 1000)))
	})

	It("is monotonically increasing", func() {
		for n := 1; n < 5; n++ {
			Expect(webhook.RetryDelay(n + 1)).To(BeNumerically(">", webhook.RetryDelay(n)))
		}
	})
})

var _ = Describe("ShouldRetry", func() {
	It("retries 5xx while attempts remain", func() {
		Expect(webhook.ShouldRetry(503, 1, 4)).To(BeTrue())
		Expect(webhook.ShouldRetry(503, 3, 4)).To(BeTrue())
	})

	It("stops retrying 5xx once attempts are exhausted", func() {
		Expect(webhook.ShouldRetry(503, 4, 4)).To(BeFalse())
		Expect(webhook.ShouldRetry(503, 5, 4)).To(BeFalse())
	})

	It("never retries 4xx regardless of attempt count", func() {
		Expect(webhook.ShouldRetry(400, 1, 4)).To(BeFalse())
		Expect(webhook.ShouldRetry(404, 0, 4)).To(BeFalse())
	})

	It("never retries redirects", func() {
		Expect(webhook.ShouldRetry(301, 1, 4)).To(BeFalse())
		Expect(webhook.ShouldRetry(302, 1, 4)).To(BeFalse())
	})

	It("retries network failures while attempts remain", func() {
		Expect(webhook.ShouldRetry(0, 1, 4)).To(BeTrue())
		Expect(webhook.ShouldRetry(0, 4, 4)).To(BeFalse())
	})
})

var _ = Describe("SignedDownloadURL", func() {
	const secret = "link-secret"

	It("embeds lead, exp, and a 16-char signature", func() {
		expiry := time.Now().Add(24 * time.Hour)
		link := webhook.SignedDownloadURL("https://dl.example.com/magnet", 7, expiry, secret)

		parsed, err := url.Parse(link)
		Expect(err).NotTo(HaveOccurred())
		q := parsed.Query()
		Expect(q.Get("lead")).To(Equal("7"))
		Expect(q.Get("exp")).To(Equal(strconv.FormatInt(expiry.UnixMilli(), 10)))
		Expect(q.Get("sig")).To(HaveLen(16))
	})

	It("verifies its own signature before expiry", func() {
		expiry := time.Now().Add(time.Hour)
		link := webhook.SignedDownloadURL("https://dl.example.com/magnet", 7, expiry, secret)

		parsed, _ := url.Parse(link)
		exp, _ := strconv.ParseInt(parsed.Query().Get("exp"), 10, 64)
		sig := parsed.Query().Get("sig")

		Expect(webhook.VerifyDownloadSig(7, exp, sig, secret, time.Now())).To(BeTrue())
	})

	It("rejects expired links", func() {
		expiry := time.Now().Add(-time.Minute)
		link := webhook.SignedDownloadURL("https://dl.example.com/magnet", 7, expiry, secret)

		parsed, _ := url.Parse(link)
		exp, _ := strconv.ParseInt(parsed.Query().Get("exp"), 10, 64)
		sig := parsed.Query().Get("sig")

		Expect(webhook.VerifyDownloadSig(7, exp, sig, secret, time.Now())).To(BeFalse())
	})

	It("rejects a tampered lead id", func() {
		expiry := time.Now().Add(time.Hour)
		link := webhook.SignedDownloadURL("https://dl.example.com/magnet", 7, expiry, secret)

		parsed, _ := url.Parse(link)
		exp, _ := strconv.ParseInt(parsed.Query().Get("exp"), 10, 64)
		sig := parsed.Query().Get("sig")

		Expect(webhook.VerifyDownloadSig(8, exp, sig, secret, time.Now())).To(BeFalse())
	})
})

var _ = Describe("NewLeadPayload", func() {
	It("serializes the wire format", func() {
		now := time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC)
		body, err := webhook.NewLeadPayload(
			webhook.Lead{
				ID:          42,
				Email:       "john@example.com",
				FirstName:   "John",
				LinkedInID:  "li-9",
				LinkedInURL: "https://linkedin.com/in/john",
				Source:      "comment_trigger",
				CapturedAt:  now.Format(time.RFC3339),
			},
			webhook.CampaignInfo{ID: 1, Name: "Launch", LeadMagnetName: "Playbook"},
			map[string]string{"plan": "pro"},
			now,
		)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(body, &decoded)).To(Succeed())
		Expect(decoded["event"]).To(Equal("lead.captured"))
		Expect(decoded["timestamp"]).To(Equal("2026-02-03T10:30:00Z"))

		lead := decoded["lead"].(map[string]any)
		Expect(lead["email"]).To(Equal("john@example.com"))
		Expect(lead["linkedInId"]).To(Equal("li-9"))
		Expect(lead).NotTo(HaveKey("lastName")) // omitted when empty

		campaign := decoded["campaign"].(map[string]any)
		Expect(campaign["leadMagnetName"]).To(Equal("Playbook"))
	})
})

var _ = Describe("ESP adapters", func() {
	lead := webhook.Lead{
		Email:       "a@b.com",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Company:     "Analytical",
		LinkedInURL: "https://linkedin.com/in/ada",
		Source:      "comment_trigger",
	}

	It("maps Mailchimp merge fields", func() {
		fields := webhook.ToMailchimpFields(lead)
		Expect(fields["email_address"]).To(Equal("a@b.com"))
		merge := fields["merge_fields"].(map[string]string)
		Expect(merge["FNAME"]).To(Equal("Ada"))
		Expect(merge["LNAME"]).To(Equal("Lovelace"))
	})

	It("maps ConvertKit subscriber fields", func() {
		fields := webhook.ToConvertKitFields(lead)
		Expect(fields["email"]).To(Equal("a@b.com"))
		custom := fields["fields"].(map[string]string)
		Expect(custom["linkedin_url"]).To(Equal("https://linkedin.com/in/ada"))
	})
})

var _ = Describe("SplitName", func() {
	It("splits first and last", func() {
		first, last := webhook.SplitName("John van der Berg")
		Expect(first).To(Equal("John"))
		Expect(last).To(Equal("van der Berg"))
	})

	It("handles single names and empty input", func() {
		first, last := webhook.SplitName("Cher")
		Expect(first).To(Equal("Cher"))
		Expect(last).To(BeEmpty())

		first, last = webhook.SplitName("")
		Expect(first).To(BeEmpty())
		Expect(last).To(BeEmpty())
	})
})
