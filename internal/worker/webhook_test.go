package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/webhook"
)

var _ = Describe("WebhookHandler", func() {
	var (
		deliveries *mockDeliveryStore
		activity   *mockActivityStore
		producer   *mockProducer
		handler    *WebhookHandler

		delivery *model.WebhookDelivery
		logs     []model.DeliveryLog
		updates  []model.DeliveryStatus
		recorded []model.LeadActivity
	)

	task := queue.Task{Type: queue.TaskTypeDeliverWebhook, DeliveryID: 7}
	payload := []byte(`{"event":"lead.captured","lead":{"id":3,"email":"jane@example.com"}}`)

	newServer := func(status int, body string, capture *http.Header) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if capture != nil {
				*capture = r.Header.Clone()
			}
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(status)
			w.Write([]byte(body))
		}))
	}

	BeforeEach(func() {
		logs = nil
		updates = nil
		recorded = nil
		delivery = &model.WebhookDelivery{
			ID:          7,
			LeadID:      3,
			CampaignID:  42,
			Secret:      "s3cret",
			ClientID:    "client-1",
			Payload:     payload,
			Attempt:     0,
			MaxAttempts: 4,
			Status:      model.DeliveryPending,
		}

		deliveries = &mockDeliveryStore{
			getDeliveryFn: func(ctx context.Context, id int64) (*model.WebhookDelivery, error) {
				return delivery, nil
			},
			updateAttemptFn: func(ctx context.Context, id int64, attempt int, status model.DeliveryStatus) error {
				updates = append(updates, status)
				return nil
			},
			appendLogFn: func(ctx context.Context, log *model.DeliveryLog) error {
				logs = append(logs, *log)
				return nil
			},
		}
		activity = &mockActivityStore{
			getActivityByIDFn: func(ctx context.Context, id int64) (*model.LeadActivity, error) {
				return &model.LeadActivity{ID: id, RecipientID: "lead-1", RecipientName: "Jane Smith"}, nil
			},
			appendFn: func(ctx context.Context, a *model.LeadActivity) (*model.LeadActivity, error) {
				recorded = append(recorded, *a)
				out := *a
				out.ID = 100
				return &out, nil
			},
		}
		producer = &mockProducer{}

		handler = NewWebhookHandler(deliveries, activity, producer, testStreams, WebhookHandlerConfig{
			Timeout: 5 * time.Second,
			Version: "1.0",
		})
	})

	It("signs the payload and marks the delivery successful on 2xx", func() {
		var headers http.Header
		server := newServer(200, `{"ok":true}`, &headers)
		defer server.Close()
		delivery.WebhookURL = server.URL

		Expect(handler.Handle(context.Background(), task)).To(Succeed())

		Expect(headers.Get("Content-Type")).To(Equal("application/json"))
		Expect(headers.Get("X-Client-ID")).To(Equal("client-1"))
		Expect(headers.Get("X-Webhook-Version")).To(Equal("1.0"))
		Expect(webhook.Verify(headers.Get("X-Webhook-Signature"), payload, "s3cret")).To(BeTrue())

		Expect(updates).To(Equal([]model.DeliveryStatus{model.DeliverySuccess}))
		Expect(logs).To(HaveLen(1))
		Expect(logs[0].StatusCode).To(Equal(200))
		Expect(logs[0].RetryScheduled).To(BeFalse())

		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Status).To(Equal(model.StatusWebhookSent))
		Expect(recorded[0].RecipientID).To(Equal("lead-1"))
		Expect(producer.calls).To(BeEmpty())
	})

	It("schedules an exponential retry on 5xx", func() {
		server := newServer(503, "busy", nil)
		defer server.Close()
		delivery.WebhookURL = server.URL

		Expect(handler.Handle(context.Background(), task)).To(Succeed())

		Expect(updates).To(Equal([]model.DeliveryStatus{model.DeliverySent}))
		Expect(logs).To(HaveLen(1))
		Expect(logs[0].RetryScheduled).To(BeTrue())
		Expect(logs[0].ResponseBody).To(Equal("busy"))

		Expect(producer.calls).To(HaveLen(1))
		retry := producer.calls[0]
		Expect(retry.Stream).To(Equal(testStreams.Webhooks))
		Expect(retry.Task.DeliveryID).To(Equal(int64(7)))
		Expect(retry.Delay).To(Equal(5 * time.Second))
	})

	It("fails terminally on 4xx without retrying", func() {
		server := newServer(404, "gone", nil)
		defer server.Close()
		delivery.WebhookURL = server.URL

		Expect(handler.Handle(context.Background(), task)).To(Succeed())

		Expect(updates).To(Equal([]model.DeliveryStatus{model.DeliveryFailed}))
		Expect(producer.calls).To(BeEmpty())
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Status).To(Equal(model.StatusFailed))
	})

	It("treats redirects as terminal failures without following them", func() {
		followed := false
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			followed = true
		}))
		defer target.Close()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, target.URL, http.StatusFound)
		}))
		defer server.Close()
		delivery.WebhookURL = server.URL

		Expect(handler.Handle(context.Background(), task)).To(Succeed())

		Expect(followed).To(BeFalse())
		Expect(updates).To(Equal([]model.DeliveryStatus{model.DeliveryFailed}))
	})

	It("gives up after the attempt budget is spent", func() {
		server := newServer(500, "still broken", nil)
		defer server.Close()
		delivery.WebhookURL = server.URL
		delivery.Attempt = 3 // next attempt is the 4th and last

		Expect(handler.Handle(context.Background(), task)).To(Succeed())

		Expect(updates).To(Equal([]model.DeliveryStatus{model.DeliveryFailed}))
		Expect(producer.calls).To(BeEmpty())
	})

	It("skips deliveries that already reached a terminal state", func() {
		delivery.Status = model.DeliverySuccess

		Expect(handler.Handle(context.Background(), task)).To(Succeed())
		Expect(updates).To(BeEmpty())
		Expect(logs).To(BeEmpty())
	})
})
