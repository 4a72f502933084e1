package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revos.app/pipeline/internal/http/handler"
	"revos.app/pipeline/internal/service"
)

type mockPollingService struct {
	startFn func(ctx context.Context, campaignID int64) error
	stopFn  func(ctx context.Context, campaignID int64) (int, error)
}

func (m *mockPollingService) Start(ctx context.Context, campaignID int64) error {
	if m.startFn != nil {
		return m.startFn(ctx, campaignID)
	}
	return nil
}

func (m *mockPollingService) Stop(ctx context.Context, campaignID int64) (int, error) {
	if m.stopFn != nil {
		return m.stopFn(ctx, campaignID)
	}
	return 0, nil
}

var _ = Describe("CampaignHandler", func() {
	var (
		router *gin.Engine
		svc    *mockPollingService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockPollingService{}
		h := handler.NewCampaignHandler(svc)
		router.POST("/campaigns/:id/polling/start", h.StartPolling)
		router.POST("/campaigns/:id/polling/stop", h.StopPolling)
	})

	Describe("StartPolling", func() {
		It("returns 202 and starts the campaign", func() {
			var got int64
			svc.startFn = func(ctx context.Context, campaignID int64) error {
				got = campaignID
				return nil
			}

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/campaigns/42/polling/start", nil)
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(got).To(Equal(int64(42)))
		})

		It("returns 404 for an unknown campaign", func() {
			svc.startFn = func(ctx context.Context, campaignID int64) error {
				return service.ErrCampaignNotFound
			}

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/campaigns/999/polling/start", nil)
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 409 for an inactive campaign", func() {
			svc.startFn = func(ctx context.Context, campaignID int64) error {
				return service.ErrCampaignInactive
			}

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/campaigns/42/polling/start", nil)
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("returns 400 for a malformed id", func() {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/campaigns/not-a-number/polling/start", nil)
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("StopPolling", func() {
		It("returns the number of cancelled jobs", func() {
			svc.stopFn = func(ctx context.Context, campaignID int64) (int, error) {
				return 3, nil
			}

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/campaigns/42/polling/stop", nil)
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))

			var body map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body["removed_jobs"]).To(BeEquivalentTo(3))
		})
	})
})
