package worker

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
)

type failingLimiter struct{}

func (failingLimiter) AcquirePermit(ctx context.Context) error {
	return errors.New("permit wait exceeded")
}

var _ = Describe("DMHandler", func() {
	var (
		campaigns  *mockCampaignStore
		activity   *mockActivityStore
		client     *mockSocialClient
		handler    *DMHandler
		sent       []string
		activities []model.LeadActivity
		campaign   *model.Campaign
	)

	task := queue.Task{
		Type:          queue.TaskTypeSendDM,
		CampaignID:    42,
		AccountID:     "acct-1",
		PostID:        "post-1",
		RecipientID:   "lead-1",
		RecipientName: "Jane Smith",
		CommentID:     "c-1",
	}

	BeforeEach(func() {
		sent = nil
		activities = nil
		campaign = &model.Campaign{
			ID:              42,
			AccountID:       "acct-1",
			MessageTemplate: "Hey {first_name}, want {lead_magnet_name}?",
			LeadMagnetName:  "the playbook",
			Active:          true,
		}

		campaigns = &mockCampaignStore{
			getByIDFn: func(ctx context.Context, id int64) (*model.Campaign, error) {
				return campaign, nil
			},
		}
		activity = &mockActivityStore{
			appendFn: func(ctx context.Context, a *model.LeadActivity) (*model.LeadActivity, error) {
				activities = append(activities, *a)
				out := *a
				out.ID = int64(len(activities))
				return &out, nil
			},
		}
		client = &mockSocialClient{
			sendMessageFn: func(ctx context.Context, accountID, recipientID, text string) (string, error) {
				sent = append(sent, text)
				return "msg-99", nil
			},
		}

		handler = NewDMHandler(campaigns, activity, client, nil, DMHandlerConfig{DefaultDailyLimit: 100})
		handler.now = func() time.Time {
			return time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
		}
	})

	It("renders the template and records a dm_sent activity", func() {
		Expect(handler.Handle(context.Background(), task)).To(Succeed())

		Expect(sent).To(ConsistOf("Hey Jane, want the playbook?"))
		Expect(activities).To(HaveLen(1))
		Expect(activities[0].Status).To(Equal(model.StatusDMSent))
		Expect(activities[0].Success).To(BeTrue())
		Expect(activities[0].MessageID).To(Equal("msg-99"))
	})

	It("fails permanently when the daily budget is exhausted", func() {
		activity.reserveFn = func(ctx context.Context, accountID string, day time.Time, limit int) (bool, error) {
			return false, nil
		}

		err := handler.Handle(context.Background(), task)
		Expect(err).To(HaveOccurred())

		var perm *PermanentError
		Expect(errors.As(err, &perm)).To(BeTrue())
		Expect(errors.Is(err, ErrDailyLimitReached)).To(BeTrue())

		Expect(sent).To(BeEmpty())
		Expect(activities).To(HaveLen(1))
		Expect(activities[0].Status).To(Equal(model.StatusFailed))
		Expect(activities[0].Success).To(BeFalse())
	})

	It("uses the campaign's own daily limit when set", func() {
		campaign.DailyDMLimit = 7
		var gotLimit int
		activity.reserveFn = func(ctx context.Context, accountID string, day time.Time, limit int) (bool, error) {
			gotLimit = limit
			return true, nil
		}

		Expect(handler.Handle(context.Background(), task)).To(Succeed())
		Expect(gotLimit).To(Equal(7))
	})

	It("records a failed activity and surfaces send errors for retry", func() {
		client.sendMessageFn = func(ctx context.Context, accountID, recipientID, text string) (string, error) {
			return "", errors.New("connection reset")
		}

		err := handler.Handle(context.Background(), task)
		Expect(err).To(HaveOccurred())

		var perm *PermanentError
		Expect(errors.As(err, &perm)).To(BeFalse())

		Expect(activities).To(HaveLen(1))
		Expect(activities[0].Status).To(Equal(model.StatusFailed))
		Expect(activities[0].Error).To(ContainSubstring("connection reset"))
	})

	It("gives the daily slot back when the send fails", func() {
		client.sendMessageFn = func(ctx context.Context, accountID, recipientID, text string) (string, error) {
			return "", errors.New("connection reset")
		}

		Expect(handler.Handle(context.Background(), task)).NotTo(Succeed())
		Expect(activity.released).To(ConsistOf("acct-1"))
	})

	It("gives the daily slot back when no send permit arrives", func() {
		handler.limiter = failingLimiter{}

		err := handler.Handle(context.Background(), task)
		Expect(err).To(MatchError(ContainSubstring("acquiring send permit")))

		Expect(sent).To(BeEmpty())
		Expect(activity.released).To(ConsistOf("acct-1"))
	})

	It("keeps the slot after a successful send", func() {
		Expect(handler.Handle(context.Background(), task)).To(Succeed())
		Expect(activity.released).To(BeEmpty())
	})

	It("drops the task when the campaign went inactive", func() {
		campaign.Active = false

		Expect(handler.Handle(context.Background(), task)).To(Succeed())
		Expect(sent).To(BeEmpty())
		Expect(activities).To(BeEmpty())
	})
})
