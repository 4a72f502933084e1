package queue_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revos.app/pipeline/internal/queue"
)

var _ = Describe("RedisProducer", func() {
	const delayedSet = "pipeline:delayed"

	var (
		mr       *miniredis.Miniredis
		client   *redis.Client
		producer queue.Producer
	)

	pollTask := func(campaignID int64) queue.Task {
		return queue.Task{
			Type:       queue.TaskTypePollComments,
			JobID:      queue.PollChainJobID(campaignID),
			CampaignID: campaignID,
			AccountID:  "acc-1",
			PostID:     "post-9",
		}
	}

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		producer = queue.NewRedisProducer(client, delayedSet,
			slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	AfterEach(func() {
		client.Close()
		mr.Close()
	})

	It("parks at most one cycle per job id", func() {
		ctx := context.Background()

		Expect(producer.EnqueueDelayed(ctx, "pipeline:comments", pollTask(42), time.Minute)).To(Succeed())
		Expect(producer.EnqueueDelayed(ctx, "pipeline:comments", pollTask(42), time.Minute)).To(Succeed())

		Expect(client.ZCard(ctx, delayedSet).Val()).To(Equal(int64(1)))

		scheduled, err := producer.IsScheduled(ctx, queue.PollChainJobID(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(scheduled).To(BeTrue())
	})

	It("reports unknown job ids as not scheduled", func() {
		scheduled, err := producer.IsScheduled(context.Background(), queue.PollChainJobID(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(scheduled).To(BeFalse())
	})

	It("promotes a due job onto its stream and clears the parked state", func() {
		ctx := context.Background()

		Expect(producer.EnqueueDelayed(ctx, "pipeline:comments", pollTask(42), -time.Second)).To(Succeed())

		scheduler := queue.NewDelayedScheduler(client, queue.DelayedSchedulerConfig{
			DelayedSet: delayedSet,
			Interval:   5 * time.Millisecond,
		})
		go scheduler.Run(ctx)
		defer scheduler.Stop()

		Eventually(func() int64 {
			return client.XLen(ctx, "pipeline:comments").Val()
		}).Should(Equal(int64(1)))
		Eventually(func() int64 {
			return client.ZCard(ctx, delayedSet).Val()
		}).Should(BeZero())
		Expect(client.HLen(ctx, delayedSet+":payloads").Val()).To(BeZero())
	})

	It("cancels a campaign's parked cycles and nothing else", func() {
		ctx := context.Background()

		Expect(producer.EnqueueDelayed(ctx, "pipeline:comments", pollTask(42), time.Minute)).To(Succeed())
		Expect(producer.EnqueueDelayed(ctx, "pipeline:pods", queue.Task{
			Type:  queue.TaskTypePodPoll,
			JobID: queue.PodChainJobID(9),
			PodID: 9,
		}, time.Minute)).To(Succeed())

		removed, err := producer.CancelCampaign(ctx, 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(1))

		scheduled, err := producer.IsScheduled(ctx, queue.PollChainJobID(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(scheduled).To(BeFalse())

		scheduled, err = producer.IsScheduled(ctx, queue.PodChainJobID(9))
		Expect(err).NotTo(HaveOccurred())
		Expect(scheduled).To(BeTrue())
	})
})
