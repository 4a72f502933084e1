package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// Stores aggregates the typed stores over one pool.
type Stores struct {
	campaigns  CampaignStore
	activities ActivityStore
	processed  ProcessedStore
	deliveries DeliveryStore
	pods       PodStore
}

func New(pool *pgxpool.Pool) *Stores {
	return &Stores{
		campaigns:  &campaignStore{pool: pool},
		activities: &activityStore{pool: pool},
		processed:  &processedStore{pool: pool},
		deliveries: &deliveryStore{pool: pool},
		pods:       &podStore{pool: pool},
	}
}

func (s *Stores) Campaigns() CampaignStore { return s.campaigns }
func (s *Stores) Activities() ActivityStore { return s.activities }
func (s *Stores) Processed() ProcessedStore { return s.processed }
func (s *Stores) Deliveries() DeliveryStore { return s.deliveries }
func (s *Stores) Pods() PodStore { return s.pods }
