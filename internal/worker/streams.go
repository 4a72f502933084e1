package worker

// Streams names the broker streams the handlers enqueue onto. Each handler
// consumes from one stream and produces onto others, so the full set is
// threaded through instead of per-handler names.
type Streams struct {
	Comments string
	DMs      string
	Webhooks string
	PodPolls string
	Reposts  string
}
