package component

import "context"

// Collector is the periodic-producer variant of §4.1: the scheduler invokes
// Collect on its cron pattern; the framework wraps the returned bytes into a
// blob + record pair and emits collector:completed on success.
type Collector struct {
	Base
	Cron      string
	CollectFn func(ctx context.Context) ([]byte, error)
}

// NewCollector builds a Collector that runs collect on the given cron
// pattern.
func NewCollector(name, contentType, endpoint, cron string, collect func(ctx context.Context) ([]byte, error)) *Collector {
	return &Collector{
		Base:      Base{Name: name, Variant: VariantCollector, ContentType: contentType, Endpoint: endpoint},
		Cron:      cron,
		CollectFn: collect,
	}
}

func (c *Collector) CronPattern() string { return c.Cron }

// Collect runs the host-supplied collection function.
func (c *Collector) Collect(ctx context.Context) ([]byte, error) {
	return c.CollectFn(ctx)
}

var _ Schedulable = (*Collector)(nil)
