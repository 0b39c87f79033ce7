package stage

// Health is what a handler reports before the worker registers it. A handler
// that is not Ready still runs; its jobs fail and retry until it recovers.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
