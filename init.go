package zbuf

func init() {
	defaultPollerManager = new(pollerManager)
	defaultPollerManager.SetLoadBalancer(RoundRobin)
	defaultPollerManager.SetNumLoops(defaultNumLoops())
}

// Init overrides the number of poller loops. Call it before serving.
func Init(numLoops int) {
	defaultPollerManager.SetNumLoops(numLoops)
}
