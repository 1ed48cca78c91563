package job

// Reporter is the read-only progress surface handed to transports.
// It cannot mutate job state.
type Reporter struct {
	store *Store
}

func NewReporter(store *Store) *Reporter {
	return &Reporter{store: store}
}

// Status returns the current snapshot of a job.
func (r *Reporter) Status(id string) (Job, error) {
	return r.store.Get(id)
}

// Subscribe streams state snapshots for a job until it reaches a
// terminal state or the returned cancel function is called.
func (r *Reporter) Subscribe(id string) (<-chan Job, func(), error) {
	return r.store.Subscribe(id)
}
