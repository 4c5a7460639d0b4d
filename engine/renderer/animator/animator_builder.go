package animator

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*Animator)

// WithWorkers sets the number of sampling workers. Defaults to the number of CPUs.
//
// Parameters:
//   - workers: the maximum number of concurrent sampling tasks
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the worker count to an Animator
func WithWorkers(workers int) AnimatorBuilderOption {
	return func(a *Animator) {
		if workers > 0 {
			a.workers = workers
		}
	}
}

// WithSkinSlots sets how many skins the joint buffer can hold at once.
//
// Parameters:
//   - slots: the joint buffer capacity in skins
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the slot count to an Animator
func WithSkinSlots(slots int) AnimatorBuilderOption {
	return func(a *Animator) {
		if slots > 0 {
			a.slots = slots
		}
	}
}
