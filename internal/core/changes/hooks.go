package changes

import "context"

// HookEvent represents a persist pipeline stage.
type HookEvent string

const (
	// BeforePersist runs before any statement is issued, outside the transaction.
	BeforePersist HookEvent = "before_persist"
	// AfterPersist runs inside the transaction after all statements succeeded.
	AfterPersist HookEvent = "after_persist"
)

// Hook is invoked with the unit of work being saved.
type Hook func(ctx context.Context, uow *Tracker) error

// HookRegistry stores persist hooks in registration order.
type HookRegistry struct {
	hooks map[HookEvent][]Hook
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[HookEvent][]Hook),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry) On(event HookEvent, hook Hook) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event, stopping at the first error.
func (r *HookRegistry) Run(ctx context.Context, event HookEvent, uow *Tracker) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, uow); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of hooks registered for event.
func (r *HookRegistry) Len(event HookEvent) int {
	return len(r.hooks[event])
}

// OnBeforePersist registers a hook to run before statements are issued.
func (r *HookRegistry) OnBeforePersist(hook Hook) {
	r.On(BeforePersist, hook)
}

// OnAfterPersist registers a hook to run after statements, inside the transaction.
func (r *HookRegistry) OnAfterPersist(hook Hook) {
	r.On(AfterPersist, hook)
}

// RunBeforePersist executes all before-persist hooks.
func (r *HookRegistry) RunBeforePersist(ctx context.Context, uow *Tracker) error {
	return r.Run(ctx, BeforePersist, uow)
}

// RunAfterPersist executes all after-persist hooks.
func (r *HookRegistry) RunAfterPersist(ctx context.Context, uow *Tracker) error {
	return r.Run(ctx, AfterPersist, uow)
}
