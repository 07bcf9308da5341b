package actions

import (
	"context"
	"fmt"
	"sort"
)

// Capabilities gating the registered actions. Each capability maps to
// one connect/disconnect permission and one credential.
const (
	CapabilityGmail    = "gmail"
	CapabilityCalendar = "calendar"
	CapabilityDocs     = "docs"
)

// Organizer is the identity attached to externally-visible artifacts
// such as calendar invites.
type Organizer struct {
	DisplayName string
	Email       string
}

// Narration is the fixed text streamed before an action executes.
type Narration struct {
	Intro    string
	Progress string
}

// Executor runs one action against a live capability and formats the
// outcome as narrative text. Ids and links needed for a faithful
// summary are embedded in that text; an error is the only other signal.
type Executor func(ctx context.Context, accessToken string, params Params, organizer Organizer) (string, error)

// Narrator produces the pre-execution narration for an action.
type Narrator func(params Params) Narration

// Action couples an executor with its narration and required capability.
type Action struct {
	Name       string
	Capability string
	Execute    Executor
	Narrate    Narrator
}

// Registry is the closed table of registered actions, built once at
// startup. Having execution and narration side by side in one entry
// keeps the two-sided contract checkable: an action cannot be
// registered with half of it missing.
type Registry struct {
	actions  map[string]Action
	timeZone string
}

// NewRegistry builds the full action table. defaultTimeZone applies to
// calendar actions whose parameters omit one.
func NewRegistry(defaultTimeZone string) *Registry {
	r := &Registry{
		actions:  make(map[string]Action),
		timeZone: defaultTimeZone,
	}

	r.registerGmailActions()
	r.registerCalendarActions()
	r.registerDocsActions()

	return r
}

// register adds one action, panicking on an incomplete or duplicate
// entry. Registration runs once at startup, so a panic here is a
// programming error surfaced immediately.
func (r *Registry) register(a Action) {
	if a.Name == "" || a.Capability == "" || a.Execute == nil || a.Narrate == nil {
		panic(fmt.Sprintf("incomplete action registration: %+v", a.Name))
	}
	if _, exists := r.actions[a.Name]; exists {
		panic(fmt.Sprintf("duplicate action registration: %s", a.Name))
	}
	r.actions[a.Name] = a
}

// Lookup resolves an action by name. Unknown names are a hard error,
// never silently ignored.
func (r *Registry) Lookup(name string) (Action, error) {
	action, ok := r.actions[name]
	if !ok {
		return Action{}, fmt.Errorf("unknown action: %s", name)
	}
	return action, nil
}

// Capability returns the capability required by the named action.
func (r *Registry) Capability(name string) (string, error) {
	action, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return action.Capability, nil
}

// Names returns all registered action names in stable order, for
// prompt construction.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
