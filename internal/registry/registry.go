// Package registry is the small capability registry the design note on
// circular module references prescribes: a handful of narrow interfaces
// injected once at bootstrap time, instead of components reaching for a
// process-wide global or importing each other directly.
package registry

import "context"

// CurrentUserGetter recovers the authenticated user id for the calling
// goroutine's request, the replacement for an implicit process-wide
// current user.
type CurrentUserGetter interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

// PersonalizedFiles resolves the set of file paths a personalize-flagged
// chat request should attach, without the Coordinator importing whatever
// owns personalization.
type PersonalizedFiles interface {
	FilesFor(ctx context.Context, userID string) ([]string, error)
}

// FlushHook is called once per user on logout, after the session package
// has decided the user's process-memory state should be cleared. Multiple
// components register independently rather than the flush path importing
// each of them by name.
type FlushHook func(userID string)

// Registry is the process-wide holder for the capabilities above. It is
// built once in bootstrap and passed down as a shared pointer to anything that needs
// it; there is deliberately no global instance.
type Registry struct {
	currentUser       CurrentUserGetter
	personalizedFiles PersonalizedFiles
	flushHooks        []FlushHook
}

func New() *Registry {
	return &Registry{}
}

func (r *Registry) SetCurrentUserGetter(g CurrentUserGetter) { r.currentUser = g }

func (r *Registry) SetPersonalizedFiles(p PersonalizedFiles) { r.personalizedFiles = p }

func (r *Registry) AddFlushHook(h FlushHook) { r.flushHooks = append(r.flushHooks, h) }

func (r *Registry) CurrentUserID(ctx context.Context) (string, bool) {
	if r.currentUser == nil {
		return "", false
	}
	return r.currentUser.CurrentUserID(ctx)
}

func (r *Registry) PersonalizedFilesFor(ctx context.Context, userID string) ([]string, error) {
	if r.personalizedFiles == nil {
		return nil, nil
	}
	return r.personalizedFiles.FilesFor(ctx, userID)
}

// RunFlushHooks fires every registered hook for userID. Hooks run
// synchronously and in registration order — logout is already an
// explicit, infrequent operation, there is no benefit to fanning this out.
func (r *Registry) RunFlushHooks(userID string) {
	for _, h := range r.flushHooks {
		h(userID)
	}
}
