package registry

import (
	"context"
	"os"
	"path/filepath"
)

// FSPersonalizedFiles implements PersonalizedFiles over a plain directory
// tree: one subdirectory per user under root, matching the teacher's
// `app.Static("/uploads")` convention for anything upload-shaped.
type FSPersonalizedFiles struct {
	root string
}

func NewFSPersonalizedFiles(root string) *FSPersonalizedFiles {
	return &FSPersonalizedFiles{root: root}
}

func (f *FSPersonalizedFiles) FilesFor(ctx context.Context, userID string) ([]string, error) {
	dir := filepath.Join(f.root, userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// contextUserKey is the context key the HTTP boundary stores the
// authenticated user id under, so CtxUserGetter can recover it deep in the
// call graph without every function threading userID explicitly.
type contextUserKey struct{}

// WithUserID returns a context carrying userID for CtxUserGetter to find.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextUserKey{}, userID)
}

// CtxUserGetter implements CurrentUserGetter by reading the context key the
// HTTP boundary's JWT middleware populates via WithUserID.
type CtxUserGetter struct{}

func (CtxUserGetter) CurrentUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(contextUserKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
