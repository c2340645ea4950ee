package id

import "context"

type uploadIDKey struct{}

// WithUploadID tags ctx with the identifier of the running upload.
func WithUploadID(ctx context.Context, uploadID string) context.Context {
	if uploadID == "" {
		return ctx
	}
	return context.WithValue(ctx, uploadIDKey{}, uploadID)
}

// UploadIDFromContext returns the upload identifier on ctx, if any.
func UploadIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	uploadID, _ := ctx.Value(uploadIDKey{}).(string)
	return uploadID
}
