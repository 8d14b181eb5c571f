package auth

import "context"

type contextKey string

const (
	contextKeyRole     contextKey = "auth.role"
	contextKeySubject  contextKey = "auth.subject"
	contextKeyCosigner contextKey = "auth.cosigner"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// WithCosigner stores the subject of a verified co-signer token.
func WithCosigner(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKeyCosigner, subject)
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(contextKeySubject).(string)
	return subject
}

// CosignerFromContext extracts the co-signer subject from context.
func CosignerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(contextKeyCosigner).(string)
	return subject
}

// SignersFromContext returns the subject and co-signer, skipping empties.
func SignersFromContext(ctx context.Context) []string {
	var signers []string
	for _, s := range []string{SubjectFromContext(ctx), CosignerFromContext(ctx)} {
		if s != "" {
			signers = append(signers, s)
		}
	}
	return signers
}
