package k8s

import "log/slog"

// Option configures a Provider.
type Option func(*Provider)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithLeaseName names the Lease object backing leader election.
// Defaults to "replay-leader".
func WithLeaseName(name string) Option {
	return func(p *Provider) { p.leaseName = name }
}

// WithLabelSelector changes the selector used to find worker Pods.
// Defaults to "app.kubernetes.io/component=replay-worker".
func WithLabelSelector(sel string) Option {
	return func(p *Provider) { p.labelSelector = sel }
}

// WithAnnotationPrefix changes the prefix on worker annotations.
// Defaults to "replay.xraph.com/".
func WithAnnotationPrefix(prefix string) Option {
	return func(p *Provider) { p.annotationPrefix = prefix }
}
