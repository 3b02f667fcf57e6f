package rwp

import "log/slog"

// Option configures an RWP Server.
type Option func(*Server)

// WithAuth sets the authenticator for the RWP server.
// If not set, NoopAuthenticator is used (development mode).
func WithAuth(auth Authenticator) Option {
	return func(s *Server) { s.auth = auth }
}

// WithCodec sets the default codec for the RWP server.
// Clients can override via the auth frame's format field.
func WithCodec(codec Codec) Option {
	return func(s *Server) { s.defaultCodec = codec }
}

// WithLogger sets the logger for the RWP server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPath sets the base path for RWP endpoints.
// Default is "/rwp".
func WithPath(path string) Option {
	return func(s *Server) { s.basePath = path }
}
