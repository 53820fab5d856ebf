package client

import "time"

// Options configures a Session. NewSession starts from DefaultOptions()
// (spec.md §6) and applies each Option in order; a value an Option sets,
// zero included, replaces the default.
type Options struct {
	// Host is the broker address for rendezvous.
	Host string
	// Port is the initial broker port.
	Port int
	// User is the login identity.
	User string
	// Password authenticates User.
	Password string
	// Database is the database to bind after login.
	Database string

	// CacheTimeout enables the response cache with this TTL when > 0.
	CacheTimeout time.Duration
	// MaxConnectionRetryCount bounds handshake retries on transport
	// errors.
	MaxConnectionRetryCount int
	// AutoCommit is the initial auto-commit mode; the server's echoed
	// CAS info may override it once login completes.
	AutoCommit bool

	// AltHosts is reserved for load-balancing across alternate hosts;
	// parsed but unused (spec.md Non-goals).
	AltHosts []string

	LoginTimeout            time.Duration
	QueryTimeout            time.Duration
	DisconnectOnQueryTimeout bool

	Logger Logger
}

// DefaultOptions returns the option set spec.md §6 documents as defaults.
func DefaultOptions() Options {
	return Options{
		Host:                     "localhost",
		Port:                     33000,
		User:                     "public",
		Password:                 "",
		Database:                 "demodb",
		CacheTimeout:             0,
		MaxConnectionRetryCount:  1,
		AutoCommit:               true,
		DisconnectOnQueryTimeout: false,
		Logger:                   NewNoopLogger(),
	}
}

// Option mutates an Options value; passed variadically to NewSession.
type Option func(*Options)

func WithHost(host string) Option           { return func(o *Options) { o.Host = host } }
func WithPort(port int) Option              { return func(o *Options) { o.Port = port } }
func WithUser(user string) Option           { return func(o *Options) { o.User = user } }
func WithPassword(password string) Option   { return func(o *Options) { o.Password = password } }
func WithDatabase(database string) Option   { return func(o *Options) { o.Database = database } }
func WithAutoCommit(on bool) Option         { return func(o *Options) { o.AutoCommit = on } }
func WithAltHosts(hosts []string) Option    { return func(o *Options) { o.AltHosts = hosts } }
func WithLogger(l Logger) Option            { return func(o *Options) { o.Logger = l } }
func WithMaxConnectionRetryCount(n int) Option {
	return func(o *Options) { o.MaxConnectionRetryCount = n }
}
func WithCacheTimeout(d time.Duration) Option { return func(o *Options) { o.CacheTimeout = d } }
func WithLoginTimeout(d time.Duration) Option { return func(o *Options) { o.LoginTimeout = d } }
func WithQueryTimeout(d time.Duration) Option { return func(o *Options) { o.QueryTimeout = d } }
func WithDisconnectOnQueryTimeout(on bool) Option {
	return func(o *Options) { o.DisconnectOnQueryTimeout = on }
}

func applyOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
