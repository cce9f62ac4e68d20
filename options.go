package keepself

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// HostOptions configures supervision. Create it with NewHostOptions; the
// argument and environment variable names can only be changed through their
// setters, which reject blank values.
type HostOptions struct {
	// Features are the enabled feature flags
	Features Features

	// Logger receives supervision activity; nil disables logging
	Logger Logger

	// RestartDelay is the pause between a worker exit and the next start
	RestartDelay time.Duration

	// StartFailRetryDelay is the pause after a failed start or wait
	StartFailRetryDelay time.Duration

	// StartFailRetryMaxDelay enables doubling of the retry delay per consecutive
	// failure, capped at this value. Zero keeps the delay fixed.
	StartFailRetryMaxDelay time.Duration

	// MaxStartRetries stops supervision after this many consecutive start
	// failures. Zero retries forever.
	MaxStartRetries int

	// ExcludeRestartExitCodes are worker exit codes that end supervision
	ExcludeRestartExitCodes map[int]struct{}

	// Lifecycle intercepts worker starts and exits
	Lifecycle WorkerLifecycle

	// KillPollInterval is how often the host looks for a worker's liveness token
	KillPollInterval time.Duration

	// ParentPollInterval is how often a worker checks that its host is alive
	ParentPollInterval time.Duration

	// TokenDir holds the liveness token files
	TokenDir string

	// Rendezvous overrides the liveness token implementation
	Rendezvous Rendezvous

	// Signals are the host signals that request shutdown and are forwarded to the worker
	Signals []os.Signal

	// OmitIdentityArgument passes the identity only through the environment,
	// for workers that do not accept the extra argument pair
	OmitIdentityArgument bool

	// ShareProcessGroup keeps workers in the host's process group so they can
	// read from the terminal. Kill then reaches only the worker process.
	ShareProcessGroup bool

	// LaunchSource returns the base launch specification for workers
	LaunchSource func() (LaunchSpec, error)

	// Start launches a worker
	Start StartFunc

	workerArgumentName     string
	noKeepSelfArgumentName string
	noKeepSelfEnvName      string
	workerEnvName          string

	errs MultiError
}

// Option configures HostOptions
type Option func(*HostOptions)

// NewHostOptions returns HostOptions with defaults, then applies opts
func NewHostOptions(opts ...Option) *HostOptions {
	o := &HostOptions{
		Features:               DefaultFeatures,
		Logger:                 NewConsoleLogger("KeepSelf"),
		RestartDelay:           DefaultRestartDelay,
		StartFailRetryDelay:    DefaultStartFailRetryDelay,
		KillPollInterval:       DefaultKillPollInterval,
		ParentPollInterval:     DefaultParentPollInterval,
		TokenDir:               DefaultTokenDir(),
		Signals:                defaultSignals(),
		LaunchSource:           CurrentLaunchSpec,
		Start:                  ExecStart,
		workerArgumentName:     DefaultWorkerArgumentName,
		noKeepSelfArgumentName: DefaultNoKeepSelfArgumentName,
		noKeepSelfEnvName:      DefaultNoKeepSelfEnvName,
		workerEnvName:          DefaultWorkerEnvName,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithFeatures replaces the feature flags
func WithFeatures(f Features) Option {
	return func(o *HostOptions) {
		o.Features = f
	}
}

// WithFeature enables the given feature flags
func WithFeature(f Features) Option {
	return func(o *HostOptions) {
		o.AddFeature(f)
	}
}

// WithoutFeature disables the given feature flags
func WithoutFeature(f Features) Option {
	return func(o *HostOptions) {
		o.RemoveFeature(f)
	}
}

// WithLogger sets the logger; nil disables logging
func WithLogger(l Logger) Option {
	return func(o *HostOptions) {
		o.Logger = l
	}
}

// WithRestartDelay sets the pause between a worker exit and the next start
func WithRestartDelay(d time.Duration) Option {
	return func(o *HostOptions) {
		o.RestartDelay = d
	}
}

// WithStartFailRetryDelay sets the pause after a failed start or wait
func WithStartFailRetryDelay(d time.Duration) Option {
	return func(o *HostOptions) {
		o.StartFailRetryDelay = d
	}
}

// WithStartFailBackoff doubles the retry delay per consecutive failure up to maxDelay
func WithStartFailBackoff(maxDelay time.Duration) Option {
	return func(o *HostOptions) {
		o.StartFailRetryMaxDelay = maxDelay
	}
}

// WithMaxStartRetries stops supervision after n consecutive start failures
func WithMaxStartRetries(n int) Option {
	return func(o *HostOptions) {
		o.MaxStartRetries = n
	}
}

// WithExcludeRestartExitCodes sets the exit codes that end supervision
func WithExcludeRestartExitCodes(codes ...int) Option {
	return func(o *HostOptions) {
		o.ExcludeRestartExitCodes = make(map[int]struct{}, len(codes))
		for _, code := range codes {
			o.ExcludeRestartExitCodes[code] = struct{}{}
		}
	}
}

// WithLifecycle sets the worker lifecycle hook
func WithLifecycle(l WorkerLifecycle) Option {
	return func(o *HostOptions) {
		o.Lifecycle = l
	}
}

// WithKillPollInterval sets how often the host looks for a worker's liveness token
func WithKillPollInterval(d time.Duration) Option {
	return func(o *HostOptions) {
		o.KillPollInterval = d
	}
}

// WithParentPollInterval sets how often a worker checks that its host is alive
func WithParentPollInterval(d time.Duration) Option {
	return func(o *HostOptions) {
		o.ParentPollInterval = d
	}
}

// WithTokenDir sets the directory for liveness token files
func WithTokenDir(dir string) Option {
	return func(o *HostOptions) {
		o.TokenDir = dir
	}
}

// WithRendezvous replaces the liveness token implementation
func WithRendezvous(r Rendezvous) Option {
	return func(o *HostOptions) {
		o.Rendezvous = r
	}
}

// WithSignals sets the host signals that request shutdown. No signals disables signal handling.
func WithSignals(sigs ...os.Signal) Option {
	return func(o *HostOptions) {
		o.Signals = sigs
	}
}

// WithOmitIdentityArgument passes the identity only through the environment
func WithOmitIdentityArgument() Option {
	return func(o *HostOptions) {
		o.OmitIdentityArgument = true
	}
}

// WithShareProcessGroup keeps workers in the host's process group
func WithShareProcessGroup() Option {
	return func(o *HostOptions) {
		o.ShareProcessGroup = true
	}
}

// WithLaunchSource sets the source of the base launch specification
func WithLaunchSource(fn func() (LaunchSpec, error)) Option {
	return func(o *HostOptions) {
		o.LaunchSource = fn
	}
}

// WithStart sets the function that launches workers
func WithStart(fn StartFunc) Option {
	return func(o *HostOptions) {
		o.Start = fn
	}
}

// WithWorkerArgumentName sets the argument that carries the worker identity
func WithWorkerArgumentName(name string) Option {
	return func(o *HostOptions) {
		o.errs.Add(o.SetWorkerArgumentName(name))
	}
}

// WithNoKeepSelfArgumentName sets the argument that disables supervision
func WithNoKeepSelfArgumentName(name string) Option {
	return func(o *HostOptions) {
		o.errs.Add(o.SetNoKeepSelfArgumentName(name))
	}
}

// WithNoKeepSelfEnvName sets the environment variable that disables supervision
func WithNoKeepSelfEnvName(name string) Option {
	return func(o *HostOptions) {
		o.errs.Add(o.SetNoKeepSelfEnvName(name))
	}
}

// WithWorkerEnvName sets the environment variable that carries the worker identity
func WithWorkerEnvName(name string) Option {
	return func(o *HostOptions) {
		o.errs.Add(o.SetWorkerEnvName(name))
	}
}

// AddFeature enables the given feature flags
func (o *HostOptions) AddFeature(f Features) *HostOptions {
	o.Features = o.Features.With(f)
	return o
}

// RemoveFeature disables the given feature flags
func (o *HostOptions) RemoveFeature(f Features) *HostOptions {
	o.Features = o.Features.Without(f)
	return o
}

// ExcludesExitCode reports whether code ends supervision instead of causing a restart
func (o *HostOptions) ExcludesExitCode(code int) bool {
	_, ok := o.ExcludeRestartExitCodes[code]
	return ok
}

// WorkerArgumentName returns the argument that carries the worker identity
func (o *HostOptions) WorkerArgumentName() string { return o.workerArgumentName }

// NoKeepSelfArgumentName returns the argument that disables supervision
func (o *HostOptions) NoKeepSelfArgumentName() string { return o.noKeepSelfArgumentName }

// NoKeepSelfEnvName returns the environment variable that disables supervision
func (o *HostOptions) NoKeepSelfEnvName() string { return o.noKeepSelfEnvName }

// WorkerEnvName returns the environment variable that carries the worker identity
func (o *HostOptions) WorkerEnvName() string { return o.workerEnvName }

// SetWorkerArgumentName sets the argument that carries the worker identity
func (o *HostOptions) SetWorkerArgumentName(name string) error {
	return setName(&o.workerArgumentName, "worker argument", name)
}

// SetNoKeepSelfArgumentName sets the argument that disables supervision
func (o *HostOptions) SetNoKeepSelfArgumentName(name string) error {
	return setName(&o.noKeepSelfArgumentName, "no-keep-self argument", name)
}

// SetNoKeepSelfEnvName sets the environment variable that disables supervision
func (o *HostOptions) SetNoKeepSelfEnvName(name string) error {
	return setName(&o.noKeepSelfEnvName, "no-keep-self environment variable", name)
}

// SetWorkerEnvName sets the environment variable that carries the worker identity
func (o *HostOptions) SetWorkerEnvName(name string) error {
	return setName(&o.workerEnvName, "worker environment variable", name)
}

func setName(target *string, what, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s: %w", what, ErrBlankName)
	}
	*target = name
	return nil
}

// Validate reports configuration errors, including those recorded by options
func (o *HostOptions) Validate() error {
	merr := &MultiError{}
	merr.Errors = append(merr.Errors, o.errs.Errors...)

	if o.RestartDelay < 0 {
		merr.Add(fmt.Errorf("restart delay must not be negative: %v", o.RestartDelay))
	}
	if o.StartFailRetryDelay < 0 {
		merr.Add(fmt.Errorf("start fail retry delay must not be negative: %v", o.StartFailRetryDelay))
	}
	if o.StartFailRetryMaxDelay != 0 && o.StartFailRetryMaxDelay < o.StartFailRetryDelay {
		merr.Add(fmt.Errorf("start fail retry max delay %v is below the retry delay %v", o.StartFailRetryMaxDelay, o.StartFailRetryDelay))
	}
	if o.MaxStartRetries < 0 {
		merr.Add(fmt.Errorf("max start retries must not be negative: %d", o.MaxStartRetries))
	}
	if o.KillPollInterval <= 0 {
		merr.Add(fmt.Errorf("kill poll interval must be positive: %v", o.KillPollInterval))
	}
	if o.Start == nil {
		merr.Add(fmt.Errorf("start function must be set"))
	}

	return merr.Err()
}

func (o *HostOptions) rendezvous() Rendezvous {
	if o.Rendezvous != nil {
		return o.Rendezvous
	}
	return NewFileRendezvous(o.TokenDir, o.KillPollInterval)
}

func (o *HostOptions) log() logSink {
	return logSink{l: o.Logger}
}
