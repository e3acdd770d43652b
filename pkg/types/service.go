package types

import "time"

// ServiceState is the supervised service state machine from the service
// supervisor's perspective.
type ServiceState string

const (
	ServiceInactive   ServiceState = "INACTIVE"
	ServiceActivating ServiceState = "ACTIVATING"
	ServiceStarting   ServiceState = "STARTING"
	ServiceRunning    ServiceState = "RUNNING"
	ServiceStopping   ServiceState = "STOPPING"
	ServiceFailed     ServiceState = "FAILED"
	ServiceReloading  ServiceState = "RELOADING"
)

// ServiceType controls how the supervisor decides a service has finished
// starting.
type ServiceType string

const (
	ServiceSimple  ServiceType = "SIMPLE"
	ServiceForking ServiceType = "FORKING"
	ServiceOneshot ServiceType = "ONESHOT"
	ServiceNotify  ServiceType = "NOTIFY"
	ServiceIdle    ServiceType = "IDLE"
)

// RestartPolicy classifies the exit conditions under which a service is
// automatically restarted by the supervisor loop.
type RestartPolicy string

const (
	RestartNo         RestartPolicy = "NO"
	RestartOnSuccess  RestartPolicy = "ON_SUCCESS"
	RestartOnFailure  RestartPolicy = "ON_FAILURE"
	RestartOnAbnormal RestartPolicy = "ON_ABNORMAL"
	RestartOnWatchdog RestartPolicy = "ON_WATCHDOG"
	RestartOnAbort    RestartPolicy = "ON_ABORT"
	RestartAlways     RestartPolicy = "ALWAYS"
)

// Service is a supervised process definition plus its runtime state.
type Service struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	ExecStart   string        `json:"exec_start"`
	Type        ServiceType   `json:"type"`
	Restart     RestartPolicy `json:"restart_policy"`

	WorkingDirectory string            `json:"working_directory"`
	User             string            `json:"user,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	Dependencies     []string          `json:"dependencies,omitempty"`
	Conflicts        []string          `json:"conflicts,omitempty"`

	// WatchdogTimer, when nonzero, is the interval a NOTIFY service must
	// send a keepalive within or be treated as failed under ON_WATCHDOG.
	WatchdogTimer time.Duration `json:"watchdog_timer,omitempty"`

	State         ServiceState `json:"state"`
	PID           int          `json:"pid,omitempty"`
	StartTime     time.Time    `json:"start_time,omitempty"`
	StopTime      time.Time    `json:"stop_time,omitempty"`
	RestartCount  int          `json:"restart_count"`
	LastExitCode  int          `json:"last_exit_code"`
	LastExitTime  time.Time    `json:"last_exit_time,omitempty"`
	LastWatchdog  time.Time    `json:"-"`
	FailureReason string       `json:"failure_reason,omitempty"`

	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage uint64  `json:"memory_usage"`
	IORead      uint64  `json:"io_read"`
	IOWrite     uint64  `json:"io_write"`

	StdoutPipe string `json:"stdout_pipe,omitempty"`
	StderrPipe string `json:"stderr_pipe,omitempty"`
	ControlPipe string `json:"control_pipe,omitempty"`
}

// ConfigFile/StateFile return the base names of a service's on-disk
// artefacts, which live under services/config and services/state in the
// storage root.
func (s *Service) ConfigFile() string { return s.Name + ".service" }
func (s *Service) StateFile() string  { return s.Name + ".state" }
