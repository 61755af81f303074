package hardware

import (
	"errors"
	"sync"
	"time"

	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
	"github.com/sirupsen/logrus"
)

const (
	KEEP_ALIVE_INTERVAL     = 200 * time.Millisecond
	KEEP_ALIVE_MAX_DURATION = 10 * time.Second
	KEEP_ALIVE_MAX_FAILURES = 5
)

var ERR_KEEP_ALIVE_TIMING = errors.New("keep alive interval and max duration must be positive")

type RunStatus int

const (
	Idle RunStatus = iota
	Running
	Stopped
	TimedOut
	Killed
	WatchdogLost
)

func (s RunStatus) String() string {
	str := []string{
		"idle",
		"running",
		"stopped",
		"timed out",
		"killed",
		"watchdog lost",
	}
	if int(s) < 0 || int(s) >= len(str) {
		return "unknown"
	}
	return str[int(s)]
}

func (s RunStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RunResult describes how a keep-alive run ended.
type RunResult struct {
	Status          RunStatus `json:"status"`
	Started         time.Time `json:"started"`
	Ended           time.Time `json:"ended"`
	Retransmissions int       `json:"retransmissions"`
	Err             error     `json:"-"`
}

// PayloadWriter delivers QuickDrive payloads to the device.
type PayloadWriter interface {
	WriteQuickDrive(p Payload, keepAlive bool) error
}

// KeepAlive resends the last QuickDrive payload every Interval so the SBrick
// keeps its ports powered. A run ends when it is stopped, killed, when no send
// or reset arrives for MaxDuration, or after MaxFailures consecutive failed
// retransmissions.
//
// Configuration fields are read when a run starts.
type KeepAlive struct {
	Interval    time.Duration
	MaxDuration time.Duration
	MaxFailures int  // 0 never gives up
	SafeStop    bool // brake all ports when a run times out or loses the watchdog
	OnExit      func(RunResult)

	writer PayloadWriter
	log    *logrus.Entry

	ctl    sync.Mutex // serialises Start and Kill
	lock   sync.Mutex // guards last, run and result
	last   *Payload
	run    *keepAliveRun
	result RunResult
}

type keepAliveRun struct {
	reset    chan struct{}
	stop     chan struct{}
	kill     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	killOnce sync.Once
	result   RunResult
}

func newKeepAliveRun() *keepAliveRun {
	return &keepAliveRun{
		reset: make(chan struct{}, 1),
		stop:  make(chan struct{}),
		kill:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (r *keepAliveRun) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func NewKeepAlive(writer PayloadWriter) *KeepAlive {
	return &KeepAlive{
		Interval:    KEEP_ALIVE_INTERVAL,
		MaxDuration: KEEP_ALIVE_MAX_DURATION,
		MaxFailures: KEEP_ALIVE_MAX_FAILURES,
		SafeStop:    true,
		writer:      writer,
		log:         logrus.WithField("pkg", "keepalive"),
	}
}

func (ka *KeepAlive) current() *keepAliveRun {
	ka.lock.Lock()
	defer ka.lock.Unlock()
	return ka.run
}

// Last returns the payload that is being kept alive, nil before the first send.
func (ka *KeepAlive) Last() *Payload {
	ka.lock.Lock()
	defer ka.lock.Unlock()

	if ka.last == nil {
		return nil
	}
	p := *ka.last
	return &p
}

// Send writes p immediately, remembers it for retransmission and restarts the
// countdown of the active run.
func (ka *KeepAlive) Send(p Payload) error {
	ka.lock.Lock()
	ka.last = &p
	run := ka.run
	ka.lock.Unlock()

	err := ka.writer.WriteQuickDrive(p, false)

	if run != nil {
		run.signalReset()
	}
	return err
}

func (r *keepAliveRun) signalReset() {
	select {
	case r.reset <- struct{}{}:
	default:
		// a reset is already pending
	}
}

// Reset restarts the countdown of the active run on its next tick.
func (ka *KeepAlive) Reset() {
	if run := ka.current(); run != nil {
		run.signalReset()
	}
}

// Stop asks the active run to exit on its next tick.
func (ka *KeepAlive) Stop() {
	if run := ka.current(); run != nil {
		run.stopOnce.Do(func() { close(run.stop) })
	}
}

// Start begins a new run, killing any run that is still active. A run with a
// non-positive Interval or MaxDuration is refused and any active run is left
// alone.
func (ka *KeepAlive) Start() error {
	ka.ctl.Lock()
	defer ka.ctl.Unlock()

	if ka.Interval <= 0 || ka.MaxDuration <= 0 {
		return ERR_KEEP_ALIVE_TIMING
	}

	if old := ka.current(); old != nil && !old.finished() {
		ka.log.Warn("keep alive already running, killing the previous run")
		ka.kill(old)
	}

	run := newKeepAliveRun()
	ka.lock.Lock()
	ka.run = run
	ka.lock.Unlock()

	go ka.loop(run, ka.Interval, ka.MaxDuration, ka.MaxFailures, ka.SafeStop)
	return nil
}

// Kill terminates the active run without waiting for its next tick. A write
// already in flight completes first; none follows once Kill returns.
func (ka *KeepAlive) Kill() {
	ka.ctl.Lock()
	defer ka.ctl.Unlock()

	run := ka.current()
	if run == nil {
		return
	}
	ka.kill(run)

	ka.lock.Lock()
	if ka.run == run {
		ka.run = nil
		ka.result = run.result
	}
	ka.lock.Unlock()
}

func (ka *KeepAlive) kill(run *keepAliveRun) {
	run.killOnce.Do(func() { close(run.kill) })
	<-run.done
}

// Done is closed when the active run exits. Without a run it is already closed.
func (ka *KeepAlive) Done() <-chan struct{} {
	if run := ka.current(); run != nil {
		return run.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Status reports Running while a run is active, otherwise how the latest run
// ended. Idle before the first run.
func (ka *KeepAlive) Status() RunStatus {
	return ka.Result().Status
}

func (ka *KeepAlive) Result() RunResult {
	ka.lock.Lock()
	run := ka.run
	result := ka.result
	ka.lock.Unlock()

	if run == nil {
		return result
	}
	if run.finished() {
		return run.result
	}
	return RunResult{Status: Running}
}

func (ka *KeepAlive) loop(run *keepAliveRun, interval, maxDuration time.Duration, maxFailures int, safeStop bool) {
	result := RunResult{Status: Running, Started: time.Now()}
	ticker := time.NewTicker(interval)

	defer func() {
		ticker.Stop()
		if safeStop && (result.Status == TimedOut || result.Status == WatchdogLost) {
			ka.brake()
		}
		result.Ended = time.Now()
		run.result = result
		close(run.done)

		entry := ka.log.WithFields(logrus.Fields{
			"retransmissions": result.Retransmissions,
			"duration":        result.Ended.Sub(result.Started),
		})
		if result.Err != nil {
			entry = entry.WithError(result.Err)
		}
		entry.Infof("keep alive %s", result.Status)

		if ka.OnExit != nil {
			ka.OnExit(result)
		}
	}()

	var elapsed time.Duration
	failures := 0
	reset := false

	for {
		if reset {
			ka.log.Debug("keep alive reset")
			elapsed = 0
			reset = false
		} else {
			elapsed += interval
		}

		if p := ka.Last(); p != nil {
			select {
			case <-run.kill:
				result.Status = Killed
				return
			case <-run.stop:
				result.Status = Stopped
				return
			default:
			}

			if err := ka.writer.WriteQuickDrive(*p, true); err != nil {
				failures++
				ka.log.WithError(err).WithField("failures", failures).Warn("keep alive retransmission failed")
				if maxFailures > 0 && failures >= maxFailures {
					result.Status = WatchdogLost
					result.Err = &deverrors.WatchdogLostError{Failures: failures, Err: err}
					return
				}
			} else {
				failures = 0
				result.Retransmissions++
			}
		}

	wait:
		for {
			select {
			case <-run.kill:
				result.Status = Killed
				return
			case <-run.stop:
				result.Status = Stopped
				return
			case <-run.reset:
				reset = true
			case <-ticker.C:
				break wait
			}
		}

		if !reset && elapsed > maxDuration {
			result.Status = TimedOut
			return
		}
	}
}

// brake replaces the kept payload with an all-ports brake and sends it once.
func (ka *KeepAlive) brake() {
	p := BrakePayload()
	ka.lock.Lock()
	ka.last = &p
	ka.lock.Unlock()

	if err := ka.writer.WriteQuickDrive(p, false); err != nil {
		ka.log.WithError(err).Error("unable to brake after keep alive ended")
	}
}
