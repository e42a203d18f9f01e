package engine

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// Dispatcher fans an alert out to its rule's configured channels and
// returns the per-channel outcomes. Implemented by notify.Dispatcher;
// declared here so engine tests can substitute a recorder.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *core.Alert, rule *core.Rule) []core.NotificationRecord
}

// Options tunes a CorrelationEngine instance
type Options struct {
	// CorrelationWindow bounds occurrence merging into an existing open
	// alert for the same rule + source; typically shorter than rule
	// threshold windows. Default 1h.
	CorrelationWindow time.Duration
	// ResolvedRetention keeps resolved alerts in the active index for a
	// grace period. Default 5m.
	ResolvedRetention time.Duration
	// DispatchWorkers is the size of the notification worker pool. Default 4.
	DispatchWorkers int
	// DispatchQueueSize bounds the notification queue; tasks beyond it are
	// dropped with a logged warning. Default 256.
	DispatchQueueSize int
}

const (
	defaultCorrelationWindow = time.Hour
	defaultDispatchWorkers   = 4
	defaultDispatchQueue     = 256
	lockShards               = 64
)

type dispatchTask struct {
	alert *core.Alert
	rule  *core.Rule
}

// CorrelationEngine ingests discrete events and drives the full pipeline:
// condition match -> threshold gate -> dedup/correlate -> throttle ->
// alert creation -> async notification fan-out. Rule-set updates swap an
// atomic snapshot so each event sees a consistent rule set.
type CorrelationEngine struct {
	rules      atomic.Pointer[[]core.Rule]
	thresholds *thresholdTracker
	throttle   *throttleController
	lifecycle  *lifecycleManager
	dispatcher Dispatcher
	regexes    *regexCache
	logger     *zap.SugaredLogger

	correlationWindow time.Duration

	// keyLocks serialize create-vs-merge per correlation key while
	// permitting cross-key parallelism
	keyLocks [lockShards]sync.Mutex

	dispatchCh chan dispatchTask
	workerWg   sync.WaitGroup
	stopOnce   sync.Once
}

// New creates a CorrelationEngine with the given collaborators
func New(sink AlertSink, dispatcher Dispatcher, opts Options, logger *zap.SugaredLogger) (*CorrelationEngine, error) {
	if opts.CorrelationWindow <= 0 {
		opts.CorrelationWindow = defaultCorrelationWindow
	}
	if opts.DispatchWorkers <= 0 {
		opts.DispatchWorkers = defaultDispatchWorkers
	}
	if opts.DispatchQueueSize <= 0 {
		opts.DispatchQueueSize = defaultDispatchQueue
	}

	throttle, err := newThrottleController()
	if err != nil {
		return nil, err
	}

	ce := &CorrelationEngine{
		thresholds:        newThresholdTracker(logger),
		throttle:          throttle,
		lifecycle:         newLifecycleManager(sink, opts.ResolvedRetention, logger),
		dispatcher:        dispatcher,
		regexes:           newRegexCache(),
		logger:            logger,
		correlationWindow: opts.CorrelationWindow,
		dispatchCh:        make(chan dispatchTask, opts.DispatchQueueSize),
	}
	empty := []core.Rule{}
	ce.rules.Store(&empty)

	for i := 0; i < opts.DispatchWorkers; i++ {
		ce.workerWg.Add(1)
		go ce.dispatchWorker()
	}

	return ce, nil
}

// ReloadRules atomically swaps the rule snapshot. Invalid rules are
// skipped with a logged warning so one bad rule cannot take down the set.
func (ce *CorrelationEngine) ReloadRules(rules []core.Rule) {
	loaded := make([]core.Rule, 0, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			ce.logger.Warnw("Skipping invalid rule on reload",
				"rule_id", rule.ID,
				"error", err)
			continue
		}
		loaded = append(loaded, rule)
	}
	ce.rules.Store(&loaded)
	ce.logger.Infof("Loaded %d rules into correlation engine", len(loaded))
}

// Rules returns the current rule snapshot
func (ce *CorrelationEngine) Rules() []core.Rule {
	return *ce.rules.Load()
}

// Evaluate runs one event through every enabled rule and returns the
// alerts it created or merged into. Persistence failures are joined into
// the returned error while in-memory lifecycle tracking proceeds;
// notification dispatch is asynchronous and never fails this path.
func (ce *CorrelationEngine) Evaluate(ctx context.Context, event *core.Event) ([]*core.Alert, error) {
	if event == nil {
		return nil, errors.New("cannot evaluate nil event")
	}
	start := time.Now()
	snapshot := *ce.rules.Load()

	var refs []*core.Alert
	var errs []error

	for i := range snapshot {
		rule := &snapshot[i]
		if !rule.Enabled {
			continue
		}
		if !ce.matchRule(rule, event) {
			continue
		}

		alert, err := ce.fire(ctx, rule, event)
		if err != nil {
			errs = append(errs, err)
		}
		if alert != nil {
			refs = append(refs, alert)
		}
	}

	metrics.EventsProcessed.Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	return refs, errors.Join(errs...)
}

// fire applies the threshold, dedup and throttle gates for a
// conditions-matching rule and creates or merges the alert.
func (ce *CorrelationEngine) fire(ctx context.Context, rule *core.Rule, event *core.Event) (*core.Alert, error) {
	groupValue, grouped := ce.groupValue(rule, event)
	if !grouped {
		// groupBy is set but absent on the event: excluded from all
		// group counts, never an "undefined" bucket
		return nil, nil
	}

	lock := ce.lockFor(rule.ID, event.Source)
	lock.Lock()
	defer lock.Unlock()

	// Dedup runs before the threshold gate: once an alert is open, every
	// conditions-matching event within the correlation window folds into
	// it as a repeat occurrence instead of feeding a new count. Merges do
	// not re-dispatch notifications - that is the storm suppression.
	if existing := ce.lifecycle.findCorrelated(rule.ID, event.Source, event.Timestamp, ce.correlationWindow); existing != nil {
		if err := ce.lifecycle.merge(ctx, existing, event); err != nil {
			ce.logger.Errorw("Occurrence merge persisted with error",
				"alert_id", existing.AlertID,
				"error", err)
			return existing, err
		}
		metrics.AlertsMerged.Inc()
		return existing, nil
	}

	if !ce.thresholds.observe(rule, groupValue, event.Timestamp) {
		return nil, nil
	}

	if !ce.throttle.allow(rule, groupValue, event.Timestamp) {
		metrics.AlertsThrottled.WithLabelValues(rule.ID).Inc()
		return nil, nil
	}

	alert, err := core.NewAlert(rule, event)
	if err != nil {
		return nil, err
	}
	alert.GroupValue = groupValue

	persistErr := ce.lifecycle.create(ctx, alert)
	if persistErr != nil {
		ce.logger.Errorw("Alert created in memory but persistence failed",
			"alert_id", alert.AlertID,
			"rule_id", rule.ID,
			"error", persistErr)
	}
	metrics.AlertsGenerated.WithLabelValues(alert.Severity).Inc()

	ce.enqueueDispatch(alert, rule)
	return alert, persistErr
}

// groupValue resolves the threshold's groupBy field on the event. The
// second return is false when grouping applies but the field is absent.
func (ce *CorrelationEngine) groupValue(rule *core.Rule, event *core.Event) (string, bool) {
	if rule.Threshold == nil || rule.Threshold.GroupBy == "" {
		return "", true
	}
	v := event.Field(rule.Threshold.GroupBy)
	if v == nil {
		return "", false
	}
	return asText(v), true
}

// lockFor returns the shard mutex for a correlation key
func (ce *CorrelationEngine) lockFor(ruleID, source string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return &ce.keyLocks[h.Sum32()%lockShards]
}

// enqueueDispatch hands the alert to the notification worker pool.
// The queue is bounded; on overflow the task is dropped with a warning
// (delivery is best-effort, the alert itself is already created).
func (ce *CorrelationEngine) enqueueDispatch(alert *core.Alert, rule *core.Rule) {
	if ce.dispatcher == nil || len(rule.Actions) == 0 {
		return
	}
	ruleCopy := *rule
	select {
	case ce.dispatchCh <- dispatchTask{alert: alert, rule: &ruleCopy}:
	default:
		ce.logger.Warnw("Notification queue full, dropping dispatch",
			"alert_id", alert.AlertID,
			"rule_id", rule.ID)
		metrics.NotificationsDropped.Inc()
	}
}

// dispatchWorker drains the notification queue. Each dispatch gets its
// own timeout inside the dispatcher; outcomes are recorded on the alert
// and persisted best-effort.
func (ce *CorrelationEngine) dispatchWorker() {
	defer ce.workerWg.Done()
	defer goroutine.Recover("notification-dispatch", ce.logger)

	for task := range ce.dispatchCh {
		records := ce.dispatcher.Dispatch(context.Background(), task.alert, task.rule)
		if len(records) == 0 {
			continue
		}

		ce.lifecycle.mu.Lock()
		task.alert.Notifications = append(task.alert.Notifications, records...)
		ce.lifecycle.mu.Unlock()

		if err := ce.lifecycle.sink.UpdateAlert(context.Background(), task.alert); err != nil {
			ce.logger.Warnw("Failed to persist notification records",
				"alert_id", task.alert.AlertID,
				"error", err)
		}
	}
}

// Acknowledge records an operator acknowledgement on an active alert
func (ce *CorrelationEngine) Acknowledge(ctx context.Context, alertID, by string) (*core.Alert, error) {
	return ce.lifecycle.acknowledge(ctx, alertID, by)
}

// Resolve terminally resolves an active alert
func (ce *CorrelationEngine) Resolve(ctx context.Context, alertID, by, notes string) (*core.Alert, error) {
	return ce.lifecycle.resolve(ctx, alertID, by, notes)
}

// ActiveAlert returns an alert from the in-memory active index
func (ce *CorrelationEngine) ActiveAlert(alertID string) (*core.Alert, bool) {
	return ce.lifecycle.get(alertID)
}

// ActiveAlertCount returns the size of the active index
func (ce *CorrelationEngine) ActiveAlertCount() int {
	return ce.lifecycle.activeCount()
}

// Reset clears all in-process window, throttle and index state
func (ce *CorrelationEngine) Reset() {
	ce.thresholds.reset()
	ce.throttle.reset()
}

// Stop drains the dispatch queue and stops background goroutines
func (ce *CorrelationEngine) Stop() {
	ce.stopOnce.Do(func() {
		close(ce.dispatchCh)

		done := make(chan struct{})
		go func() {
			ce.workerWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			ce.logger.Warn("Dispatch workers did not drain within 30s")
		}

		ce.thresholds.stop()
		ce.lifecycle.stop()
	})
}
