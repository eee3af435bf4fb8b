// filename: internal/alerter/helpers_test.go
package alerter

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/alerter/scheduler"
	"github.com/myhouse/alerter/internal/alerter/state"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

const testModule = "controller/alerter"

// recordingBus запоминает отправленные сообщения
type recordingBus struct {
	mu       sync.Mutex
	messages []*models.Message
	err      error
}

func (b *recordingBus) Publish(msg *models.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, msg)
	return nil
}

func (b *recordingBus) byCommand(command string) []*models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.Message
	for _, msg := range b.messages {
		if msg.Command == command {
			out = append(out, msg)
		}
	}
	return out
}

func (b *recordingBus) queries() []*models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.Message
	for _, msg := range b.messages {
		if msg.Recipient == StorageModule && msg.RequestID != "" {
			out = append(out, msg)
		}
	}
	return out
}

func (b *recordingBus) queryFor(t *testing.T, target string) *models.Message {
	t.Helper()
	for _, q := range b.queries() {
		if q.Args == target {
			return q
		}
	}
	t.Fatalf("no query for %s", target)
	return nil
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

// fakeScheduler запоминает задания и позволяет вызвать их вручную
type fakeScheduler struct {
	mu   sync.Mutex
	next scheduler.JobID
	jobs map[scheduler.JobID]fakeJob
}

type fakeJob struct {
	name string
	spec string
	fn   func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[scheduler.JobID]fakeJob)}
}

func (s *fakeScheduler) AddJob(name, spec string, fn func()) (scheduler.JobID, error) {
	if err := scheduler.Validate(spec); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.jobs[s.next] = fakeJob{name: name, spec: spec, fn: fn}
	return s.next, nil
}

func (s *fakeScheduler) RemoveJob(id scheduler.JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

func (s *fakeScheduler) job(name string) (fakeJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j, true
		}
	}
	return fakeJob{}, false
}

func (s *fakeScheduler) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	sort.Strings(names)
	return names
}

// testClock управляемое время движка
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// recordingJournal запоминает итоги активаций
type recordingJournal struct {
	records []*models.ActivationRecord
}

func (j *recordingJournal) Record(rec *models.ActivationRecord) {
	j.records = append(j.records, rec)
}

type testEnv struct {
	engine  *Engine
	bus     *recordingBus
	sched   *fakeScheduler
	clock   *testClock
	journal *recordingJournal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		bus:     &recordingBus{},
		sched:   newFakeScheduler(),
		clock:   &testClock{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)},
		journal: &recordingJournal{},
	}

	env.engine = NewEngine(Config{
		Module:        testModule,
		ActivationTTL: 5 * time.Minute,
		SweepInterval: 30 * time.Second,
		RetentionDays: 30,
		EventBuffer:   16,
	}, env.bus, env.sched, state.NewMemoryThrottle(3*time.Second), env.journal, nil, logging.NewNopLogger())
	env.engine.now = env.clock.Now

	return env
}

func (env *testEnv) load(t *testing.T, id, yamlText string) {
	t.Helper()
	def, err := dsl.DecodeDefinition(id, yamlText)
	require.NoError(t, err)
	require.NoError(t, env.engine.ApplyDefinition(def))
}

func reply(query *models.Message, value interface{}) *models.Message {
	r := query.NewReply(StorageModule)
	r.SetData(value)
	return r
}

func key(ruleID, macro string) dsl.InstanceKey {
	return dsl.InstanceKey{RuleID: ruleID, Macro: macro}
}
