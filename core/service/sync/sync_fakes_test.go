package sync

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailsync_server/config"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// testSyncConfig returns a config with delays shrunk so tests run fast.
func testSyncConfig() config.SyncConfig {
	cfg := config.DefaultSyncConfig()
	cfg.BatchDelay = 0
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

// =============================================================================
// Fake provider
// =============================================================================

// fakeProvider serves a fixed mailbox: pages of ids keyed by page token and
// full messages keyed by id. Counters record upstream call pressure.
type fakeProvider struct {
	mu sync.Mutex

	// pages maps a page token ("" for the first page) to its response.
	pages    map[string]*out.MessageIDPage
	messages map[string]*out.ProviderMessage
	history  *out.HistoryResult
	label    *out.ProviderLabel
	profile  *out.ProviderProfile

	// failGets maps a message id to the error every GetMessage returns for it.
	failGets map[string]error
	// slowGets delays GetMessage per id, to force out-of-order completion.
	slowGets map[string]time.Duration

	watch *domain.WatchRegistration

	listCalls    int
	getCalls     int
	historyCalls int
	watchCalls   int
	watchTopics  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		pages:    map[string]*out.MessageIDPage{"": {}},
		messages: map[string]*out.ProviderMessage{},
		failGets: map[string]error{},
		slowGets: map[string]time.Duration{},
		profile:  &out.ProviderProfile{EmailAddress: "user@example.com"},
	}
}

// addMessage registers one plain-text message and appends its id to the page
// for the given token.
func (p *fakeProvider) addMessage(pageToken, id, threadID, subject string, labels ...string) {
	page, ok := p.pages[pageToken]
	if !ok {
		page = &out.MessageIDPage{}
		p.pages[pageToken] = page
	}
	page.IDs = append(page.IDs, id)

	p.messages[id] = &out.ProviderMessage{
		ID:           id,
		ThreadID:     threadID,
		Labels:       labels,
		Snippet:      "snippet of " + id,
		InternalDate: time.Now().UnixMilli(),
		Payload: &out.ProviderPart{
			MimeType: "text/plain",
			Headers: []out.ProviderHeader{
				{Name: "From", Value: "alice@example.com"},
				{Name: "To", Value: "bob@example.com"},
				{Name: "Subject", Value: subject},
			},
			Data: base64.URLEncoding.EncodeToString([]byte("body of " + id)),
		},
	}
}

func (p *fakeProvider) ListMessageIDs(ctx context.Context, pageSize int, pageToken string) (*out.MessageIDPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	page, ok := p.pages[pageToken]
	if !ok {
		return &out.MessageIDPage{}, nil
	}
	return page, nil
}

func (p *fakeProvider) GetMessage(ctx context.Context, messageID string) (*out.ProviderMessage, error) {
	p.mu.Lock()
	delay := p.slowGets[messageID]
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if err, ok := p.failGets[messageID]; ok {
		return nil, err
	}
	msg, ok := p.messages[messageID]
	if !ok {
		return nil, out.NewProviderError(out.ProviderErrNotFound, 404, "no such message", nil)
	}
	return msg, nil
}

func (p *fakeProvider) GetLabel(ctx context.Context, name string) (*out.ProviderLabel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.label == nil {
		return nil, out.NewProviderError(out.ProviderErrNotFound, 404, "no such label", nil)
	}
	return p.label, nil
}

func (p *fakeProvider) ListHistory(ctx context.Context, startCursor uint64) (*out.HistoryResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.historyCalls++
	if p.history == nil {
		return &out.HistoryResult{}, nil
	}
	return p.history, nil
}

func (p *fakeProvider) Profile(ctx context.Context) (*out.ProviderProfile, error) {
	return p.profile, nil
}

func (p *fakeProvider) Watch(ctx context.Context, topic string) (*domain.WatchRegistration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchCalls++
	p.watchTopics = append(p.watchTopics, topic)
	if p.watch == nil {
		return &domain.WatchRegistration{}, nil
	}
	return p.watch, nil
}

// =============================================================================
// Fake store (in-memory mirror)
// =============================================================================

// fakeStore is an in-memory SyncStore whose transactions apply immediately.
type fakeStore struct {
	mu sync.Mutex

	nextThreadID  int64
	nextMessageID int64

	// threads keyed by "userID/externalThreadID", messages by "userID/externalID".
	threads     map[string]*domain.Thread
	messages    map[string]*domain.Message
	attachments map[int64][]domain.Attachment

	txCalls int
	txErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threads:     map[string]*domain.Thread{},
		messages:    map[string]*domain.Message{},
		attachments: map[int64][]domain.Attachment{},
	}
}

func (s *fakeStore) RunChunkTx(ctx context.Context, fn func(tx out.SyncTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++
	if s.txErr != nil {
		return s.txErr
	}
	return fn(&fakeTx{store: s})
}

func threadKey(userID uuid.UUID, externalThreadID string) string {
	return userID.String() + "/" + externalThreadID
}

func messageKey(userID uuid.UUID, externalID string) string {
	return userID.String() + "/" + externalID
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) GetThreadByExternalID(ctx context.Context, userID uuid.UUID, externalThreadID string) (*domain.Thread, error) {
	thread, ok := t.store.threads[threadKey(userID, externalThreadID)]
	if !ok {
		return nil, nil
	}
	return thread, nil
}

func (t *fakeTx) CreateThread(ctx context.Context, thread *domain.Thread) error {
	t.store.nextThreadID++
	thread.ID = t.store.nextThreadID
	t.store.threads[threadKey(thread.UserID, thread.ExternalThreadID)] = thread
	return nil
}

func (t *fakeTx) RefreshThread(ctx context.Context, threadID int64, flags domain.MessageFlags, snippet string, lastMessageAt time.Time) error {
	for _, thread := range t.store.threads {
		if thread.ID == threadID {
			thread.IsRead = !flags.IsUnread
			thread.IsStarred = flags.IsStarred
			thread.IsImportant = flags.IsImportant
			thread.Snippet = snippet
			thread.LastMessageAt = lastMessageAt
			return nil
		}
	}
	return fmt.Errorf("thread %d not found", threadID)
}

func (t *fakeTx) UpsertMessage(ctx context.Context, msg *domain.Message) (bool, error) {
	key := messageKey(msg.UserID, msg.ExternalID)
	if existing, ok := t.store.messages[key]; ok {
		existing.Snippet = msg.Snippet
		msg.ID = existing.ID
		return false, nil
	}
	t.store.nextMessageID++
	msg.ID = t.store.nextMessageID
	t.store.messages[key] = msg
	return true, nil
}

func (t *fakeTx) CreateAttachments(ctx context.Context, messageID int64, attachments []domain.Attachment) error {
	t.store.attachments[messageID] = append(t.store.attachments[messageID], attachments...)
	return nil
}

// =============================================================================
// Fake repositories
// =============================================================================

type fakeAccounts struct {
	accounts []*domain.MailAccount
}

func (r *fakeAccounts) GetByUserProvider(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.MailAccount, error) {
	for _, a := range r.accounts {
		if a.UserID == userID && a.Provider == provider {
			return a, nil
		}
	}
	return &domain.MailAccount{UserID: userID, Provider: provider}, nil
}

func (r *fakeAccounts) GetByEmailAddress(ctx context.Context, address string) (*domain.MailAccount, error) {
	for _, a := range r.accounts {
		if a.EmailAddress == address {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccounts) ListConnected(ctx context.Context) ([]*domain.MailAccount, error) {
	return r.accounts, nil
}

func (r *fakeAccounts) UpdateTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiry time.Time) error {
	return nil
}

type stateCall struct {
	kind      string // "full", "delta", "advance"
	address   string
	synced    int
	historyID uint64
}

type fakeStates struct {
	mu    sync.Mutex
	state *domain.SyncState
	calls []stateCall
}

func (r *fakeStates) Get(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string) (*domain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return &domain.SyncState{UserID: userID, Provider: provider, EmailAddress: address}, nil
	}
	return r.state, nil
}

func (r *fakeStates) TouchFullSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, synced int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, stateCall{kind: "full", address: address, synced: synced})
	return nil
}

func (r *fakeStates) TouchDeltaSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, synced int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, stateCall{kind: "delta", address: address, synced: synced})
	return nil
}

func (r *fakeStates) AdvanceHistoryID(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, historyID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, stateCall{kind: "advance", address: address, historyID: historyID})
	return nil
}

func (r *fakeStates) callKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.calls))
	for i, c := range r.calls {
		kinds[i] = c.kind
	}
	return kinds
}

type fakeJobs struct {
	mu      sync.Mutex
	created []*domain.SyncJob
	updated []*domain.SyncJob
}

func (r *fakeJobs) Create(ctx context.Context, job *domain.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, job)
	return nil
}

func (r *fakeJobs) Update(ctx context.Context, job *domain.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, job)
	return nil
}

type fakeBodies struct {
	mu    sync.Mutex
	blobs map[string]string
}

func newFakeBodies() *fakeBodies {
	return &fakeBodies{blobs: map[string]string{}}
}

func (b *fakeBodies) Put(ctx context.Context, key string, content string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = content
	return key, nil
}

func (b *fakeBodies) Get(ctx context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blobs[key], nil
}

// =============================================================================
// Service harness
// =============================================================================

type staticFactory struct {
	provider out.MailProvider
}

func (f *staticFactory) ProviderFor(ctx context.Context, account *domain.MailAccount) (out.MailProvider, error) {
	return f.provider, nil
}

// =============================================================================
// Fake thread repository (read path)
// =============================================================================

// fakeThreads serves seeded threads and messages by id; anything else is
// reported missing the way the real adapter does.
type fakeThreads struct {
	threads  map[int64]*domain.Thread
	messages map[int64]*domain.Message
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{
		threads:  map[int64]*domain.Thread{},
		messages: map[int64]*domain.Message{},
	}
}

func (r *fakeThreads) ListThreads(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Thread, int, error) {
	threads := make([]*domain.Thread, 0, len(r.threads))
	for _, thread := range r.threads {
		threads = append(threads, thread)
	}
	return threads, len(threads), nil
}

func (r *fakeThreads) GetThread(ctx context.Context, userID uuid.UUID, threadID int64) (*domain.Thread, error) {
	thread, ok := r.threads[threadID]
	if !ok {
		return nil, out.ErrNotFound
	}
	return thread, nil
}

func (r *fakeThreads) ListThreadMessages(ctx context.Context, userID uuid.UUID, threadID int64) ([]*domain.Message, error) {
	var messages []*domain.Message
	for _, msg := range r.messages {
		if msg.ThreadID == threadID {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (r *fakeThreads) GetMessage(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.Message, error) {
	msg, ok := r.messages[messageID]
	if !ok {
		return nil, out.ErrNotFound
	}
	return msg, nil
}

func (r *fakeThreads) GetMessageByExternalID(ctx context.Context, userID uuid.UUID, externalID string) (*domain.Message, error) {
	for _, msg := range r.messages {
		if msg.ExternalID == externalID {
			return msg, nil
		}
	}
	return nil, out.ErrNotFound
}

type harness struct {
	svc      *Service
	userID   uuid.UUID
	provider *fakeProvider
	store    *fakeStore
	states   *fakeStates
	jobs     *fakeJobs
	bodies   *fakeBodies
	accounts *fakeAccounts
	threads  *fakeThreads
}

func newHarness() *harness {
	return newHarnessConfig(testSyncConfig())
}

func newHarnessConfig(cfg config.SyncConfig) *harness {
	userID := uuid.New()
	provider := newFakeProvider()
	store := newFakeStore()
	threads := newFakeThreads()
	states := &fakeStates{}
	jobs := &fakeJobs{}
	bodies := newFakeBodies()
	accounts := &fakeAccounts{
		accounts: []*domain.MailAccount{{
			ID:           1,
			UserID:       userID,
			Provider:     domain.ProviderGmail,
			EmailAddress: "user@example.com",
			AccessToken:  "token",
		}},
	}

	svc := NewService(cfg, accounts, threads, states, jobs, store, bodies, &staticFactory{provider: provider})
	return &harness{
		svc:      svc,
		userID:   userID,
		provider: provider,
		store:    store,
		states:   states,
		jobs:     jobs,
		bodies:   bodies,
		accounts: accounts,
		threads:  threads,
	}
}
