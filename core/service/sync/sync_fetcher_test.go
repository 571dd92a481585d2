package sync

import (
	"context"
	"testing"
	"time"

	"mailsync_server/core/port/out"
)

func TestFetcher_ListPageFollowsTokens(t *testing.T) {
	provider := newFakeProvider()
	provider.pages[""] = &out.MessageIDPage{IDs: []string{"a", "b"}, NextPageToken: "p2"}
	provider.pages["p2"] = &out.MessageIDPage{IDs: []string{"c"}, NextPageToken: ""}

	fetcher := NewFetcher(provider, testSyncConfig())
	ctx := context.Background()

	first, err := fetcher.ListPage(ctx, 50, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.IDs) != 2 || first.NextPageToken != "p2" {
		t.Errorf("first page = %+v, want 2 ids and token p2", first)
	}

	second, err := fetcher.ListPage(ctx, 50, first.NextPageToken)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.IDs) != 1 || second.NextPageToken != "" {
		t.Errorf("second page = %+v, want 1 id and no token", second)
	}
}

func TestFetcher_FetchMessagesAllSucceed(t *testing.T) {
	provider := newFakeProvider()
	ids := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		id := idSuffix(i)
		provider.addMessage("", id, "t-"+id, "subject "+id)
		ids = append(ids, id)
	}

	fetcher := NewFetcher(provider, testSyncConfig())
	messages, failed := fetcher.FetchMessages(context.Background(), ids)
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
	if len(messages) != 25 {
		t.Errorf("messages = %d, want 25", len(messages))
	}
}

func TestFetcher_FetchMessagesPreservesRequestOrder(t *testing.T) {
	provider := newFakeProvider()
	ids := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, id := range ids {
		provider.addMessage("", id, "t-"+id, "subject "+id)
	}
	// Stagger so earlier requests complete last.
	provider.slowGets["m1"] = 30 * time.Millisecond
	provider.slowGets["m2"] = 20 * time.Millisecond
	provider.slowGets["m3"] = 10 * time.Millisecond

	fetcher := NewFetcher(provider, testSyncConfig())
	messages, failed := fetcher.FetchMessages(context.Background(), ids)
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
	if len(messages) != len(ids) {
		t.Fatalf("messages = %d, want %d", len(messages), len(ids))
	}
	for i, id := range ids {
		if messages[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, messages[i].ID, id)
		}
	}
}

func TestFetcher_FetchMessagesCountsFailures(t *testing.T) {
	provider := newFakeProvider()
	provider.addMessage("", "ok-1", "t1", "s1")
	provider.addMessage("", "ok-2", "t2", "s2")
	provider.addMessage("", "bad", "t3", "s3")
	provider.failGets["bad"] = out.NewProviderError(out.ProviderErrClient, 400, "malformed", nil)

	fetcher := NewFetcher(provider, testSyncConfig())
	messages, failed := fetcher.FetchMessages(context.Background(), []string{"ok-1", "bad", "ok-2"})
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(messages) != 2 {
		t.Errorf("messages = %d, want 2", len(messages))
	}
}

func TestFetcher_FetchMessagesRetriesTransient(t *testing.T) {
	provider := newFakeProvider()
	provider.addMessage("", "m1", "t1", "s1")
	// Permanent server failure burns the whole retry budget for this id.
	provider.failGets["m1"] = out.NewProviderError(out.ProviderErrServer, 503, "unavailable", nil)

	cfg := testSyncConfig()
	cfg.MaxRetries = 2
	fetcher := NewFetcher(provider, cfg)

	_, failed := fetcher.FetchMessages(context.Background(), []string{"m1"})
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if want := cfg.MaxRetries + 1; provider.getCalls != want {
		t.Errorf("getCalls = %d, want %d", provider.getCalls, want)
	}
}

func TestFetcher_FetchMessagesEmpty(t *testing.T) {
	fetcher := NewFetcher(newFakeProvider(), testSyncConfig())
	messages, failed := fetcher.FetchMessages(context.Background(), nil)
	if messages != nil || failed != 0 {
		t.Errorf("got %v, %d; want nil, 0", messages, failed)
	}
}

func TestFetcher_LabelTotal(t *testing.T) {
	provider := newFakeProvider()
	provider.label = &out.ProviderLabel{ID: "INBOX", Name: "INBOX", MessagesTotal: 1234}

	fetcher := NewFetcher(provider, testSyncConfig())
	if got := fetcher.LabelTotal(context.Background(), "INBOX"); got != 1234 {
		t.Errorf("total = %d, want 1234", got)
	}
}

func TestFetcher_LabelTotalLookupFailure(t *testing.T) {
	fetcher := NewFetcher(newFakeProvider(), testSyncConfig())
	if got := fetcher.LabelTotal(context.Background(), "INBOX"); got != 0 {
		t.Errorf("total = %d, want 0 on lookup failure", got)
	}
}

func idSuffix(i int) string {
	return "msg-" + string(rune('a'+i/10)) + string(rune('0'+i%10))
}
