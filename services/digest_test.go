package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"newswire/models"
)

type fakeMailer struct {
	sent map[string]string // recipient -> body
	fail bool
}

func (f *fakeMailer) Send(to []string, subject, body string) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	for _, addr := range to {
		f.sent[addr] = body
	}
	return nil
}

func TestDigestMailsOnlyReadersWithFreshArticles(t *testing.T) {
	db := openTestDB(t)
	pub := createPublisher(t, db, "pub")
	jour := createUser(t, db, "jour", models.RoleJournalist)

	subscribed := createUser(t, db, "subscribed", models.RoleReader)
	subscribePublisher(t, db, subscribed, pub)
	createUser(t, db, "idle", models.RoleReader)

	createArticle(t, db, "fresh", pub, jour, true, time.Now().Add(-time.Hour))
	createArticle(t, db, "stale", pub, jour, true, time.Now().Add(-48*time.Hour))
	createArticle(t, db, "unapproved", pub, jour, false, time.Now().Add(-time.Hour))

	mailer := &fakeMailer{}
	digest := NewDigestService(db, mailer, zap.NewNop())

	sent, err := digest.Run(context.Background())
	if err != nil {
		t.Fatalf("digest run failed: %v", err)
	}
	if sent != 1 {
		t.Errorf("expected 1 digest, got %d", sent)
	}

	body, ok := mailer.sent["subscribed@example.com"]
	if !ok {
		t.Fatal("expected digest for the subscribed reader")
	}
	if body != "- fresh (pub)\n" {
		t.Errorf("unexpected digest body: %q", body)
	}
	if _, ok := mailer.sent["idle@example.com"]; ok {
		t.Error("reader without subscriptions must not receive a digest")
	}
}

func TestDigestSkipsFailingReaders(t *testing.T) {
	db := openTestDB(t)
	pub := createPublisher(t, db, "pub")
	jour := createUser(t, db, "jour", models.RoleJournalist)
	reader := createUser(t, db, "reader", models.RoleReader)
	subscribePublisher(t, db, reader, pub)
	createArticle(t, db, "fresh", pub, jour, true, time.Now().Add(-time.Hour))

	digest := NewDigestService(db, &fakeMailer{fail: true}, zap.NewNop())
	sent, err := digest.Run(context.Background())
	if err != nil {
		t.Fatalf("digest run must not fail on mailer errors: %v", err)
	}
	if sent != 0 {
		t.Errorf("expected 0 digests, got %d", sent)
	}
}
